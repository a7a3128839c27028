package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/runger/warmroute/internal/prefetch/host"
	"github.com/runger/warmroute/internal/prefetch/route"
)

// Format is a trace encoding.
type Format string

const (
	// FormatNDJSON is one JSON Step per line.
	FormatNDJSON Format = "ndjson"

	// FormatScript is one shell-quoted command per line, e.g.
	//
	//	routes / /pricing /docs
	//	element nav-pricing /pricing visible prefetchable
	//	event pointermove mouse
	//	navigate /
	//	advance 1m
	//	tick
	//	expect /pricing
	FormatScript Format = "script"
)

// DetectFormat picks a format from a file name.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ndjson", ".jsonl", ".json":
		return FormatNDJSON
	default:
		return FormatScript
	}
}

// Step kinds.
const (
	KindRoutes   = "routes"
	KindFail     = "fail"
	KindElement  = "element"
	KindNavigate = "navigate"
	KindEvent    = "event"
	KindNetwork  = "network"
	KindAdvance  = "advance"
	KindTick     = "tick"
	KindExpect   = "expect"
)

// Step is one trace instruction.
type Step struct {
	Kind       string               `json:"kind"`
	Route      route.Route          `json:"route,omitempty"`
	Routes     []route.Route        `json:"routes,omitempty"`
	Event      *host.Event          `json:"event,omitempty"`
	Element    *host.Element        `json:"element,omitempty"`
	Connection *host.ConnectionInfo `json:"connection,omitempty"`
	AdvanceMs  int64                `json:"advance_ms,omitempty"`

	// Line is the 1-based source line, for diagnostics.
	Line int `json:"-"`
}

// Viewport is the fixed viewport used by replays. Script elements marked
// visible are placed inside it and hidden ones below it.
var Viewport = host.Rect{Width: 1280, Height: 800}

var (
	visibleRect = host.Rect{X: 16, Y: 16, Width: 120, Height: 24}
	hiddenRect  = host.Rect{X: 16, Y: 4000, Width: 120, Height: 24}
)

// Parse reads a whole trace. Blank lines and lines starting with # are
// skipped.
func Parse(r io.Reader, format Format) ([]Step, error) {
	var steps []Step
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var (
			st  Step
			err error
		)
		switch format {
		case FormatNDJSON:
			err = json.Unmarshal([]byte(text), &st)
			if err == nil {
				err = st.validate()
			}
		default:
			st, err = parseScriptLine(text)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		st.Line = line
		steps = append(steps, st)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return steps, nil
}

func (s Step) validate() error {
	switch s.Kind {
	case KindRoutes, KindExpect, KindTick:
		return nil
	case KindFail, KindNavigate:
		if s.Route == "" {
			return fmt.Errorf("%s needs a route", s.Kind)
		}
	case KindEvent:
		if s.Event == nil || s.Event.Type == "" {
			return fmt.Errorf("event needs a type")
		}
	case KindElement:
		if s.Element == nil || s.Element.ID == "" {
			return fmt.Errorf("element needs an id")
		}
	case KindNetwork:
		if s.Connection == nil {
			return fmt.Errorf("network needs a connection")
		}
	case KindAdvance:
		if s.AdvanceMs < 0 {
			return fmt.Errorf("advance must not go backwards")
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}

func parseScriptLine(text string) (Step, error) {
	args, err := shlex.Split(text)
	if err != nil {
		return Step{}, fmt.Errorf("split: %w", err)
	}
	if len(args) == 0 {
		return Step{}, fmt.Errorf("empty command")
	}
	kind, args := args[0], args[1:]
	st := Step{Kind: kind}

	switch kind {
	case KindRoutes, KindExpect:
		for _, a := range args {
			st.Routes = append(st.Routes, route.Route(a))
		}
	case KindFail, KindNavigate:
		if len(args) != 1 {
			return Step{}, fmt.Errorf("usage: %s <route>", kind)
		}
		st.Route = route.Route(args[0])
	case KindElement:
		if len(args) < 3 {
			return Step{}, fmt.Errorf("usage: element <id> <route> visible|hidden [prefetchable]")
		}
		el := &host.Element{ID: args[0], Route: route.Route(args[1])}
		switch args[2] {
		case "visible":
			el.Rect = visibleRect
		case "hidden":
			el.Rect = hiddenRect
		default:
			return Step{}, fmt.Errorf("element placement must be visible or hidden, got %q", args[2])
		}
		for _, flag := range args[3:] {
			if flag != "prefetchable" {
				return Step{}, fmt.Errorf("unknown element flag %q", flag)
			}
			el.Prefetchable = true
		}
		st.Element = el
	case KindEvent:
		if len(args) < 1 || len(args) > 3 {
			return Step{}, fmt.Errorf("usage: event <type> [pointer-type] [target]")
		}
		ev := &host.Event{Type: host.EventType(args[0])}
		if len(args) > 1 && args[1] != "-" {
			ev.PointerType = host.PointerType(args[1])
		}
		if len(args) > 2 {
			ev.Target = args[2]
		}
		st.Event = ev
	case KindNetwork:
		if len(args) < 1 || len(args) > 2 {
			return Step{}, fmt.Errorf("usage: network <effective-type> [save-data]")
		}
		info := &host.ConnectionInfo{EffectiveType: args[0]}
		if len(args) == 2 {
			if args[1] != "save-data" {
				return Step{}, fmt.Errorf("unknown network flag %q", args[1])
			}
			info.SaveData = true
		}
		st.Connection = info
	case KindAdvance:
		if len(args) != 1 {
			return Step{}, fmt.Errorf("usage: advance <duration|ms>")
		}
		ms, err := parseAdvance(args[0])
		if err != nil {
			return Step{}, err
		}
		st.AdvanceMs = ms
	case KindTick:
		if len(args) != 0 {
			return Step{}, fmt.Errorf("tick takes no arguments")
		}
	default:
		return Step{}, fmt.Errorf("unknown command %q", kind)
	}
	return st, st.validate()
}

func parseAdvance(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("advance must not go backwards")
		}
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad advance %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("advance must not go backwards")
	}
	return d.Milliseconds(), nil
}
