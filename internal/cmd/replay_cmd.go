package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/replay"
	"github.com/runger/warmroute/internal/prefetch/route"
)

var (
	replayParallel int
	replayJSON     bool
	replayPersist  bool
)

var errExpectFailed = errors.New("one or more expect steps failed")

var replayCmd = &cobra.Command{
	Use:   "replay <trace>...",
	Short: "Replay navigation traces through the prefetch engine",
	Long: `Replay one or more navigation traces through a fresh prefetch engine
each and report which routes were warmed.

Traces ending in .ndjson, .jsonl or .json are read as one JSON step per
line; anything else is read as a line-oriented script:

  routes /pricing /docs /about
  element cta /pricing visible prefetchable
  navigate /
  event pointerdown mouse
  tick
  expect /pricing

By default each trace learns into a throwaway in-memory model. With
--persist, traces share the configured storage backend, run one at a time
in argument order, and the learned model survives the run.`,
	Args:    cobra.MinimumNArgs(1),
	GroupID: groupRun,
	RunE:    runReplay,
}

func init() {
	replayCmd.Flags().IntVarP(&replayParallel, "parallel", "p", replay.DefaultParallelism, "maximum traces replayed at once")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print results as JSON")
	replayCmd.Flags().BoolVar(&replayPersist, "persist", false, "learn into the configured storage backend")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ec := cfg.EngineConfig(logger)
	rc := replay.RunnerConfig{
		Logger:      logger,
		Engine:      &ec,
		Parallelism: replayParallel,
	}

	if replayPersist {
		store, err := kv.Open(cmd.Context(), cfg.KVOptions(paths, logger))
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()
		rc.Store = store
	}

	results, err := replay.NewRunner(rc).RunFiles(cmd.Context(), args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if replayJSON {
		err = writeReplayJSON(out, results)
	} else {
		writeReplayText(out, results)
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		if !r.OK() {
			return errExpectFailed
		}
	}
	return nil
}

type replayJSONResult struct {
	Name       string            `json:"name"`
	SessionID  string            `json:"session_id"`
	OK         bool              `json:"ok"`
	Steps      int               `json:"steps"`
	Dispatched []route.Route     `json:"dispatched"`
	Failed     []route.Route     `json:"failed,omitempty"`
	Counters   map[string]int64  `json:"counters"`
	Mismatches []replay.Mismatch `json:"mismatches,omitempty"`
}

func writeReplayJSON(out io.Writer, results []*replay.Result) error {
	list := make([]replayJSONResult, 0, len(results))
	for _, r := range results {
		list = append(list, replayJSONResult{
			Name:       r.Name,
			SessionID:  r.SessionID,
			OK:         r.OK(),
			Steps:      r.Steps,
			Dispatched: r.Dispatched,
			Failed:     r.Failed,
			Counters:   r.Counters,
			Mismatches: r.Mismatches,
		})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

func writeReplayText(out io.Writer, results []*replay.Result) {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(out)
		}
		status := paint(okStyle, "ok")
		if !r.OK() {
			status = paint(errStyle, "FAIL")
		}
		fmt.Fprintf(out, "%s %s %s\n", status, paint(titleStyle, r.Name), paint(dimStyle, fmt.Sprintf("(%d steps, session %s)", r.Steps, r.SessionID)))
		fmt.Fprintf(out, "  dispatched: %s\n", joinRoutes(r.Dispatched))
		if len(r.Failed) > 0 {
			fmt.Fprintf(out, "  failed:     %s\n", paint(warnStyle, joinRoutes(r.Failed)))
		}
		fmt.Fprintf(out, "  counters:   %s\n", formatCounters(r.Counters))
		for _, m := range r.Mismatches {
			fmt.Fprintf(out, "  %s line %d: expected [%s], got [%s]\n",
				paint(errStyle, "mismatch"), m.Line, joinRoutes(m.Expected), joinRoutes(m.Got))
		}
	}
}

func joinRoutes(rs []route.Route) string {
	if len(rs) == 0 {
		return "-"
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

// formatCounters lists non-zero counters in key order.
func formatCounters(c map[string]int64) string {
	keys := make([]string, 0, len(c))
	for k, v := range c {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "-"
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, c[k])
	}
	return strings.Join(parts, " ")
}
