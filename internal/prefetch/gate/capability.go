package gate

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/runger/warmroute/internal/prefetch/host"
)

// DefaultConstrainedTypes are the effective connection types treated as
// low bandwidth.
var DefaultConstrainedTypes = []string{"slow-2g", "2g"}

// CapabilityConfig configures the capability gates.
type CapabilityConfig struct {
	Logger *slog.Logger

	// ConstrainedTypes lists effective types that block background
	// prefetch. Defaults to DefaultConstrainedTypes.
	ConstrainedTypes []string

	// RequireFinePointer blocks background prefetch until a fine pointer
	// has been seen. When false, touch-only visitors engage through the
	// engagement flag alone.
	RequireFinePointer bool
}

// Capabilities tracks the three background-prefetch preconditions. It is
// safe for concurrent use.
type Capabilities struct {
	network     host.NetworkSignal
	logger      *slog.Logger
	constrained map[string]struct{}
	unsubscribe func()
	last        host.ConnectionInfo
	cfg         CapabilityConfig
	mu          sync.RWMutex
	engaged     atomic.Bool
	finePointer atomic.Bool
	haveLast    bool
}

// NewCapabilities creates the gates. network may be nil, which is treated
// as unconstrained. If network also implements host.NetworkNotifier the
// gates subscribe to change notifications until Close.
func NewCapabilities(network host.NetworkSignal, cfg CapabilityConfig) *Capabilities {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	types := cfg.ConstrainedTypes
	if len(types) == 0 {
		types = DefaultConstrainedTypes
	}

	c := &Capabilities{
		network:     network,
		logger:      cfg.Logger,
		cfg:         cfg,
		constrained: make(map[string]struct{}, len(types)),
	}
	for _, t := range types {
		c.constrained[t] = struct{}{}
	}

	if n, ok := network.(host.NetworkNotifier); ok {
		c.unsubscribe = n.Subscribe(c.onConnectionChange)
	}
	return c
}

func (c *Capabilities) onConnectionChange(info host.ConnectionInfo) {
	c.mu.Lock()
	c.last = info
	c.haveLast = true
	c.mu.Unlock()
	c.logger.Debug("gate: connection changed",
		"effective_type", info.EffectiveType,
		"save_data", info.SaveData,
	)
}

// MarkEngaged records that the visitor has interacted with the page. It
// reports whether this call flipped the flag.
func (c *Capabilities) MarkEngaged() bool {
	return c.engaged.CompareAndSwap(false, true)
}

// MarkFinePointer records that a fine pointer has been observed.
func (c *Capabilities) MarkFinePointer() {
	c.finePointer.Store(true)
}

// Engaged reports whether engagement has been observed.
func (c *Capabilities) Engaged() bool {
	return c.engaged.Load()
}

// FinePointer reports whether a fine pointer has been observed.
func (c *Capabilities) FinePointer() bool {
	return c.finePointer.Load()
}

// PointerOK reports whether the pointer-precision gate passes.
func (c *Capabilities) PointerOK() bool {
	return !c.cfg.RequireFinePointer || c.FinePointer()
}

// NetworkUnconstrained reports whether the network gate passes. A missing
// signal passes.
func (c *Capabilities) NetworkUnconstrained() bool {
	info, ok := c.connection()
	if !ok {
		return true
	}
	if info.SaveData {
		return false
	}
	_, slow := c.constrained[info.EffectiveType]
	return !slow
}

func (c *Capabilities) connection() (host.ConnectionInfo, bool) {
	c.mu.RLock()
	info, have := c.last, c.haveLast
	c.mu.RUnlock()
	if have {
		return info, true
	}
	if c.network == nil {
		return host.ConnectionInfo{}, false
	}
	return c.network.Connection()
}

// Check evaluates all gates in order and returns the first failing reason.
func (c *Capabilities) Check() (bool, Reason) {
	if !c.Engaged() {
		return false, ReasonEngagement
	}
	if !c.PointerOK() {
		return false, ReasonPointer
	}
	if !c.NetworkUnconstrained() {
		return false, ReasonNetwork
	}
	return true, ReasonNone
}

// Close drops the network change subscription.
func (c *Capabilities) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
