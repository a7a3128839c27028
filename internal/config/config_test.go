package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/sched"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.HistoryCap != 10 {
		t.Errorf("Expected history_cap=10, got %d", cfg.Engine.HistoryCap)
	}
	if cfg.Engine.MaxPrefetchPerCycle != 3 {
		t.Errorf("Expected max_prefetch_per_cycle=3, got %d", cfg.Engine.MaxPrefetchPerCycle)
	}
	if cfg.Engine.PersistDebounceMs != 250 {
		t.Errorf("Expected persist_debounce_ms=250, got %d", cfg.Engine.PersistDebounceMs)
	}
	if cfg.Scoring.ReinforceWeight != 0.35 {
		t.Errorf("Expected reinforce_weight=0.35, got %v", cfg.Scoring.ReinforceWeight)
	}
	if cfg.Scoring.InteractionBoost != 1.5 {
		t.Errorf("Expected interaction_boost=1.5, got %v", cfg.Scoring.InteractionBoost)
	}
	if cfg.Scheduler.Strategy != "auto" {
		t.Errorf("Expected strategy=auto, got %s", cfg.Scheduler.Strategy)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Expected backend=sqlite, got %s", cfg.Storage.Backend)
	}
	if cfg.Gates.RequireFinePointer {
		t.Error("Expected require_fine_pointer=false by default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected log.level=info, got %s", cfg.Log.Level)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestConfigGet(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		key      string
		expected string
	}{
		// Engine section
		{"engine.history_cap", "10"},
		{"engine.max_prefetch_per_cycle", "3"},
		{"engine.persist_debounce_ms", "250"},
		{"engine.navigation_weight", "1"},
		{"engine.model_key", "warmroute:model"},
		{"engine.history_key", "warmroute:history"},
		// Scoring section
		{"scoring.weight_probability", "0.55"},
		{"scoring.weight_interaction", "0.2"},
		{"scoring.weight_history", "0.2"},
		{"scoring.weight_visit_decay", "0.05"},
		{"scoring.visit_decay_rate", "0.05"},
		{"scoring.fallback_width", "2"},
		{"scoring.recency_tau_ms", "600000"},
		{"scoring.positional_exponent", "1.2"},
		{"scoring.reinforce_weight", "0.35"},
		{"scoring.interaction_boost", "1.5"},
		// Gates section
		{"gates.require_fine_pointer", "false"},
		{"gates.constrained_types", "slow-2g,2g"},
		// Scheduler section
		{"scheduler.strategy", "auto"},
		{"scheduler.idle_threshold_ms", "50"},
		{"scheduler.idle_timeout_ms", "2000"},
		{"scheduler.idle_budget_ms", "50"},
		// Storage section
		{"storage.backend", "sqlite"},
		{"storage.path", ""},
		// Dispatch section
		{"dispatch.max_per_second", "0"},
		{"dispatch.burst", "1"},
		// Log section
		{"log.level", "info"},
		{"log.file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cfg.Get(tt.key)
			if err != nil {
				t.Fatalf("Get(%q) error = %v", tt.key, err)
			}
			if got != tt.expected {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestConfigSet(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"engine.history_cap", "25"},
		{"engine.max_prefetch_per_cycle", "5"},
		{"engine.persist_debounce_ms", "0"},
		{"engine.navigation_weight", "2"},
		{"engine.model_key", "site:model"},
		{"scoring.reinforce_weight", "0.5"},
		{"scoring.interaction_boost", "3"},
		{"scoring.fallback_width", "4"},
		{"scoring.recency_tau_ms", "1000"},
		{"gates.require_fine_pointer", "true"},
		{"gates.constrained_types", "slow-2g,2g,3g"},
		{"scheduler.strategy", "manual"},
		{"scheduler.idle_timeout_ms", "500"},
		{"storage.backend", "badger"},
		{"storage.path", "/tmp/warmroute"},
		{"dispatch.max_per_second", "2.5"},
		{"dispatch.burst", "3"},
		{"log.level", "debug"},
		{"log.file", "/tmp/warmroute.log"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := DefaultConfig()
			if err := cfg.Set(tt.key, tt.value); err != nil {
				t.Fatalf("Set(%q, %q) error = %v", tt.key, tt.value, err)
			}
			got, err := cfg.Get(tt.key)
			if err != nil {
				t.Fatalf("Get(%q) error = %v", tt.key, err)
			}
			if got != tt.value {
				t.Errorf("Get(%q) after Set = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestConfigSetConstrainedTypesTrimsBlanks(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Set("gates.constrained_types", " 2g , ,slow-2g "); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if len(cfg.Gates.ConstrainedTypes) != 2 || cfg.Gates.ConstrainedTypes[0] != "2g" {
		t.Errorf("ConstrainedTypes = %v, want [2g slow-2g]", cfg.Gates.ConstrainedTypes)
	}
}

func TestConfigGetInvalidKey(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		key     string
		wantErr string
	}{
		{"invalid", "key must be in format"},
		{"a.b.c", "key must be in format"},
		{"unknown.field", "unknown section"},
		{"engine.unknown", "unknown field"},
		{"scoring.unknown", "unknown field"},
		{"gates.unknown", "unknown field"},
		{"scheduler.unknown", "unknown field"},
		{"storage.unknown", "unknown field"},
		{"dispatch.unknown", "unknown field"},
		{"log.unknown", "unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := cfg.Get(tt.key)
			if err == nil {
				t.Fatalf("Get(%q) expected error", tt.key)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Get(%q) error = %v, want to contain %q", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestConfigSetInvalidValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"engine.history_cap", "abc"},
		{"engine.history_cap", "-1"},
		{"engine.navigation_weight", "x"},
		{"scoring.reinforce_weight", "-0.1"},
		{"scoring.recency_tau_ms", "0"},
		{"scoring.recency_tau_ms", "soon"},
		{"gates.require_fine_pointer", "maybe"},
		{"scheduler.strategy", "realtime"},
		{"scheduler.idle_budget_ms", "-5"},
		{"storage.backend", "redis"},
		{"dispatch.max_per_second", "-1"},
		{"dispatch.burst", "many"},
		{"log.level", "verbose"},
		{"unknown.field", "1"},
		{"nodot", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := DefaultConfig()
			if err := cfg.Set(tt.key, tt.value); err == nil {
				t.Errorf("Set(%q, %q) expected error", tt.key, tt.value)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default", func(*Config) {}, ""},
		{"zero history cap", func(c *Config) { c.Engine.HistoryCap = 0 }, "history_cap"},
		{"negative max prefetch", func(c *Config) { c.Engine.MaxPrefetchPerCycle = -1 }, "max_prefetch_per_cycle"},
		{"negative debounce", func(c *Config) { c.Engine.PersistDebounceMs = -1 }, "persist_debounce_ms"},
		{"negative weight", func(c *Config) { c.Scoring.WeightHistory = -1 }, "weight_history"},
		{"negative boost", func(c *Config) { c.Scoring.InteractionBoost = -1 }, "interaction_boost"},
		{"zero tau", func(c *Config) { c.Scoring.RecencyTauMs = 0 }, "recency_tau_ms"},
		{"bad strategy", func(c *Config) { c.Scheduler.Strategy = "eager" }, "scheduler.strategy"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"negative rate", func(c *Config) { c.Dispatch.MaxPerSecond = -1 }, "max_per_second"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if !isValidLogLevel(level) {
			t.Errorf("isValidLogLevel(%q) = false", level)
		}
	}
	if isValidLogLevel("trace") {
		t.Error("isValidLogLevel(trace) = true")
	}
}

func TestValidBackends(t *testing.T) {
	for _, b := range []string{"memory", "sqlite", "badger"} {
		if !isValidBackend(b) {
			t.Errorf("isValidBackend(%q) = false", b)
		}
	}
	if isValidBackend("") {
		t.Error("isValidBackend(\"\") = true")
	}
}

func TestLoadFromFile_NonExistent(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Engine.HistoryCap != 10 {
		t.Errorf("Expected default history_cap, got %d", cfg.Engine.HistoryCap)
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("engine: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoadFromFile_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  backend: redis\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("LoadFromFile() error = %v, want invalid config", err)
	}
}

func TestLoadFromFile_PartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
scoring:
  reinforce_weight: 0.5
scheduler:
  strategy: idle
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Scoring.ReinforceWeight != 0.5 {
		t.Errorf("Expected reinforce_weight=0.5, got %v", cfg.Scoring.ReinforceWeight)
	}
	if cfg.Scheduler.Strategy != "idle" {
		t.Errorf("Expected strategy=idle, got %s", cfg.Scheduler.Strategy)
	}
	// Untouched fields keep their defaults.
	if cfg.Scoring.InteractionBoost != 1.5 {
		t.Errorf("Expected interaction_boost=1.5, got %v", cfg.Scoring.InteractionBoost)
	}
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv(EnvStorageBackend, "badger")
	t.Setenv(EnvStoragePath, "/tmp/wr-badger")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Storage.Backend != "badger" {
		t.Errorf("Expected backend=badger, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Path != "/tmp/wr-badger" {
		t.Errorf("Expected path=/tmp/wr-badger, got %s", cfg.Storage.Path)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected level=warn, got %s", cfg.Log.Level)
	}
}

func TestApplyEnvOverrides_DebugAndInvalid(t *testing.T) {
	t.Setenv(EnvDebug, "1")
	t.Setenv(EnvStorageBackend, "redis")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected level=debug, got %s", cfg.Log.Level)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Invalid backend override should be ignored, got %s", cfg.Storage.Backend)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Engine.HistoryCap = 20
	cfg.Scoring.ReinforceWeight = 0.4
	cfg.Gates.ConstrainedTypes = []string{"2g"}
	cfg.Storage.Backend = "memory"
	cfg.Dispatch.MaxPerSecond = 4

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Engine.HistoryCap != 20 {
		t.Errorf("history_cap = %d, want 20", loaded.Engine.HistoryCap)
	}
	if loaded.Scoring.ReinforceWeight != 0.4 {
		t.Errorf("reinforce_weight = %v, want 0.4", loaded.Scoring.ReinforceWeight)
	}
	if len(loaded.Gates.ConstrainedTypes) != 1 || loaded.Gates.ConstrainedTypes[0] != "2g" {
		t.Errorf("constrained_types = %v, want [2g]", loaded.Gates.ConstrainedTypes)
	}
	if loaded.Storage.Backend != "memory" {
		t.Errorf("backend = %s, want memory", loaded.Storage.Backend)
	}
	if loaded.Dispatch.MaxPerSecond != 4 {
		t.Errorf("max_per_second = %v, want 4", loaded.Dispatch.MaxPerSecond)
	}
}

func TestListKeysAllGettable(t *testing.T) {
	cfg := DefaultConfig()
	for _, key := range ListKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) error = %v", key, err)
		}
	}
}

func TestListKeysAllSettable(t *testing.T) {
	for _, key := range ListKeys() {
		cfg := DefaultConfig()
		value, err := cfg.Get(key)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", key, err)
		}
		if err := cfg.Set(key, value); err != nil {
			t.Errorf("Set(%q, %q) error = %v", key, value, err)
		}
	}
}

func TestStoragePath(t *testing.T) {
	paths := &Paths{DataDir: "/data"}

	tests := []struct {
		backend  string
		override string
		want     string
	}{
		{kv.BackendSQLite, "", filepath.Join("/data", "model.db")},
		{kv.BackendBadger, "", paths.BadgerDir()},
		{kv.BackendMemory, "", ""},
		{kv.BackendSQLite, "/custom.db", "/custom.db"},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Storage.Backend = tt.backend
		cfg.Storage.Path = tt.override
		if got := cfg.StoragePath(paths); got != tt.want {
			t.Errorf("StoragePath(%s, %q) = %q, want %q", tt.backend, tt.override, got, tt.want)
		}
		opts := cfg.KVOptions(paths, nil)
		if opts.Backend != tt.backend || opts.Path != tt.want {
			t.Errorf("KVOptions = %+v", opts)
		}
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scoring.ReinforceWeight = 0.5
	cfg.Engine.PersistDebounceMs = 100
	cfg.Scheduler.Strategy = "manual"
	cfg.Scheduler.IdleTimeoutMs = 300
	cfg.Dispatch.MaxPerSecond = 2

	ec := cfg.EngineConfig(nil)
	if ec.ReinforceWeight != 0.5 {
		t.Errorf("ReinforceWeight = %v, want 0.5", ec.ReinforceWeight)
	}
	if ec.InteractionBoost != 1.5 {
		t.Errorf("InteractionBoost = %v, want 1.5", ec.InteractionBoost)
	}
	if ec.PersistDebounce != 100*time.Millisecond {
		t.Errorf("PersistDebounce = %v, want 100ms", ec.PersistDebounce)
	}
	if ec.Scheduler.Strategy != sched.KindManual {
		t.Errorf("Strategy = %s, want manual", ec.Scheduler.Strategy)
	}
	if ec.Scheduler.Idle.Timeout != 300*time.Millisecond {
		t.Errorf("Idle.Timeout = %v, want 300ms", ec.Scheduler.Idle.Timeout)
	}
	if ec.Rank.Weights.Probability != 0.55 {
		t.Errorf("Rank probability weight = %v, want 0.55", ec.Rank.Weights.Probability)
	}
	if ec.Recency.TauMs != 600000 {
		t.Errorf("Recency tau = %d, want 600000", ec.Recency.TauMs)
	}
	if ec.MaxPerSecond != 2 || ec.HistoryCap != 10 {
		t.Errorf("MaxPerSecond/HistoryCap = %v/%d", ec.MaxPerSecond, ec.HistoryCap)
	}
}

func TestConfigSetInvalidValueKeepsPrevious(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Set("engine.history_cap", "lots"); err == nil {
		t.Fatal("expected error")
	}
	if cfg.Engine.HistoryCap != 10 {
		t.Errorf("history_cap = %d after failed set, want 10", cfg.Engine.HistoryCap)
	}
	if err := cfg.Set("dispatch.max_per_second", "-3"); err == nil {
		t.Fatal("expected error")
	}
	if cfg.Dispatch.MaxPerSecond != 0 {
		t.Errorf("max_per_second = %v after failed set, want 0", cfg.Dispatch.MaxPerSecond)
	}
}
