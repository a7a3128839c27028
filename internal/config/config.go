package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runger/warmroute/internal/prefetch/engine"
	"github.com/runger/warmroute/internal/prefetch/gate"
	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/rank"
	"github.com/runger/warmroute/internal/prefetch/recency"
	"github.com/runger/warmroute/internal/prefetch/sched"
)

// Environment overrides.
const (
	EnvStorageBackend = "WARMROUTE_STORAGE_BACKEND"
	EnvStoragePath    = "WARMROUTE_STORAGE_PATH"
	EnvLogLevel       = "WARMROUTE_LOG_LEVEL"
	EnvDebug          = "WARMROUTE_DEBUG"
)

// Config represents the warmroute configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Gates     GatesConfig     `yaml:"gates"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig holds engine lifecycle settings.
type EngineConfig struct {
	HistoryCap          int     `yaml:"history_cap"`            // Bounded navigation history length
	MaxPrefetchPerCycle int     `yaml:"max_prefetch_per_cycle"` // Background dispatches per pass
	PersistDebounceMs   int     `yaml:"persist_debounce_ms"`    // Delay before writing the model
	NavigationWeight    float64 `yaml:"navigation_weight"`      // Transition weight of a navigation
	ModelKey            string  `yaml:"model_key"`              // Storage key of the model
	HistoryKey          string  `yaml:"history_key"`            // Storage key of the history
}

// ScoringConfig holds ranking and learning constants.
type ScoringConfig struct {
	WeightProbability  float64 `yaml:"weight_probability"`  // Transition probability weight
	WeightInteraction  float64 `yaml:"weight_interaction"`  // Interaction boost weight
	WeightHistory      float64 `yaml:"weight_history"`      // Recency weight
	WeightVisitDecay   float64 `yaml:"weight_visit_decay"`  // Visit decay weight
	VisitDecayRate     float64 `yaml:"visit_decay_rate"`    // Exponent per extra visit
	FallbackWidth      int     `yaml:"fallback_width"`      // Routes per cold-start source
	RecencyTauMs       int64   `yaml:"recency_tau_ms"`      // History decay time constant
	PositionalExponent float64 `yaml:"positional_exponent"` // History position falloff
	ReinforceWeight    float64 `yaml:"reinforce_weight"`    // Transition weight on intent
	InteractionBoost   float64 `yaml:"interaction_boost"`   // Boost added on intent
}

// GatesConfig holds capability gate settings.
type GatesConfig struct {
	RequireFinePointer bool     `yaml:"require_fine_pointer"` // Block until a mouse or pen is seen
	ConstrainedTypes   []string `yaml:"constrained_types"`    // Effective types treated as slow
}

// SchedulerConfig holds cooperative scheduler settings.
type SchedulerConfig struct {
	Strategy        string `yaml:"strategy"`          // auto|priority|idle|deferred|manual
	IdleThresholdMs int    `yaml:"idle_threshold_ms"` // Quiet time before an idle task runs
	IdleTimeoutMs   int    `yaml:"idle_timeout_ms"`   // Forced run after this long
	IdleBudgetMs    int    `yaml:"idle_budget_ms"`    // Deadline given to idle tasks
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory|sqlite|badger
	Path    string `yaml:"path"`    // Overrides the default path for the backend
}

// DispatchConfig holds the background dispatch budget.
type DispatchConfig struct {
	MaxPerSecond float64 `yaml:"max_per_second"` // 0 = unlimited
	Burst        int     `yaml:"burst"`          // Token bucket size
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // Log file path (empty = stderr)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			HistoryCap:          10,
			MaxPrefetchPerCycle: engine.DefaultMaxPrefetchPerCycle,
			PersistDebounceMs:   int(engine.DefaultPersistDebounce / time.Millisecond),
			NavigationWeight:    engine.DefaultNavigationWeight,
			ModelKey:            "warmroute:model",
			HistoryKey:          "warmroute:history",
		},
		Scoring: ScoringConfig{
			WeightProbability:  rank.DefaultWeightProbability,
			WeightInteraction:  rank.DefaultWeightInteraction,
			WeightHistory:      rank.DefaultWeightHistory,
			WeightVisitDecay:   rank.DefaultWeightVisitDecay,
			VisitDecayRate:     rank.DefaultVisitDecayRate,
			FallbackWidth:      rank.DefaultFallbackWidth,
			RecencyTauMs:       recency.DefaultTauMs,
			PositionalExponent: recency.DefaultPositionalExponent,
			ReinforceWeight:    engine.DefaultReinforceWeight,
			InteractionBoost:   engine.DefaultInteractionBoost,
		},
		Gates: GatesConfig{
			RequireFinePointer: false,
			ConstrainedTypes:   append([]string(nil), gate.DefaultConstrainedTypes...),
		},
		Scheduler: SchedulerConfig{
			Strategy:        string(sched.KindAuto),
			IdleThresholdMs: int(sched.DefaultIdleThreshold / time.Millisecond),
			IdleTimeoutMs:   int(sched.DefaultIdleTimeout / time.Millisecond),
			IdleBudgetMs:    int(sched.DefaultIdleBudget / time.Millisecond),
		},
		Storage: StorageConfig{
			Backend: kv.BackendSQLite,
			Path:    "", // Use default from paths
		},
		Dispatch: DispatchConfig{
			MaxPerSecond: 0,
			Burst:        1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	paths := DefaultPaths()
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	paths := DefaultPaths()
	return c.SaveToFile(paths.ConfigFile())
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get retrieves a configuration value by dot-separated key.
// For example: "scoring.reinforce_weight" or "storage.backend"
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "engine":
		return c.getEngineField(field)
	case "scoring":
		return c.getScoringField(field)
	case "gates":
		return c.getGatesField(field)
	case "scheduler":
		return c.getSchedulerField(field)
	case "storage":
		return c.getStorageField(field)
	case "dispatch":
		return c.getDispatchField(field)
	case "log":
		return c.getLogField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "engine":
		return c.setEngineField(field, value)
	case "scoring":
		return c.setScoringField(field, value)
	case "gates":
		return c.setGatesField(field, value)
	case "scheduler":
		return c.setSchedulerField(field, value)
	case "storage":
		return c.setStorageField(field, value)
	case "dispatch":
		return c.setDispatchField(field, value)
	case "log":
		return c.setLogField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func splitKey(key string) (string, string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parseNonNegativeInt(field, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", field, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must be non-negative", field)
	}
	return v, nil
}

func parseNonNegativeFloat(field, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", field, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must be non-negative", field)
	}
	return v, nil
}

func setNonNegativeInt(dst *int, field, value string) error {
	v, err := parseNonNegativeInt(field, value)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setNonNegativeFloat(dst *float64, field, value string) error {
	v, err := parseNonNegativeFloat(field, value)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (c *Config) getEngineField(field string) (string, error) {
	switch field {
	case "history_cap":
		return strconv.Itoa(c.Engine.HistoryCap), nil
	case "max_prefetch_per_cycle":
		return strconv.Itoa(c.Engine.MaxPrefetchPerCycle), nil
	case "persist_debounce_ms":
		return strconv.Itoa(c.Engine.PersistDebounceMs), nil
	case "navigation_weight":
		return formatFloat(c.Engine.NavigationWeight), nil
	case "model_key":
		return c.Engine.ModelKey, nil
	case "history_key":
		return c.Engine.HistoryKey, nil
	default:
		return "", fmt.Errorf("unknown field: engine.%s", field)
	}
}

func (c *Config) setEngineField(field, value string) error {
	var err error
	switch field {
	case "history_cap":
		err = setNonNegativeInt(&c.Engine.HistoryCap, field, value)
	case "max_prefetch_per_cycle":
		err = setNonNegativeInt(&c.Engine.MaxPrefetchPerCycle, field, value)
	case "persist_debounce_ms":
		err = setNonNegativeInt(&c.Engine.PersistDebounceMs, field, value)
	case "navigation_weight":
		err = setNonNegativeFloat(&c.Engine.NavigationWeight, field, value)
	case "model_key":
		c.Engine.ModelKey = value
	case "history_key":
		c.Engine.HistoryKey = value
	default:
		return fmt.Errorf("unknown field: engine.%s", field)
	}
	return err
}

func (c *Config) scoringFloat(field string) (*float64, bool) {
	switch field {
	case "weight_probability":
		return &c.Scoring.WeightProbability, true
	case "weight_interaction":
		return &c.Scoring.WeightInteraction, true
	case "weight_history":
		return &c.Scoring.WeightHistory, true
	case "weight_visit_decay":
		return &c.Scoring.WeightVisitDecay, true
	case "visit_decay_rate":
		return &c.Scoring.VisitDecayRate, true
	case "positional_exponent":
		return &c.Scoring.PositionalExponent, true
	case "reinforce_weight":
		return &c.Scoring.ReinforceWeight, true
	case "interaction_boost":
		return &c.Scoring.InteractionBoost, true
	}
	return nil, false
}

func (c *Config) getScoringField(field string) (string, error) {
	if p, ok := c.scoringFloat(field); ok {
		return formatFloat(*p), nil
	}
	switch field {
	case "fallback_width":
		return strconv.Itoa(c.Scoring.FallbackWidth), nil
	case "recency_tau_ms":
		return strconv.FormatInt(c.Scoring.RecencyTauMs, 10), nil
	default:
		return "", fmt.Errorf("unknown field: scoring.%s", field)
	}
}

func (c *Config) setScoringField(field, value string) error {
	if p, ok := c.scoringFloat(field); ok {
		v, err := parseNonNegativeFloat(field, value)
		if err != nil {
			return err
		}
		*p = v
		return nil
	}
	switch field {
	case "fallback_width":
		v, err := parseNonNegativeInt(field, value)
		if err != nil {
			return err
		}
		c.Scoring.FallbackWidth = v
	case "recency_tau_ms":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for recency_tau_ms: %w", err)
		}
		if v <= 0 {
			return fmt.Errorf("invalid recency_tau_ms: must be positive")
		}
		c.Scoring.RecencyTauMs = v
	default:
		return fmt.Errorf("unknown field: scoring.%s", field)
	}
	return nil
}

func (c *Config) getGatesField(field string) (string, error) {
	switch field {
	case "require_fine_pointer":
		return strconv.FormatBool(c.Gates.RequireFinePointer), nil
	case "constrained_types":
		return strings.Join(c.Gates.ConstrainedTypes, ","), nil
	default:
		return "", fmt.Errorf("unknown field: gates.%s", field)
	}
}

func (c *Config) setGatesField(field, value string) error {
	switch field {
	case "require_fine_pointer":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for require_fine_pointer: %w", err)
		}
		c.Gates.RequireFinePointer = v
	case "constrained_types":
		var types []string
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		c.Gates.ConstrainedTypes = types
	default:
		return fmt.Errorf("unknown field: gates.%s", field)
	}
	return nil
}

func (c *Config) getSchedulerField(field string) (string, error) {
	switch field {
	case "strategy":
		return c.Scheduler.Strategy, nil
	case "idle_threshold_ms":
		return strconv.Itoa(c.Scheduler.IdleThresholdMs), nil
	case "idle_timeout_ms":
		return strconv.Itoa(c.Scheduler.IdleTimeoutMs), nil
	case "idle_budget_ms":
		return strconv.Itoa(c.Scheduler.IdleBudgetMs), nil
	default:
		return "", fmt.Errorf("unknown field: scheduler.%s", field)
	}
}

func (c *Config) setSchedulerField(field, value string) error {
	var err error
	switch field {
	case "strategy":
		if _, perr := sched.ParseKind(value); perr != nil {
			return perr
		}
		c.Scheduler.Strategy = value
	case "idle_threshold_ms":
		err = setNonNegativeInt(&c.Scheduler.IdleThresholdMs, field, value)
	case "idle_timeout_ms":
		err = setNonNegativeInt(&c.Scheduler.IdleTimeoutMs, field, value)
	case "idle_budget_ms":
		err = setNonNegativeInt(&c.Scheduler.IdleBudgetMs, field, value)
	default:
		return fmt.Errorf("unknown field: scheduler.%s", field)
	}
	return err
}

func (c *Config) getStorageField(field string) (string, error) {
	switch field {
	case "backend":
		return c.Storage.Backend, nil
	case "path":
		return c.Storage.Path, nil
	default:
		return "", fmt.Errorf("unknown field: storage.%s", field)
	}
}

func (c *Config) setStorageField(field, value string) error {
	switch field {
	case "backend":
		if !isValidBackend(value) {
			return fmt.Errorf("invalid backend: %s (must be memory, sqlite, or badger)", value)
		}
		c.Storage.Backend = value
	case "path":
		c.Storage.Path = value
	default:
		return fmt.Errorf("unknown field: storage.%s", field)
	}
	return nil
}

func (c *Config) getDispatchField(field string) (string, error) {
	switch field {
	case "max_per_second":
		return formatFloat(c.Dispatch.MaxPerSecond), nil
	case "burst":
		return strconv.Itoa(c.Dispatch.Burst), nil
	default:
		return "", fmt.Errorf("unknown field: dispatch.%s", field)
	}
}

func (c *Config) setDispatchField(field, value string) error {
	var err error
	switch field {
	case "max_per_second":
		err = setNonNegativeFloat(&c.Dispatch.MaxPerSecond, field, value)
	case "burst":
		err = setNonNegativeInt(&c.Dispatch.Burst, field, value)
	default:
		return fmt.Errorf("unknown field: dispatch.%s", field)
	}
	return err
}

func (c *Config) getLogField(field string) (string, error) {
	switch field {
	case "level":
		return c.Log.Level, nil
	case "file":
		return c.Log.File, nil
	default:
		return "", fmt.Errorf("unknown field: log.%s", field)
	}
}

func (c *Config) setLogField(field, value string) error {
	switch field {
	case "level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", value)
		}
		c.Log.Level = value
	case "file":
		c.Log.File = value
	default:
		return fmt.Errorf("unknown field: log.%s", field)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.HistoryCap < 1 {
		return errors.New("engine.history_cap must be >= 1")
	}
	if c.Engine.MaxPrefetchPerCycle < 0 {
		return errors.New("engine.max_prefetch_per_cycle must be >= 0")
	}
	if c.Engine.PersistDebounceMs < 0 {
		return errors.New("engine.persist_debounce_ms must be >= 0")
	}
	if c.Engine.NavigationWeight < 0 {
		return errors.New("engine.navigation_weight must be >= 0")
	}

	weights := []struct {
		name string
		val  float64
	}{
		{"weight_probability", c.Scoring.WeightProbability},
		{"weight_interaction", c.Scoring.WeightInteraction},
		{"weight_history", c.Scoring.WeightHistory},
		{"weight_visit_decay", c.Scoring.WeightVisitDecay},
		{"visit_decay_rate", c.Scoring.VisitDecayRate},
		{"positional_exponent", c.Scoring.PositionalExponent},
		{"reinforce_weight", c.Scoring.ReinforceWeight},
		{"interaction_boost", c.Scoring.InteractionBoost},
	}
	for _, w := range weights {
		if w.val < 0 {
			return fmt.Errorf("scoring.%s must be >= 0 (got: %v)", w.name, w.val)
		}
	}
	if c.Scoring.FallbackWidth < 0 {
		return errors.New("scoring.fallback_width must be >= 0")
	}
	if c.Scoring.RecencyTauMs <= 0 {
		return errors.New("scoring.recency_tau_ms must be > 0")
	}

	if _, err := sched.ParseKind(c.Scheduler.Strategy); err != nil {
		return fmt.Errorf("scheduler.strategy: %w", err)
	}
	if c.Scheduler.IdleThresholdMs < 0 || c.Scheduler.IdleTimeoutMs < 0 || c.Scheduler.IdleBudgetMs < 0 {
		return errors.New("scheduler idle durations must be >= 0")
	}

	if !isValidBackend(c.Storage.Backend) {
		return fmt.Errorf("storage.backend must be memory, sqlite, or badger (got: %s)", c.Storage.Backend)
	}

	if c.Dispatch.MaxPerSecond < 0 {
		return errors.New("dispatch.max_per_second must be >= 0")
	}
	if c.Dispatch.Burst < 0 {
		return errors.New("dispatch.burst must be >= 0")
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidBackend(backend string) bool {
	switch backend {
	case kv.BackendMemory, kv.BackendSQLite, kv.BackendBadger:
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvStorageBackend); v != "" {
		if isValidBackend(v) {
			c.Storage.Backend = v
		}
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
}

// ListKeys returns user-facing configuration keys.
func ListKeys() []string {
	return []string{
		"engine.history_cap",
		"engine.max_prefetch_per_cycle",
		"engine.persist_debounce_ms",
		"scoring.reinforce_weight",
		"scoring.interaction_boost",
		"scoring.recency_tau_ms",
		"gates.require_fine_pointer",
		"gates.constrained_types",
		"scheduler.strategy",
		"storage.backend",
		"storage.path",
		"dispatch.max_per_second",
		"dispatch.burst",
		"log.level",
	}
}

// StoragePath resolves the path for the configured backend, falling back to
// the default location under paths.
func (c *Config) StoragePath(paths *Paths) string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	switch c.Storage.Backend {
	case kv.BackendBadger:
		return paths.BadgerDir()
	case kv.BackendSQLite:
		return paths.DatabaseFile()
	default:
		return ""
	}
}

// KVOptions returns the options for opening the configured store.
func (c *Config) KVOptions(paths *Paths, logger *slog.Logger) kv.Options {
	return kv.Options{
		Logger:  logger,
		Backend: c.Storage.Backend,
		Path:    c.StoragePath(paths),
	}
}

// EngineConfig builds the engine configuration.
func (c *Config) EngineConfig(logger *slog.Logger) engine.Config {
	return engine.Config{
		Logger: logger,
		Rank: rank.Config{
			Weights: rank.Weights{
				Probability: c.Scoring.WeightProbability,
				Interaction: c.Scoring.WeightInteraction,
				History:     c.Scoring.WeightHistory,
				VisitDecay:  c.Scoring.WeightVisitDecay,
			},
			VisitDecayRate: c.Scoring.VisitDecayRate,
			FallbackWidth:  c.Scoring.FallbackWidth,
		},
		Recency: recency.Options{
			TauMs:              c.Scoring.RecencyTauMs,
			PositionalExponent: c.Scoring.PositionalExponent,
		},
		Gates: gate.CapabilityConfig{
			ConstrainedTypes:   c.Gates.ConstrainedTypes,
			RequireFinePointer: c.Gates.RequireFinePointer,
		},
		NavigationWeight:    c.Engine.NavigationWeight,
		ReinforceWeight:     c.Scoring.ReinforceWeight,
		InteractionBoost:    c.Scoring.InteractionBoost,
		MaxPrefetchPerCycle: c.Engine.MaxPrefetchPerCycle,
		PersistDebounce:     time.Duration(c.Engine.PersistDebounceMs) * time.Millisecond,
		ModelKey:            c.Engine.ModelKey,
		HistoryKey:          c.Engine.HistoryKey,
		HistoryCap:          c.Engine.HistoryCap,
		Scheduler: sched.SelectOptions{
			Strategy: sched.Kind(c.Scheduler.Strategy),
			Idle: sched.IdleConfig{
				Threshold: time.Duration(c.Scheduler.IdleThresholdMs) * time.Millisecond,
				Timeout:   time.Duration(c.Scheduler.IdleTimeoutMs) * time.Millisecond,
				Budget:    time.Duration(c.Scheduler.IdleBudgetMs) * time.Millisecond,
			},
		},
		MaxPerSecond: c.Dispatch.MaxPerSecond,
		Burst:        c.Dispatch.Burst,
	}
}
