package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/copier/guard"
	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/terminal"
)

// Config is the complete copier configuration, loaded once at startup.
// Changing it requires a restart; there is no hot reload.
type Config struct {
	Copy      CopyConfig    `json:"copy" yaml:"copy"`
	System    SystemConfig  `json:"system" yaml:"system"`
	Ledger    LedgerConfig  `json:"ledger" yaml:"ledger"`
	Master    Account       `json:"master" yaml:"master"`
	Followers []Follower    `json:"followers" yaml:"followers"`
	Symbols   SymbolsConfig `json:"symbols" yaml:"symbols"`
}

// CopyConfig contains the trade-copy policy.
type CopyConfig struct {
	Mode          market.CopyMode `json:"mode" yaml:"mode"`
	MagicNumber   int64           `json:"magic_number" yaml:"magic_number"`
	CommentPrefix string          `json:"comment_prefix" yaml:"comment_prefix"`

	MinLot float64 `json:"min_lot" yaml:"min_lot"`
	MaxLot float64 `json:"max_lot" yaml:"max_lot"`

	MaxSlippagePoints  float64 `json:"max_slippage_points" yaml:"max_slippage_points"`
	MaxSpreadPoints    float64 `json:"max_spread_points" yaml:"max_spread_points"`
	MaxOrdersPerSymbol int     `json:"max_orders_per_symbol" yaml:"max_orders_per_symbol"`
	MaxExposureLots    float64 `json:"max_exposure_lots" yaml:"max_exposure_lots"`
	// MaxExposureTrades of zero disables the global trade-count cap
	// (disabled by default; the field stays so it can be re-enabled).
	MaxExposureTrades int `json:"max_exposure_trades" yaml:"max_exposure_trades"`
	// MaxDrawdownPercent of zero disables the emergency stop.
	MaxDrawdownPercent float64 `json:"max_drawdown_percent" yaml:"max_drawdown_percent"`

	// MaxAgeMillis rejects copying market fills older than this.
	MaxAgeMillis int64 `json:"max_age_ms" yaml:"max_age_ms"`
	// StrictCleanup closes any follower order not sanctioned by the master
	// snapshot, including manual and foreign-bot orders. Risky on shared
	// accounts; disable when the follower is traded by anyone else.
	StrictCleanup bool `json:"strict_cleanup" yaml:"strict_cleanup"`
	// SyncIntervalSec forces a periodic resync even without detected changes.
	SyncIntervalSec int `json:"sync_interval_sec" yaml:"sync_interval_sec"`
}

// SystemConfig contains process-level parameters.
type SystemConfig struct {
	TickIntervalMillis    int    `json:"tick_interval_ms" yaml:"tick_interval_ms"`
	PublishIntervalMillis int    `json:"publish_interval_ms" yaml:"publish_interval_ms"`
	SnapshotPath          string `json:"snapshot_path" yaml:"snapshot_path"`
	// MetricsAddr serves prometheus metrics when non-empty (e.g. ":9100").
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

// LedgerConfig selects the copy-record store backend.
type LedgerConfig struct {
	Type string `json:"type" yaml:"type"` // "file" or "sqlite"
	Path string `json:"path" yaml:"path"`
}

// Account holds one venue account's credentials.
type Account struct {
	Login    int64  `json:"login" yaml:"login"`
	Password string `json:"password" yaml:"password"`
	Server   string `json:"server" yaml:"server"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Credentials converts to the terminal connection form.
func (a Account) Credentials() terminal.Credentials {
	return terminal.Credentials{
		Login:    a.Login,
		Password: a.Password,
		Server:   a.Server,
		Path:     a.Path,
	}
}

// Follower is one follower account plus optional per-account overrides of
// the global copy policy. Zero-valued overrides inherit the global.
type Follower struct {
	Account `json:",inline" yaml:",inline"`

	Mode   market.CopyMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	MinLot float64         `json:"min_lot,omitempty" yaml:"min_lot,omitempty"`
	MaxLot float64         `json:"max_lot,omitempty" yaml:"max_lot,omitempty"`
}

// SymbolsConfig carries per-symbol limit overrides (substring-matched, so a
// "BTCUSD" key covers suffixed broker names) and master→follower symbol
// aliases.
type SymbolsConfig struct {
	Overrides map[string]guard.SymbolOverride `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	Aliases   map[string]string               `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// GuardLimits maps the copy policy onto guard thresholds.
func (c *Config) GuardLimits() guard.Limits {
	return guard.Limits{
		MaxOrdersPerSymbol: c.Copy.MaxOrdersPerSymbol,
		MaxSlippagePoints:  c.Copy.MaxSlippagePoints,
		MaxSpreadPoints:    c.Copy.MaxSpreadPoints,
		MaxExposureLots:    c.Copy.MaxExposureLots,
		MaxExposureTrades:  c.Copy.MaxExposureTrades,
		MaxDrawdownPercent: c.Copy.MaxDrawdownPercent,
	}
}

// TickInterval returns the engine tick interval with the enforced 100ms
// floor to avoid busy-spinning.
func (c *Config) TickInterval() time.Duration {
	d := time.Duration(c.System.TickIntervalMillis) * time.Millisecond
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// PublishInterval returns the publisher cadence.
func (c *Config) PublishInterval() time.Duration {
	if c.System.PublishIntervalMillis <= 0 {
		return 10 * time.Millisecond
	}
	return time.Duration(c.System.PublishIntervalMillis) * time.Millisecond
}

// SyncInterval returns the periodic forced-resync interval.
func (c *Config) SyncInterval() time.Duration {
	if c.Copy.SyncIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Copy.SyncIntervalSec) * time.Second
}

// MaxAge returns the latency-guard cutoff for market fills.
func (c *Config) MaxAge() time.Duration {
	if c.Copy.MaxAgeMillis <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Copy.MaxAgeMillis) * time.Millisecond
}

// LoadFromFile loads configuration from a file, trying YAML first and
// falling back to JSON. Missing fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for fatal inconsistencies. An invalid
// config aborts startup; there is no partial boot.
func (c *Config) Validate() error {
	if !c.Copy.Mode.Valid() {
		return fmt.Errorf("copy.mode must be %q or %q", market.CopyIdentical, market.CopyProportional)
	}
	if c.Copy.MagicNumber <= 0 {
		return fmt.Errorf("copy.magic_number must be positive")
	}
	if c.Copy.MinLot <= 0 || c.Copy.MaxLot < c.Copy.MinLot {
		return fmt.Errorf("copy lot bounds invalid: min=%.2f max=%.2f", c.Copy.MinLot, c.Copy.MaxLot)
	}
	if c.Copy.MaxSlippagePoints <= 0 {
		return fmt.Errorf("copy.max_slippage_points must be positive")
	}
	if c.Copy.MaxSpreadPoints <= 0 {
		return fmt.Errorf("copy.max_spread_points must be positive")
	}
	if c.Master.Login == 0 || c.Master.Password == "" || c.Master.Server == "" {
		return fmt.Errorf("master credentials are required")
	}
	if len(c.Followers) == 0 {
		return fmt.Errorf("at least one follower is required")
	}
	seen := make(map[int64]bool, len(c.Followers))
	for i, f := range c.Followers {
		if f.Login == 0 || f.Password == "" || f.Server == "" {
			return fmt.Errorf("follower %d credentials are incomplete", i)
		}
		if f.Login == c.Master.Login {
			return fmt.Errorf("follower %d login equals master login", i)
		}
		if seen[f.Login] {
			return fmt.Errorf("duplicate follower login %d", f.Login)
		}
		seen[f.Login] = true
		if f.Mode != "" && !f.Mode.Valid() {
			return fmt.Errorf("follower %d mode %q invalid", i, f.Mode)
		}
	}
	if c.System.SnapshotPath == "" {
		return fmt.Errorf("system.snapshot_path is required")
	}
	if c.Ledger.Type != "file" && c.Ledger.Type != "sqlite" {
		return fmt.Errorf("ledger.type must be 'file' or 'sqlite'")
	}
	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}
	return nil
}

// Default returns the configuration defaults; loaded files override them
// field by field.
func Default() *Config {
	return &Config{
		Copy: CopyConfig{
			Mode:               market.CopyIdentical,
			MagicNumber:        777001,
			CommentPrefix:      "COPY_",
			MinLot:             0.01,
			MaxLot:             10.0,
			MaxSlippagePoints:  50,
			MaxSpreadPoints:    20,
			MaxOrdersPerSymbol: 3,
			MaxExposureLots:    10.0,
			MaxExposureTrades:  0, // disabled by policy
			MaxDrawdownPercent: 0, // disabled by policy
			MaxAgeMillis:       10000,
			StrictCleanup:      true,
			SyncIntervalSec:    30,
		},
		System: SystemConfig{
			TickIntervalMillis:    1000,
			PublishIntervalMillis: 10,
			SnapshotPath:          "master_state.json",
		},
		Ledger: LedgerConfig{
			Type: "file",
			Path: "copied_trades.json",
		},
	}
}
