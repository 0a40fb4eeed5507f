// Package ops holds operator-facing concerns: the JSON run configuration,
// the kill switch and once-per-day alerting. Anything a human touches while
// the engine runs lives here.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"trader/internal/broker"
	"trader/internal/risk"
)

// Mode selects which broker backs a run.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Mode     string              `json:"mode"`
	Symbols  []string            `json:"symbols"`
	QuoteCcy string              `json:"quote_ccy"`
	GuardCcy string              `json:"guard_ccy"`
	BaseCcy  string              `json:"base_ccy"`
	Strategy StrategyConfig      `json:"strategy"`
	Sim      SimConfig           `json:"sim"`
	Risk     risk.Limits         `json:"risk"`
	Live     LiveConfig          `json:"live"`
	Paths    PathsConfig         `json:"paths"`
	Observ   ObservabilityConfig `json:"observability"`
}

// StrategyConfig selects the signal strategy and its parameters.
type StrategyConfig struct {
	ID     string             `json:"id"`
	Params map[string]float64 `json:"params"`
}

// SimConfig tunes the paper-trading simulator.
type SimConfig struct {
	MAShort     int     `json:"ma_short"`
	MALong      int     `json:"ma_long"`
	RiskPct     float64 `json:"risk_pct"`
	FeeRate     float64 `json:"fee_rate"`
	SlippageBps float64 `json:"slippage_bps"`
	InitialCash float64 `json:"initial_cash"`
}

// LiveConfig tunes the live broker. Credentials come from the environment,
// never from the config file.
type LiveConfig struct {
	BaseURL            string  `json:"base_url"`
	RecvWindowMs       int64   `json:"recv_window_ms"`
	AllowMarket        bool    `json:"allow_market"`
	Confirm            string  `json:"confirm"`
	DryRun             bool    `json:"dry_run"`
	SlipBps            float64 `json:"slip_bps"`
	MaxWaitSec         int     `json:"max_wait_sec"`
	PollSec            int     `json:"poll_sec"`
	MaxRetries         int     `json:"max_retries"`
	QuoteToGuard       float64 `json:"quote_to_guard"`
	ReconcileWindowHrs int     `json:"reconcile_window_hours"`
}

// PathsConfig locates the on-disk artifacts of a run.
type PathsConfig struct {
	DataDir     string `json:"data_dir"`
	StateFile   string `json:"state_file"`
	KillSwitch  string `json:"kill_switch"`
	AlertDir    string `json:"alert_dir"`
	PostgresDSN string `json:"postgres_dsn"`
}

// ObservabilityConfig enables the optional metrics and profiling endpoints.
type ObservabilityConfig struct {
	MetricsAddr  string `json:"metrics_addr"`
	PyroscopeURL string `json:"pyroscope_url"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Mode     Mode
	Symbols  []string
	QuoteCcy string
	GuardCcy string
	BaseCcy  string
	Strategy StrategyConfig
	Sim      SimConfig
	Risk     risk.Limits
	Live     LiveSpec
	Paths    PathsConfig
	Observ   ObservabilityConfig
}

// LiveSpec is the resolved live-broker definition with durations in place of
// raw counts.
type LiveSpec struct {
	Broker          broker.LiveConfig
	Armed           bool
	DryRun          bool
	Limit           broker.LimitSafeOpts
	QuoteToGuard    float64
	ReconcileWindow time.Duration
}

const (
	envAPIKey    = "EXCHANGE_API_KEY"
	envAPISecret = "EXCHANGE_API_SECRET"
)

// LiveConfirmPhrase must be typed verbatim into live.confirm before any
// live order leaves the process. A copied config file with a stale or
// missing phrase downgrades every order to a recorded BLOCKED_CONFIRM.
const LiveConfirmPhrase = "I-understand-live-trading-risk"

// Load reads a JSON config file and resolves it. Config errors are fatal by
// contract: the caller exits rather than running with a partial setup.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	mode := Mode(cfg.Mode)
	switch mode {
	case ModePaper, ModeLive:
	case "":
		mode = ModePaper
	default:
		return Loaded{}, fmt.Errorf("unknown mode: %q", cfg.Mode)
	}
	if len(cfg.Symbols) == 0 {
		return Loaded{}, fmt.Errorf("symbols is empty")
	}
	if cfg.QuoteCcy == "" {
		cfg.QuoteCcy = "USDT"
	}
	if cfg.GuardCcy == "" {
		cfg.GuardCcy = cfg.QuoteCcy
	}
	if cfg.BaseCcy == "" {
		cfg.BaseCcy = "BTC"
	}
	if err := validateSim(&cfg.Sim); err != nil {
		return Loaded{}, err
	}
	live, err := resolveLive(cfg.Live)
	if err != nil {
		return Loaded{}, err
	}
	if mode == ModeLive && !liveCredentialsPresent(live) {
		return Loaded{}, fmt.Errorf("live mode requires %s and %s in the environment", envAPIKey, envAPISecret)
	}
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = "data"
	}
	if cfg.Paths.StateFile == "" {
		cfg.Paths.StateFile = cfg.Paths.DataDir + "/paper_state.json"
	}
	if cfg.Paths.KillSwitch == "" {
		cfg.Paths.KillSwitch = cfg.Paths.DataDir + "/KILL_SWITCH"
	}
	if cfg.Paths.AlertDir == "" {
		cfg.Paths.AlertDir = cfg.Paths.DataDir + "/alerts"
	}
	return Loaded{
		Mode:     mode,
		Symbols:  cfg.Symbols,
		QuoteCcy: cfg.QuoteCcy,
		GuardCcy: cfg.GuardCcy,
		BaseCcy:  cfg.BaseCcy,
		Strategy: cfg.Strategy,
		Sim:      cfg.Sim,
		Risk:     cfg.Risk,
		Live:     live,
		Paths:    cfg.Paths,
		Observ:   cfg.Observ,
	}, nil
}

func validateSim(sim *SimConfig) error {
	if sim.MAShort == 0 {
		sim.MAShort = 20
	}
	if sim.MALong == 0 {
		sim.MALong = 100
	}
	if sim.MAShort >= sim.MALong {
		return fmt.Errorf("sim.ma_short (%d) must be < sim.ma_long (%d)", sim.MAShort, sim.MALong)
	}
	if sim.RiskPct < 0 || sim.RiskPct > 1 {
		return fmt.Errorf("sim.risk_pct must be in [0, 1], got %v", sim.RiskPct)
	}
	if sim.RiskPct == 0 {
		sim.RiskPct = 0.05
	}
	if sim.FeeRate < 0 {
		return fmt.Errorf("sim.fee_rate must be >= 0, got %v", sim.FeeRate)
	}
	if sim.SlippageBps < 0 {
		return fmt.Errorf("sim.slippage_bps must be >= 0, got %v", sim.SlippageBps)
	}
	if sim.InitialCash == 0 {
		sim.InitialCash = 10000
	}
	if sim.InitialCash < 0 {
		return fmt.Errorf("sim.initial_cash must be > 0, got %v", sim.InitialCash)
	}
	return nil
}

func liveCredentialsPresent(spec LiveSpec) bool {
	return spec.Broker.APIKey != "" && spec.Broker.APISecret != ""
}

func resolveLive(cfg LiveConfig) (LiveSpec, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.SlipBps == 0 {
		cfg.SlipBps = 5
	}
	if cfg.MaxWaitSec <= 0 {
		cfg.MaxWaitSec = 10
	}
	if cfg.PollSec <= 0 {
		cfg.PollSec = 1
	}
	if cfg.MaxRetries < 0 {
		return LiveSpec{}, fmt.Errorf("live.max_retries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.QuoteToGuard < 0 {
		return LiveSpec{}, fmt.Errorf("live.quote_to_guard must be > 0, got %v", cfg.QuoteToGuard)
	}
	if cfg.QuoteToGuard == 0 {
		cfg.QuoteToGuard = 1
	}
	if cfg.ReconcileWindowHrs <= 0 {
		cfg.ReconcileWindowHrs = 24
	}
	spec := LiveSpec{
		Broker: broker.LiveConfig{
			APIKey:       os.Getenv(envAPIKey),
			APISecret:    os.Getenv(envAPISecret),
			BaseURL:      cfg.BaseURL,
			RecvWindowMs: cfg.RecvWindowMs,
			AllowMarket:  cfg.AllowMarket,
		},
		Armed:  cfg.Confirm == LiveConfirmPhrase,
		DryRun: cfg.DryRun,
		Limit: broker.LimitSafeOpts{
			SlipBps:      cfg.SlipBps,
			MaxWait:      time.Duration(cfg.MaxWaitSec) * time.Second,
			PollInterval: time.Duration(cfg.PollSec) * time.Second,
			MaxRetries:   cfg.MaxRetries,
		},
		QuoteToGuard:    cfg.QuoteToGuard,
		ReconcileWindow: time.Duration(cfg.ReconcileWindowHrs) * time.Hour,
	}
	return spec, nil
}
