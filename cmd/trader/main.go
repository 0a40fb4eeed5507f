package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"trader/internal/broker"
	"trader/internal/candles"
	"trader/internal/engine"
	"trader/internal/ledger"
	"trader/internal/obs"
	"trader/internal/ops"
	"trader/internal/reconcile"
	"trader/internal/risk"
	"trader/internal/schema"
	"trader/internal/strategy"
	"trader/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	interval := flag.Duration("interval", 0, "Run continuously with this period (0 = run once)")
	engageKill := flag.String("engage-kill", "", "Engage the kill switch with this reason and exit")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	kill := ops.NewKillSwitch(cfg.Paths.KillSwitch)
	if *engageKill != "" {
		if err := kill.Engage(*engageKill); err != nil {
			log.Fatalf("engage kill switch failed: %v", err)
		}
		logs.Warnf("kill switch engaged at %s", kill.Path())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observ.PyroscopeURL != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   cfg.Observ.PyroscopeURL,
			Tags:            map[string]string{"mode": string(cfg.Mode)},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	metrics := obs.NewMetrics()
	metrics.Serve(cfg.Observ.MetricsAddr)

	runner, err := buildRunner(cfg, kill, metrics)
	if err != nil {
		log.Fatalf("wiring failed: %v", err)
	}

	if *interval <= 0 {
		if err := runner.Run(ctx); err != nil {
			log.Fatalf("run failed: %v", err)
		}
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	logs.Infof("running every %s, mode %s", *interval, cfg.Mode)
	for {
		if err := runner.Run(ctx); err != nil {
			logs.Errorf("run failed: %+v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-sys.Shutdown():
			return
		case <-ticker.C:
		}
	}
}

func buildRunner(cfg ops.Loaded, kill *ops.KillSwitch, metrics *obs.Metrics) (*engine.Runner, error) {
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	source := engine.CandleSourceFunc(func(symbol string) ([]schema.Candle, error) {
		return candles.LoadCSV(candlePath(cfg.Paths.DataDir, symbol))
	})

	var b broker.Broker
	switch cfg.Mode {
	case ops.ModeLive:
		b = broker.NewLive(cfg.Live.Broker)
	default:
		paper := broker.NewPaper(cfg.BaseCcy, cfg.QuoteCcy, cfg.Sim.InitialCash, cfg.Sim.FeeRate)
		for _, symbol := range cfg.Symbols {
			window, err := source.Candles(symbol)
			if err != nil || len(window) == 0 {
				continue
			}
			last := window[len(window)-1]
			// Full spread of twice the slippage puts each side of the book
			// one slippage step away from the close, matching backtest fills.
			paper.SetTicker(symbol, last.Close, cfg.Sim.SlippageBps*2, last.TsMs)
		}
		b = paper
	}

	guard := risk.NewGuard(cfg.Risk, store, cfg.QuoteCcy, cfg.GuardCcy, cfg.Live.QuoteToGuard)
	recon := reconcile.New(store, b, cfg.Symbols, cfg.Live.ReconcileWindow, cfg.Paths.DataDir)
	alerter := ops.NewAlerter(cfg.Paths.AlertDir, nil)

	return engine.NewRunner(
		cfg, store, b, guard, strategy.DefaultRegistry(),
		kill, alerter, recon, metrics, source,
	), nil
}

func buildStore(cfg ops.Loaded) (ledger.Store, error) {
	if cfg.Paths.PostgresDSN != "" {
		client, err := conn.Open(cfg.Paths.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return ledger.NewPGStore(client.DB(), cfg.QuoteCcy)
	}
	return ledger.NewCSVStore(cfg.Paths.DataDir, cfg.QuoteCcy)
}

func candlePath(dataDir, symbol string) string {
	name := strings.NewReplacer("/", "_", "-", "_").Replace(symbol)
	return filepath.Join(dataDir, "candles", name+".csv")
}
