package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"trader/internal/broker"
	"trader/internal/ledger"
	"trader/internal/ops"
	"trader/internal/reconcile"
	"trader/pkg/conn"
)

// Standalone reconciliation check, usable from cron. Exits with code 2 when the
// ledger and the exchange disagree so the schedule can page on it.
func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	var store ledger.Store
	if cfg.Paths.PostgresDSN != "" {
		client, err := conn.Open(cfg.Paths.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres open failed: %v", err)
		}
		defer client.Close()
		store, err = ledger.NewPGStore(client.DB(), cfg.QuoteCcy)
		if err != nil {
			log.Fatalf("ledger init failed: %v", err)
		}
	} else {
		store, err = ledger.NewCSVStore(cfg.Paths.DataDir, cfg.QuoteCcy)
		if err != nil {
			log.Fatalf("ledger init failed: %v", err)
		}
	}

	var b broker.Broker
	if cfg.Mode == ops.ModeLive {
		b = broker.NewLive(cfg.Live.Broker)
	} else {
		b = broker.NewPaper(cfg.BaseCcy, cfg.QuoteCcy, cfg.Sim.InitialCash, cfg.Sim.FeeRate)
	}

	recon := reconcile.New(store, b, cfg.Symbols, cfg.Live.ReconcileWindow, cfg.Paths.DataDir)
	res := recon.Run(context.Background())

	fmt.Printf("ok: %v\nreason: %s\n", res.OK, res.Reason)
	for _, d := range res.Discrepancies {
		fmt.Printf("  - %s\n", d)
	}
	if !res.OK {
		os.Exit(2)
	}
}
