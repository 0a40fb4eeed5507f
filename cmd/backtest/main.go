package main

import (
	"encoding/csv"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/yanun0323/logs"

	"trader/internal/candles"
	"trader/internal/schema"
	"trader/internal/sim"
)

func main() {
	candlesPath := flag.String("candles", "", "OHLCV CSV file (required)")
	symbol := flag.String("symbol", "BTC/USDT", "Symbol label for trade records")
	statePath := flag.String("state", "", "State file for resumable runs (optional)")
	equityPath := flag.String("equity", "", "Write the equity curve as CSV to this file (optional)")
	maShort := flag.Int("ma-short", 20, "Short moving average window")
	maLong := flag.Int("ma-long", 100, "Long moving average window")
	riskPct := flag.Float64("risk-pct", 0.05, "Fraction of cash committed per entry")
	feeRate := flag.Float64("fee-rate", 0.001, "Taker fee rate")
	slipBps := flag.Float64("slippage-bps", 5, "Fill slippage in basis points")
	initialCash := flag.Float64("initial-cash", 10000, "Starting quote balance")
	flag.Parse()

	if *candlesPath == "" {
		log.Fatalf("-candles is required")
	}

	window, err := candles.LoadCSV(*candlesPath)
	if err != nil {
		log.Fatalf("load candles failed: %v", err)
	}

	simulator, err := sim.NewSimulator(sim.Config{
		Symbol:      *symbol,
		MAShort:     *maShort,
		MALong:      *maLong,
		RiskPct:     *riskPct,
		FeeRate:     *feeRate,
		SlippageBps: *slipBps,
		InitialCash: *initialCash,
	})
	if err != nil {
		log.Fatalf("simulator config invalid: %v", err)
	}

	state := sim.NewState(*initialCash)
	if *statePath != "" {
		state, err = sim.LoadState(*statePath, *initialCash)
		if err != nil {
			log.Fatalf("load state failed: %v", err)
		}
	}

	start := time.Now()
	result, err := simulator.Run(state, window)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	if *statePath != "" {
		if err := sim.SaveState(*statePath, result.State); err != nil {
			log.Fatalf("save state failed: %v", err)
		}
	}

	if *equityPath != "" {
		if err := writeEquityCurve(*equityPath, result.EquityCurve); err != nil {
			log.Fatalf("write equity curve failed: %v", err)
		}
	}

	lastClose := window[len(window)-1].Close
	logs.Infof("played %d candles in %s", len(window), time.Since(start).Round(time.Millisecond))
	logs.Infof("trades this run: %d (total %d)", len(result.Trades), result.State.TradesTotal)
	logs.Infof("cash %.2f, position %.8f, equity %.2f", result.State.CashQuote, result.State.PosBase, result.State.Equity(lastClose))
	logs.Infof("max drawdown %.2f%%", result.State.MaxDrawdownPct)
	for _, t := range result.Trades {
		logs.Infof("  %s %s %.8f @ %.2f (fee %.4f): %s",
			time.UnixMilli(t.TimeMs).UTC().Format(time.RFC3339), t.Side, t.Qty, t.Price, t.Fee, t.Reason)
	}
}

func writeEquityCurve(path string, curve []schema.EquityPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ts", "equity"}); err != nil {
		return err
	}
	for _, p := range curve {
		row := []string{
			strconv.FormatInt(p.TsMs, 10),
			strconv.FormatFloat(p.Equity, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
