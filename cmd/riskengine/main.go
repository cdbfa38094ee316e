// Package main provides the risk engine CLI.
// Subcommands: assess, simulate, check-user.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cometguard/internal/cache"
	"cometguard/internal/config"
	"cometguard/internal/domain"
	"cometguard/internal/engine"
	"cometguard/internal/provider"
	"cometguard/internal/reporting"
)

const usage = `Usage: riskengine [flags] <command> [command flags]

Commands:
  assess      Assess risks for the configured Compound V3 markets
  simulate    Run what-if scenarios against one market
  check-user  Check a user's position for liquidation risk

Flags:
  -config string     Path to configuration file (default "config.yaml")
  -log-level string  Log level: debug, info, warn, error
`

func main() {
	globals := flag.NewFlagSet("riskengine", flag.ExitOnError)
	configPath := globals.String("config", "config.yaml", "Path to configuration file")
	logLevel := globals.String("log-level", "", "Log level (overrides config)")
	globals.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	globals.Parse(os.Args[1:])

	args := globals.Args()
	if len(args) == 0 {
		globals.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "assess":
		err = runAssess(ctx, eng, cfg, args[1:])
	case "simulate":
		err = runSimulate(ctx, eng, cfg, args[1:])
	case "check-user":
		err = runCheckUser(ctx, eng, cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		globals.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds a production zap logger at the given level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// buildEngine wires the snapshot provider, cache and orchestrator from
// config. Without an RPC endpoint the engine runs against the built-in
// mocked market data.
func buildEngine(cfg *config.Config, logger *zap.Logger) (*engine.Engine, error) {
	var snapProvider provider.SnapshotProvider
	if cfg.RPCURL == "" {
		logger.Info("no rpc_url configured, using mocked market data")
		snapProvider = provider.NewStub()
	} else {
		client, err := provider.NewCometClient(cfg.RPCURL, cfg.Markets, logger)
		if err != nil {
			return nil, fmt.Errorf("create comet client: %w", err)
		}
		snapProvider = client
	}

	return engine.New(engine.Options{
		Provider:    snapProvider,
		Cache:       cache.New(time.Duration(cfg.Cache.TTLSeconds)*time.Second, int(cfg.Cache.MaxCapacity)),
		Params:      cfg.Risk,
		Parallelism: int(cfg.Assessment.Parallelism),
		Timeout:     time.Duration(cfg.Assessment.TimeoutSeconds) * time.Second,
		Logger:      logger,
	}), nil
}

// selectMarkets filters the configured markets by an optional address.
func selectMarkets(cfg *config.Config, market string) ([]string, error) {
	if market == "" {
		return cfg.MarketIDs(), nil
	}
	for _, id := range cfg.MarketIDs() {
		if id == market {
			return []string{id}, nil
		}
	}
	return nil, fmt.Errorf("market %s is not configured", market)
}

func runAssess(ctx context.Context, eng *engine.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("assess", flag.ExitOnError)
	market := fs.String("market", "", "Address of the Comet proxy (default: all configured)")
	format := fs.String("format", "text", "Output format: text, markdown, csv, json")
	withMetrics := fs.Bool("metrics", false, "Append protocol metrics to the report")
	fs.Parse(args)

	outFormat, ok := reporting.ParseFormat(*format)
	if !ok {
		return fmt.Errorf("unknown format %q", *format)
	}

	ids, err := selectMarkets(cfg, *market)
	if err != nil {
		return err
	}

	results := eng.AssessRisks(ctx, ids)

	switch outFormat {
	case reporting.FormatMarkdown:
		fmt.Print(reporting.RenderAssessmentMarkdown(results, time.Now().UTC()))
	case reporting.FormatCSV:
		fmt.Print(reporting.RenderAssessmentCSV(results))
	case reporting.FormatJSON:
		return printJSON(results)
	default:
		fmt.Print(reporting.RenderAssessmentText(results))
	}
	if *withMetrics && outFormat == reporting.FormatText {
		fmt.Print("\n" + reporting.RenderProtocolText(eng.ProtocolMetrics(ctx, ids)))
	}
	return nil
}

func runSimulate(ctx context.Context, eng *engine.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	market := fs.String("market", "", "Address of the Comet proxy (default: first configured)")
	utilDelta := fs.Float64("util-delta", 0.10, "Utilization shift to apply")
	shockAsset := fs.String("shock-asset", "", "Collateral asset to shock (address or symbol)")
	shockDelta := fs.Float64("shock-delta", -0.20, "Price shock fraction, negative for a drop")
	maxDrop := fs.Float64("max-drop", 0.25, "Cascade stress test price drop bound")
	format := fs.String("format", "text", "Output format: text, json")
	fs.Parse(args)

	ids, err := selectMarkets(cfg, *market)
	if err != nil {
		return err
	}
	marketID := ids[0]

	scenarios := []domain.Scenario{
		domain.UtilizationShift{Delta: *utilDelta},
	}
	if *shockAsset != "" {
		scenarios = append(scenarios, domain.PriceShock{
			AssetID:       *shockAsset,
			DeltaFraction: *shockDelta,
		})
	}
	scenarios = append(scenarios, domain.CascadeStressTest{MaxPriceDrop: *maxDrop})

	outcomes, err := eng.Simulate(ctx, marketID, scenarios)
	if err != nil {
		return err
	}

	if *format == "json" {
		return printJSON(outcomes)
	}
	fmt.Print(reporting.RenderSimulationText(marketID, outcomes))
	return nil
}

func runCheckUser(ctx context.Context, eng *engine.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("check-user", flag.ExitOnError)
	market := fs.String("market", "", "Address of the Comet proxy (default: first configured)")
	user := fs.String("user", "", "Address of the user to check")
	format := fs.String("format", "text", "Output format: text, json")
	fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("-user is required")
	}

	ids, err := selectMarkets(cfg, *market)
	if err != nil {
		return err
	}

	report, err := eng.CheckUser(ctx, ids[0], *user)
	if err != nil {
		return err
	}

	if *format == "json" {
		return printJSON(report)
	}
	fmt.Print(reporting.RenderUserText(report))
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
