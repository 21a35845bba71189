// Command agentstate is the administrative entry point for the state
// store:
//
//	agentstate migrate up                   # apply pending schema migrations
//	agentstate migrate status               # show schema version
//	agentstate truncate --full              # wipe all state
//	agentstate truncate --threads --runs    # wipe selected families
//	agentstate version                      # show build info
//
// Every command accepts --config pointing at a YAML file; environment
// variables with the AGENTSTATE prefix override it.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agentstate/agentstate/config"
	"github.com/agentstate/agentstate/internal/telemetry"
	"github.com/agentstate/agentstate/persistence"
	"github.com/agentstate/agentstate/state"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		runMigrate(os.Args[2:])
	case "truncate":
		runTruncate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runMigrate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: agentstate migrate <up|status> [--config path]")
		os.Exit(1)
	}
	sub := args[0]

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args[1:])

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	if cfg.Persistence.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "migrate requires a PostgreSQL backend; set persistence.database_url")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Persistence.DatabaseURL)
	if err != nil {
		logger.Fatal("opening database", zap.Error(err))
	}
	defer db.Close()

	ctx := signalContext()
	runner := persistence.NewMigrationRunner(db, logger)

	switch sub {
	case "up":
		if err := runner.Apply(ctx); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		version, err := runner.Version(ctx)
		if err != nil {
			logger.Fatal("reading schema version", zap.Error(err))
		}
		fmt.Printf("Migrations complete. Current version: %d\n", version)
	case "status":
		version, err := runner.Version(ctx)
		if err != nil {
			logger.Fatal("reading schema version", zap.Error(err))
		}
		pending, err := runner.Pending(ctx)
		if err != nil {
			logger.Fatal("reading pending migrations", zap.Error(err))
		}
		fmt.Printf("Current version: %d\nPending: %d\n", version, pending)
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runTruncate(args []string) {
	fs := flag.NewFlagSet("truncate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	full := fs.Bool("full", false, "Wipe everything")
	threads := fs.Bool("threads", false, "Wipe threads")
	runs := fs.Bool("runs", false, "Wipe runs")
	assistants := fs.Bool("assistants", false, "Wipe assistants and their versions")
	checkpoints := fs.Bool("checkpoints", false, "Wipe checkpoint history")
	store := fs.Bool("store", false, "Wipe user store namespaces")
	fs.Parse(args)

	opts := state.TruncateOptions{
		Full:        *full,
		Threads:     *threads,
		Runs:        *runs,
		Assistants:  *assistants,
		Checkpoints: *checkpoints,
		Store:       *store,
	}
	if opts == (state.TruncateOptions{}) {
		fmt.Fprintln(os.Stderr, "truncate requires at least one family flag (or --full)")
		os.Exit(1)
	}

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	ctx := signalContext()
	facade := persistence.NewFacade(cfg.Persistence.Backend(), logger, nil)
	if err := facade.Setup(ctx); err != nil {
		logger.Fatal("backend setup failed", zap.Error(err))
	}
	defer facade.Stop(context.Background())
	defer providers.Shutdown(context.Background())

	if err := state.Truncate(ctx, facade, opts, logger); err != nil {
		logger.Fatal("truncate failed", zap.Error(err))
	}
	fmt.Println("Truncate complete.")
}

func mustSetup(configPath string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg, initLogger(cfg.Log)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func printVersion() {
	fmt.Printf("agentstate %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: agentstate <command> [flags]

Commands:
  migrate up        Apply pending schema migrations (PostgreSQL backend)
  migrate status    Show current schema version and pending count
  truncate          Bulk-delete selected data families
  version           Show build information
  help              Show this message`)
}
