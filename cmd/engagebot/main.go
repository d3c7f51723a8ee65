package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/storage"
	"github.com/xaenox/engagebot/pkg/config"
)

var (
	configPath string
	debug      bool
	dryRun     bool
	timeout    time.Duration

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "engagebot",
	Short:         "Multi-account social engagement automation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if debug {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			logger.Error("Failed to load config", zap.Error(err), zap.String("path", configPath))
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every active account once",
	RunE:  runAccounts,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the action ledger",
}

var ledgerTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List the action keys inside the retention window",
	RunE:  ledgerToday,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Probe the configured text generation providers",
	RunE:  listProviders,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Keep the ledger in memory instead of the configured backend")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop scheduling new actions after this long (0 means no limit)")

	ledgerCmd.AddCommand(ledgerTodayCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(providersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore(ctx context.Context, backend string) (storage.Store, error) {
	switch backend {
	case "memory":
		logger.Info("Using in-memory ledger")
		return storage.NewMemoryStore(), nil
	case "postgres":
		logger.Info("Using PostgreSQL ledger", zap.String("host", cfg.Database.Host), zap.String("dbname", cfg.Database.DBName))
		store, err := storage.NewPostgresStore(ctx, storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		logger.Info("Using CSV ledger", zap.String("path", cfg.Ledger.Path))
		store, err := storage.OpenCSVStore(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		if bad := store.BadRows(); bad > 0 {
			logger.Warn("Ledger file has malformed rows, ignoring them", zap.Int("rows", bad))
		}
		return store, nil
	}
}

func openLedger(ctx context.Context, backend string) (*storage.Ledger, error) {
	retention, err := storage.ParseRetention(cfg.Ledger.Retention)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, backend)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	ledger, err := storage.OpenLedger(ctx, store, retention, time.Now, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return ledger, nil
}
