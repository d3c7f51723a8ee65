package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/browser"
	"github.com/xaenox/engagebot/internal/classifier"
	"github.com/xaenox/engagebot/internal/llm"
	"github.com/xaenox/engagebot/internal/metrics"
	"github.com/xaenox/engagebot/internal/notify"
	"github.com/xaenox/engagebot/internal/scheduler"
)

func newGateway(ctx context.Context) *llm.Gateway {
	providers := llm.Probe(ctx, cfg.Providers(), logger)
	return llm.NewGateway(providers, llm.Options{
		Order:            cfg.LLM.Order,
		DefaultMaxTokens: cfg.LLM.DefaultMaxTokens,
		BreakerFailures:  cfg.LLM.BreakerFailures,
		BreakerTimeout:   cfg.LLM.BreakerTimeout,
	}, logger)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	policies, err := cfg.ResolvePolicies()
	if err != nil {
		logger.Error("Failed to resolve account policies", zap.Error(err))
		return err
	}
	if len(policies) == 0 {
		logger.Warn("No accounts configured, nothing to do")
		return nil
	}

	backend := cfg.Ledger.Backend
	if dryRun {
		backend = "memory"
	}
	ledger, err := openLedger(ctx, backend)
	if err != nil {
		logger.Error("Failed to open ledger", zap.Error(err))
		return err
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger", zap.Error(err))
		}
	}()

	recorder, err := metrics.NewRecorder(cfg.Metrics.EventsDir, logger)
	if err != nil {
		logger.Error("Failed to initialize metrics", zap.Error(err))
		return err
	}
	defer recorder.Close()
	if cfg.Metrics.ListenAddr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logger.Error("Metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	gateway := newGateway(ctx)
	if len(gateway.Available()) == 0 {
		logger.Warn("No text generation provider available, composed actions will be skipped")
	}
	engine := classifier.NewEngine(gateway, classifier.Options{
		StructuredRetries: cfg.LLM.StructuredRetries,
		AnalysisMaxTokens: cfg.LLM.AnalysisMaxTokens,
	}, logger)

	connector := browser.NewConnector(browser.Config{
		BaseURL:           cfg.Browser.BaseURL,
		Bin:               cfg.Browser.Bin,
		Headless:          cfg.Browser.Headless,
		NoSandbox:         cfg.Browser.NoSandbox,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		ActionTimeout:     cfg.Browser.ActionTimeout,
		ScrollSettle:      cfg.Browser.ScrollSettle,
	}, logger)

	sched := scheduler.New(connector, engine, gateway, ledger, recorder, scheduler.Options{
		Concurrency:     cfg.Automation.Concurrency,
		MaxStallScrolls: cfg.Harvest.MaxStallScrolls,
		ScrollDelay:     cfg.Harvest.ScrollDelay,
	}, logger)

	start := time.Now()
	outcomes := sched.RunAll(ctx, policies)
	elapsed := time.Since(start)

	failed := 0
	for _, o := range outcomes {
		if o.Status() == "error" {
			failed++
		}
	}
	logger.Info("All accounts processed",
		zap.Int("accounts", len(outcomes)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", elapsed))

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		n, err := notify.New(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Error("Failed to create Telegram notifier", zap.Error(err))
		} else if err := n.Report(context.WithoutCancel(ctx), outcomes, elapsed); err != nil {
			logger.Error("Failed to send run report", zap.Error(err))
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("Run interrupted")
	}
	return nil
}
