package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/shepherdwind/bean-talk/internal/bus"
	"github.com/shepherdwind/bean-talk/internal/category"
	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/config"
	"github.com/shepherdwind/bean-talk/internal/gmail"
	"github.com/shepherdwind/bean-talk/internal/ingest"
	"github.com/shepherdwind/bean-talk/internal/ledger"
	"github.com/shepherdwind/bean-talk/internal/llm"
	"github.com/shepherdwind/bean-talk/internal/metrics"
	"github.com/shepherdwind/bean-talk/internal/parser"
	"github.com/shepherdwind/bean-talk/internal/queue"
	"github.com/shepherdwind/bean-talk/internal/service"
	"github.com/shepherdwind/bean-talk/internal/storage"
	"github.com/shepherdwind/bean-talk/internal/telegram"
)

// initStorage opens the journal and applies migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	journal, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, err
	}
	if err := journal.Migrate(ctx); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return journal, nil
}

// initMailbox authorizes against Gmail with the saved token.
func initMailbox(ctx context.Context) (*gmail.Client, error) {
	cfg, err := config.LoadGmailConfig()
	if err != nil {
		return nil, err
	}
	httpClient, err := gmail.HTTPClient(ctx, gmail.OAuth2Config{
		CredentialsFile: cfg.CredentialsPath,
		TokenFile:       cfg.TokenPath,
		CallbackAddr:    cfg.CallbackAddr,
	})
	if err != nil {
		return nil, err
	}
	return gmail.NewClient(ctx, httpClient, cfg.Query)
}

// initSuggester returns nil when no API key is configured.
func initSuggester(m *metrics.Metrics) (*llm.Suggester, error) {
	cfg, enabled, err := config.LoadLLMConfig()
	if err != nil {
		return nil, err
	}
	if !enabled {
		slog.Info("No LLM API key configured, category suggestions disabled")
		return nil, nil
	}
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return llm.NewSuggester(client, cfg, m), nil
}

// optionalTelegram loads the bot when it is configured. Commands that can
// run without chat notifications use it.
func optionalTelegram() (service.Notifier, *config.TelegramConfig) {
	cfg, err := config.LoadTelegramConfig()
	if err != nil {
		if !errors.Is(err, common.ErrMissingConfig) {
			slog.Warn("Ignoring telegram configuration", "error", err)
		}
		return nil, nil
	}
	bot, err := telegram.NewBot(cfg.Token, nil)
	if err != nil {
		slog.Warn("Telegram unavailable, notifications disabled", "error", err)
		return nil, nil
	}
	return telegram.NewNotifier(bot), cfg
}

// pipeline holds the components shared by serve, check and import.
type pipeline struct {
	store     *category.Store
	journal   *storage.SQLiteStorage
	ledgerCfg *config.LedgerConfig
	bus       *bus.Bus
	queue     *queue.Queue
	scanner   *ingest.Scanner
	metrics   *metrics.Metrics
}

func (p *pipeline) Close() {
	if p.journal != nil {
		if err := p.journal.Close(); err != nil {
			slog.Warn("Failed to close journal", "error", err)
		}
	}
}

// newPipeline wires the category store, journal, ledger, bus, queue and
// scanner. mailbox and notifier may be nil.
func newPipeline(ctx context.Context, mailbox service.Mailbox, notifier service.Notifier, chatID int64) (*pipeline, error) {
	ledgerCfg, err := config.LoadLedgerConfig()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureFileDirs(ledgerCfg.Path, config.CategoryPath(), config.DatabasePath()); err != nil {
		return nil, err
	}
	store, err := category.Open(config.CategoryPath())
	if err != nil {
		return nil, err
	}
	journal, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		store:     store,
		journal:   journal,
		ledgerCfg: ledgerCfg,
		bus:       bus.New(),
		metrics:   metrics.New(),
	}

	p.queue = queue.New(p.bus,
		queue.WithObserver(p.metrics.SetQueueLength),
		queue.WithDrainHook(func(ctx context.Context) {
			p.scanner.ScanAfterDrain(ctx)
		}),
	)

	p.scanner = ingest.New(ingest.Deps{
		Mailbox:  mailbox,
		Parsers:  parser.NewRegistry(parser.NewDBS(time.Now)),
		Store:    store,
		Ledger:   ledger.NewWriter(ledgerCfg.Path),
		Journal:  journal,
		Bus:      p.bus,
		Notifier: notifier,
		Metrics:  p.metrics,
	}, ingest.Config{
		AssetAccounts:       ledgerCfg.AssetAccounts,
		DefaultAssetAccount: ledgerCfg.DefaultAssetAccount,
		NotifyRetry:         config.NotifyRetry(),
		ChatID:              chatID,
	})

	slog.Debug("Pipeline ready",
		"ledger", ledgerCfg.Path,
		"categories", store.Path(),
		"database", config.DatabasePath(),
		"report_days", viper.GetInt("report.days"))
	return p, nil
}
