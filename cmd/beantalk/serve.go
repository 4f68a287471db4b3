package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/shepherdwind/bean-talk/internal/config"
	"github.com/shepherdwind/bean-talk/internal/coordinator"
	"github.com/shepherdwind/bean-talk/internal/metrics"
	"github.com/shepherdwind/bean-talk/internal/scheduler"
	"github.com/shepherdwind/bean-talk/internal/telegram"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan schedule and the Telegram bot",
		Long: `Run bean-talk as a long-lived service.

It scans Gmail for DBS alerts on startup and on the cron schedule, records
every transaction whose merchant has a category, and asks on Telegram about
the rest, one merchant at a time.`,
		RunE: runServe,
	}

	cmd.Flags().Bool("no-startup-scan", false, "Skip the scan on startup")
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics and /healthz (empty uses metrics.addr)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	tgCfg, err := config.LoadTelegramConfig()
	if err != nil {
		return err
	}
	bot, err := telegram.NewBot(tgCfg.Token, nil)
	if err != nil {
		return err
	}
	notifier := telegram.NewNotifier(bot)

	mailbox, err := initMailbox(ctx)
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, mailbox, notifier, tgCfg.ChatID)
	if err != nil {
		return err
	}
	defer p.Close()

	deps := coordinator.Deps{
		Store:    p.store,
		Bus:      p.bus,
		Queue:    p.queue,
		Notifier: notifier,
		Recorder: p.scanner,
		Scanner:  p.scanner,
		Journal:  p.journal,
		Metrics:  p.metrics,
	}
	suggester, err := initSuggester(p.metrics)
	if err != nil {
		return err
	}
	if suggester != nil {
		defer suggester.Close()
		deps.Suggester = suggester
	}

	coord := coordinator.New(deps, coordinator.Config{
		Mentions:              tgCfg.Mentions,
		DefaultExpenseAccount: p.ledgerCfg.DefaultExpenseAccount,
		CashAccount:           p.ledgerCfg.CashAccount,
		DefaultCurrency:       p.ledgerCfg.Currency,
		NotifyRetry:           config.NotifyRetry(),
		ChatID:                tgCfg.ChatID,
		ReportDays:            viper.GetInt("report.days"),
	})
	coord.Register()

	sched, err := scheduler.New(config.Schedule(), func(ctx context.Context) {
		if _, err := p.scanner.Trigger(ctx); err != nil {
			slog.Error("Scheduled scan failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	poller := telegram.NewPoller(bot, coord, tgCfg.ChatID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })

	noStartup, _ := cmd.Flags().GetBool("no-startup-scan")
	if viper.GetBool("schedule.startup_scan") && !noStartup {
		g.Go(func() error {
			if _, err := p.scanner.Trigger(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Startup scan failed", "error", err)
			}
			return nil
		})
	}

	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = viper.GetString("metrics.addr")
	}
	if addr != "" {
		g.Go(func() error { return serveMetrics(ctx, addr, p.metrics) })
	}

	slog.Info("bean-talk is running",
		"chat_id", tgCfg.ChatID,
		"schedule", config.Schedule(),
		"metrics", addr,
		"suggestions", suggester != nil)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Shut down cleanly")
	return nil
}

// serveMetrics runs the metrics router until ctx is done.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewRouter(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
