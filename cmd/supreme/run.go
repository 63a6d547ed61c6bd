package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"supreme-bot/internal/analytics"
	"supreme-bot/internal/application"
	"supreme-bot/internal/audit"
	"supreme-bot/internal/bot"
	"supreme-bot/internal/config"
	"supreme-bot/internal/flow"
	"supreme-bot/internal/health"
	"supreme-bot/internal/kv"
	"supreme-bot/internal/metrics"
	"supreme-bot/internal/playbook"
	"supreme-bot/internal/responder"
	"supreme-bot/internal/ticket"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve the flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(parent context.Context) error {
	cfg, err := config.LoadForRun()
	if err != nil {
		return err
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	backend, err := kv.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("kv store: %w", err)
	}
	defer backend.Close()
	logger.Info("kv store ready", zap.String("backend", backend.Kind()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)
	auditLogger := audit.NewLogger(store, logger)
	observers := []flow.Option{flow.WithObserver(auditLogger), flow.WithObserver(recorder)}

	session, err := bot.NewSession(cfg)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	messenger := bot.NewMessenger(session)

	appEngine, err := applicationEngine(cfg, backend, logger, observers...)
	if err != nil {
		return fmt.Errorf("application flow: %w", err)
	}
	app := application.NewService(appEngine, messenger, cfg.Application, auditLogger, logger)

	repo := ticket.NewRepository(store, logger)
	ticketEngine, err := tradeEngine(cfg, repo, logger, observers...)
	if err != nil {
		return fmt.Errorf("trade flow: %w", err)
	}
	gen, err := generator(cfg.GenAI, logger)
	if err != nil {
		return fmt.Errorf("genai: %w", err)
	}
	limits := budget(cfg.Ticket.GenerativeBudget)
	selector := responder.NewSelector(store, gen,
		responder.NewChooser(cfg.Ticket.TrainedWeight, cfg.Ticket.Seed),
		responder.Options{
			Timeout:  time.Duration(cfg.Ticket.ResponderTimeoutSeconds) * time.Second,
			Apology:  cfg.Ticket.Apology,
			Budget:   limits,
			Recorder: recorder,
		}, logger)
	tickets := ticket.NewService(cfg.Ticket, store, repo, ticketEngine, selector, messenger, logger)

	closer := playbook.New(playbook.Config{CloseDelaySeconds: cfg.Ticket.CloseDelaySeconds}, store, messenger, auditLogger, logger)
	closer.OnClosed(limits.Forget)

	b := bot.New(cfg, logger, store, session, messenger, bot.Services{
		Application: app,
		Tickets:     tickets,
		Closer:      closer,
		Audit:       auditLogger,
		Analytics:   analytics.New(store),
	})
	if err := b.Start(); err != nil {
		return fmt.Errorf("bot start: %w", err)
	}
	logger.Info("bot started")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Health.Enabled {
		server := health.NewServer(cfg.Health.Addr, registry, logger)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}
	g.Go(func() error {
		housekeeping(gctx, store, limits, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Close(shutdownCtx)
		return nil
	})
	return g.Wait()
}
