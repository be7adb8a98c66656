package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/domain"
	"relaybot/internal/forward"
	"relaybot/internal/logging"
	"relaybot/internal/maintenance"
	"relaybot/internal/metrics"
	"relaybot/internal/ops"
	"relaybot/internal/store"
	"relaybot/internal/telemetry"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start forwarding",
		Long:  "Connects the bot, imports rule files, starts the forwarding engine, the maintenance scheduler and the ops server. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Discord.Token == "" {
		return errors.New("discord.token is not set (config or RELAYBOT_DISCORD_TOKEN)")
	}

	log, closeLog, err := logging.New(cfg.General, cfg.Telemetry.Enabled)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	tel := telemetry.Noop()
	if cfg.Telemetry.Enabled {
		tel, err = telemetry.Init(cfg.Telemetry, version)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.General.RulesDir != "" {
		if err := importRulesDir(ctx, st, cfg.General.RulesDir); err != nil {
			return err
		}
	}

	checks := map[string]ops.Pinger{"sqlite": st}
	quota, closeQuota, err := openQuota(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeQuota()
	if rq, ok := quota.(*store.RedisQuota); ok {
		checks["redis"] = rq
	}

	events := bus.NewEventBus(logger)
	recorder := metrics.Attach(events)
	defer recorder.Detach()
	st.AttachLogWriter(events, logger)
	if cfg.Forward.AutoDeactivate {
		forward.DeactivateOnPermanentFailure(events, st, logger)
	}

	gateway, err := channel.NewDiscord(channel.DiscordConfig{
		Token:     cfg.Discord.Token,
		EmbedWait: seconds(cfg.Discord.EmbedWaitSeconds),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	session := gateway.Session()
	sender := channel.NewDiscordSender(channel.DiscordSenderConfig{
		API:             session,
		UseWebhooks:     cfg.Discord.UseWebhooks,
		WebhookName:     cfg.Discord.WebhookName,
		RatePerMinute:   cfg.Discord.SendRatePerMinute,
		Burst:           cfg.Discord.SendBurst,
		MaxRequestBytes: cfg.Discord.MaxRequestBytes,
		Logger:          logger,
	})
	gateway.IgnoreWebhooks(sender.OwnsWebhook)
	directory := channel.NewDiscordDirectory(session, cfg.Forward.CapacityLimits())

	engine, err := forward.NewEngine(forward.EngineConfig{
		Rules:             st,
		Capacity:          directory,
		Reach:             directory,
		Sender:            sender,
		Quota:             quota,
		Events:            events,
		Limits:            cfg.Forward.CapacityLimits(),
		SendTimeout:       time.Duration(cfg.Forward.SendTimeoutSeconds) * time.Second,
		DefaultDailyLimit: cfg.Forward.DefaultDailyLimit,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	if err := gateway.Open(); err != nil {
		return err
	}
	checks["discord"] = ops.PingFunc(func(context.Context) error {
		if !session.DataReady {
			return errors.New("gateway not ready")
		}
		return nil
	})

	inbound := bus.New(cfg.Forward.BusBuffer, logger)

	// In-flight deliveries may finish after the signal.
	engineCtx, cancelEngine := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelEngine()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(engineCtx, inbound); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", "err", err)
		}
	}()

	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		if err := gateway.Start(ctx, inbound); err != nil {
			logger.Error("discord gateway error", "err", err)
		}
	}()

	scheduler := maintenance.NewScheduler(logger)
	if err := scheduler.AddTask(maintenance.PruneTask(st, cfg.Store.PruneSchedule, cfg.Store.RetentionDays, logger)); err != nil {
		return err
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()

	if cfg.Ops.Enabled {
		srv := ops.NewServer(ops.Config{
			Addr:    cfg.Ops.Addr,
			Version: version,
			Checks:  checks,
			Log:     st,
			Events:  events,
			Logger:  logger,
		})
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("ops server error", "err", err)
			}
		}()
	}

	logger.Info("relaybot running", "version", version, "config", cfgPath, "webhooks", cfg.Discord.UseWebhooks)

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-gatewayDone
		inbound.Close()
		// Run submits whatever is still buffered before it returns.
		<-engineDone
		engine.Wait()
		wg.Wait()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, abandoning in-flight deliveries")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}
	cancelEngine()

	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "err", err)
	}
	return shutdownErr
}

// openQuota returns the daily quota counter selected by quota.backend.
func openQuota(ctx context.Context, cfg *config.Config, st *store.SQLiteStore) (domain.QuotaCounter, func(), error) {
	if cfg.Quota.Backend != "redis" {
		return st, func() {}, nil
	}
	rq, err := store.NewRedisQuota(ctx, cfg.Quota.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return rq, func() { rq.Close() }, nil
}

func importRulesDir(ctx context.Context, st *store.SQLiteStore, dir string) error {
	rules, err := store.LoadRulesDir(dir, logger)
	if err != nil {
		return fmt.Errorf("load rules from %s: %w", dir, err)
	}
	if len(rules) == 0 {
		return nil
	}
	n, err := st.ImportRules(ctx, rules)
	if err != nil {
		return err
	}
	logger.Info("rules imported", "dir", dir, "count", n)
	return nil
}

func seconds(values []int) []time.Duration {
	if values == nil {
		return nil
	}
	out := make([]time.Duration, 0, len(values))
	for _, v := range values {
		out = append(out, time.Duration(v)*time.Second)
	}
	return out
}
