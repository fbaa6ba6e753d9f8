package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/api"
	"github.com/firewatch/firewatch/internal/config"
	"github.com/firewatch/firewatch/internal/dispatch"
	"github.com/firewatch/firewatch/internal/ledger"
	"github.com/firewatch/firewatch/internal/logbuf"
	"github.com/firewatch/firewatch/internal/poller"
	"github.com/firewatch/firewatch/internal/rules"
	"github.com/firewatch/firewatch/internal/source"
	"github.com/firewatch/firewatch/internal/store"
	"github.com/firewatch/firewatch/internal/types"
	"github.com/firewatch/firewatch/internal/version"
)

func main() {
	configDir := flag.String("config", "/config", "Path to configuration directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Capture the last 1000 log entries for the /api/logs endpoint
	logBuffer := logbuf.New(1000)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logLevelParsed, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logLevelParsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevelParsed)

	// Write to both stdout and the log buffer
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	logger := zerolog.New(multiWriter).With().
		Timestamp().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Logger()

	logger.Info().Msg("Starting Firewatch")

	cfg, err := config.LoadConfigDir(*configDir, logger)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_dir", *configDir).
			Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: redis when configured, in-memory otherwise.
	var (
		alertStore store.Store
		readings   source.ReadingSource
	)
	if cfg.Monitor.RedisAddr != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.Monitor.RedisAddr)
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("redis_addr", cfg.Monitor.RedisAddr).
				Msg("Failed to connect to redis")
		}
		alertStore = redisStore
		readings = source.NewRedisSourceFromClient(redisStore.Client())
		logger.Info().
			Str("redis_addr", cfg.Monitor.RedisAddr).
			Msg("Using redis storage")
	} else {
		alertStore = store.NewMemoryStore()
		readings = source.NewMemorySource()
		logger.Warn().Msg("No redis address configured, alert history will not survive restarts")
	}
	defer alertStore.Close()

	// Rule set: configured rules, or the built-in defaults.
	var ruleSet []types.AlertRule
	if len(cfg.Rules) > 0 {
		for _, rc := range cfg.Rules {
			ruleSet = append(ruleSet, rc.ToRule())
		}
	} else {
		ruleSet = rules.DefaultRules(cfg.Monitor.Thresholds.CriticalRisk, cfg.Monitor.Thresholds.Smoke)
	}

	// Seed cooldowns from storage so a restart cannot re-fire rules
	// still inside their cooldown window.
	lastFired, err := alertStore.LastFired(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load cooldown state")
	}

	engine := rules.NewEngine(ruleSet, logger,
		rules.WithCooldownStore(alertStore),
		rules.WithLastFired(lastFired),
	)
	logger.Info().
		Int("rule_count", len(ruleSet)).
		Msg("Rule engine ready")

	// Notification channels
	stormGuard := dispatch.NewStormGuard(logger, cfg.Channels.StormGuard.MaxSends, cfg.Channels.StormGuard.Window)
	senders := []dispatch.Sender{
		dispatch.NewEmailSender(cfg.Channels.Email, logger),
		dispatch.NewSMSSender(cfg.Channels.SMS, readings, logger),
		dispatch.NewPushSender(cfg.Channels.Push, logger),
		dispatch.NewWebhookSender(cfg.Channels.Webhook, logger),
		dispatch.NewSirenSender(dispatch.NewHTTPSirenClient(cfg.Channels.Siren), logger),
	}
	dispatcher := dispatch.NewDispatcher(senders, logger,
		dispatch.WithSendTimeout(cfg.Channels.SendTimeout),
		dispatch.WithStormGuard(stormGuard),
	)

	// Escalation re-dispatches unacknowledged high/critical alerts once.
	escalator := dispatch.NewEscalator(logger, cfg.Channels.Escalation.Delay, func(alert types.Alert) {
		dispatcher.Dispatch(context.Background(), alert)
	})
	defer escalator.Stop()

	// Alert ledger, rebuilt from storage. Acknowledge and resolve both
	// cancel any pending escalation.
	alertLedger, err := ledger.NewLedger(ctx, alertStore, logger,
		ledger.WithAcknowledgedHook(escalator.Cancel),
		ledger.WithResolvedHook(escalator.Cancel),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize alert ledger")
	}

	// Fired alerts are recorded synchronously so the poll cursor only
	// advances past persisted alerts; delivery runs in the background.
	handleAlert := func(ctx context.Context, alert types.Alert) error {
		alertLedger.Record(ctx, alert)
		escalator.Start(alert)
		go dispatcher.Dispatch(context.Background(), alert)
		return nil
	}

	mon := poller.NewPoller(readings, engine, handleAlert, cfg.Monitor, logger)
	go mon.Run(ctx)

	server := api.NewServer(alertLedger, mon, engine, readings, logger, cfg.Monitor.APIPort)
	server.SetLogBuffer(logBuffer)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().
		Str("signal", sig.String()).
		Msg("Shutting down")
	cancel()
}
