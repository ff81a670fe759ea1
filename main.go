package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mailflow/catalog"
	"mailflow/compliance"
	"mailflow/config"
	"mailflow/contacts"
	"mailflow/store"
	"mailflow/utils"
	"mailflow/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.WithError(err).Warn("sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	st, err := store.NewFileStore(cfg.TrackingDir, cfg.ContactsDir, logger)
	if err != nil {
		logger.Fatalf("failed to initialize state store: %v", err)
	}

	gate := compliance.NewGate(st, cfg.DailyLimit, cfg.PerDomainLimit, cfg.MinSendInterval, logger)
	tokens := compliance.NewTokenMinter(cfg.OptOutSecret, time.Duration(cfg.TokenTTLDays)*24*time.Hour)

	var mailer utils.Mailer
	if cfg.DryRun {
		logger.Info("dry-run mode: messages will be written to the outbox directory")
		mailer = utils.NewFileMailer(cfg.OutboxDir, cfg.FromEmail, cfg.FromName)
	} else {
		mailer = utils.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername,
			cfg.SMTPPassword, cfg.FromEmail, cfg.FromName)
	}

	runID := uuid.New().String()
	cat := catalog.New(cfg.TemplatesDir, catalog.StalePolicy(cfg.StalePolicy), logger)
	resolver := contacts.NewResolver(cfg.ContactsDir, logger)
	executor := worker.NewExecutor(gate, tokens, st, mailer, runID, cfg.MaxCooldownWait,
		cfg.OptOutBaseURL, cfg.FromName, cfg.PhysicalAddress, logger)
	runner := worker.NewRunner(cat, resolver, executor, st, mailer, runID, cfg.AlertsEmail, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		<-sigs
		logger.Info("shutdown requested, stopping after current recipient")
		cancel()
	}()

	if cfg.IMAPEnabled() {
		poller := worker.NewUnsubscribeWorker(gate, tokens, cfg.IMAPHost, cfg.IMAPPort,
			cfg.IMAPUsername, cfg.IMAPPassword, cfg.IMAPMailbox, cfg.IMAPPollInterval, logger)
		go poller.Start(ctx)
	}

	logger.WithField("run_id", runID).Info("campaign engine starting")

	if cfg.WatchCron != "" {
		runOnSchedule(ctx, cfg.WatchCron, runner, logger)
		return
	}

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		sentry.CaptureException(err)
		logger.Fatalf("run failed: %v", err)
	}
}

// runOnSchedule keeps the process alive and re-runs the engine on a cron
// schedule, for deployments that prefer one long-lived process over an
// external scheduler.
func runOnSchedule(ctx context.Context, spec string, runner *worker.Runner, logger *logrus.Logger) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			sentry.CaptureException(err)
			logger.WithError(err).Error("scheduled run failed")
		}
	})
	if err != nil {
		logger.Fatalf("invalid WATCH_CRON expression %q: %v", spec, err)
	}
	logger.WithField("cron", spec).Info("watch mode enabled")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(cfg.Environment) == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
