// Worker consumes portal auth events from Kafka, pushes them to Loki, and stores them in Postgres
// when DATABASE_URL is set. Requires KAFKA_BROKERS and LOKI_URL; AUTH_EVENTS_KAFKA_TOPIC and
// KAFKA_GROUP_ID are optional.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"backoffice/portal/internal/config"
	"backoffice/portal/internal/db"
	"backoffice/portal/internal/logging"
	"backoffice/portal/internal/telemetry/consumer"
	"backoffice/portal/internal/telemetry/loki"
	"backoffice/portal/internal/telemetry/producer"
	telemetryrepo "backoffice/portal/internal/telemetry/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, 0, true).Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), true)

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}
	if cfg.LokiURL == "" {
		logger.Error("LOKI_URL is required")
		os.Exit(1)
	}
	topic := cfg.AuthEventsKafkaTopic
	if topic == "" {
		topic = producer.DefaultTopic
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var saver consumer.Saver
	if cfg.DatabaseURL != "" {
		var conn *sql.DB
		conn, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db open failed", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		saver = telemetryrepo.NewPostgresRepository(conn)
	}

	reader := consumer.NewReader(brokers, topic, cfg.KafkaGroupID)
	c := consumer.New(reader, loki.NewClient(cfg.LokiURL), saver, logger)

	logger.Info("worker started", "topic", topic, "group", reader.Config().GroupID, "loki", cfg.LokiURL, "postgres", saver != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("worker shutting down")
		return reader.Close()
	})
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
