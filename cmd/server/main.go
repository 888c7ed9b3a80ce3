package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/dispatch"
	"github.com/uptimekit/incident-engine/internal/incident"
	"github.com/uptimekit/incident-engine/internal/janitor"
	"github.com/uptimekit/incident-engine/internal/realtime"
	"github.com/uptimekit/incident-engine/internal/sla"
	"github.com/uptimekit/incident-engine/internal/store"
	"github.com/uptimekit/incident-engine/internal/timeline"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("sla.tick_interval", time.Second)
	viper.SetDefault("sla.escalation_mode", string(incident.EscalationRepeatingWindow))
	viper.SetDefault("retention.schedule", "@daily")
	viper.SetDefault("retention.deleted_incidents", 30*24*time.Hour)
	viper.SetDefault("retention.timeline", 90*24*time.Hour)
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatal("Failed to read config file", zap.Error(err))
	}

	// Connect to NATS
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Open stores
	db, err := store.Open(viper.GetString("storage.path"))
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	incidents, err := store.NewSQLiteIncidentStore(logger.Named("incidents"), db)
	if err != nil {
		logger.Fatal("Failed to create incident store", zap.Error(err))
	}
	catalog, err := store.NewSQLiteCatalogStore(logger.Named("catalog"), db)
	if err != nil {
		logger.Fatal("Failed to create catalog store", zap.Error(err))
	}
	timelineStore, err := timeline.NewSQLiteStorage(logger.Named("timeline"), db)
	if err != nil {
		logger.Fatal("Failed to create timeline store", zap.Error(err))
	}

	// Dispatch boundary and realtime channel
	dispatcher, err := dispatch.NewDispatcher(js, logger.Named("dispatch"))
	if err != nil {
		logger.Fatal("Failed to create dispatcher", zap.Error(err))
	}
	publisher := realtime.NewPublisher(nc, logger.Named("realtime"))

	// SLA engine wired around the incident state machine. The registry
	// needs the service for breach recording and the service needs the
	// registry for timer control, so breach recording goes through a
	// late-bound recorder.
	recorder := &breachRecorder{}
	resolver := sla.NewResolver(catalog)
	registry := sla.NewRegistry(logger.Named("sla"), resolver, recorder,
		publisher, dispatcher, viper.GetDuration("sla.tick_interval"))

	service := incident.NewService(logger.Named("incident"), incidents, catalog,
		registry, dispatcher, publisher, timelineStore, incident.Options{
			EscalationMode: incident.EscalationMode(viper.GetString("sla.escalation_mode")),
		})
	recorder.service = service

	// Notification fan-out
	var channels []dispatch.Channel
	if viper.GetString("channels.webhook.url") != "" {
		channels = append(channels, dispatch.NewWebhookChannel(
			logger.Named("webhook"), viper.GetString("channels.webhook.url")))
	}
	if viper.GetString("channels.email.host") != "" {
		channels = append(channels, dispatch.NewEmailChannel(logger.Named("email"),
			dispatch.EmailConfig{
				Host:       viper.GetString("channels.email.host"),
				Port:       viper.GetInt("channels.email.port"),
				Username:   viper.GetString("channels.email.username"),
				Password:   viper.GetString("channels.email.password"),
				From:       viper.GetString("channels.email.from"),
				Recipients: viper.GetStringSlice("channels.email.recipients"),
			}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := dispatch.NewWorker(logger.Named("dispatch"), js, channels...)
	if err := worker.Start(ctx); err != nil {
		logger.Fatal("Failed to start dispatch worker", zap.Error(err))
	}

	// Retention jobs
	cleaner := janitor.New(logger.Named("janitor"), incidents, timelineStore, janitor.Config{
		Schedule:                 viper.GetString("retention.schedule"),
		DeletedIncidentRetention: viper.GetDuration("retention.deleted_incidents"),
		TimelineRetention:        viper.GetDuration("retention.timeline"),
	})
	if err := cleaner.Start(ctx); err != nil {
		logger.Fatal("Failed to start janitor", zap.Error(err))
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	// Graceful shutdown. SLA timers are in-memory only; pending countdowns
	// do not survive a restart.
	cleaner.Stop()
	worker.Stop()
	registry.Stop()

	if err := nc.Drain(); err != nil {
		logger.Warn("Failed to drain NATS connection", zap.Error(err))
	}
	logger.Info("Server shutting down gracefully")
}

// breachRecorder breaks the construction cycle between the timer registry
// and the incident service.
type breachRecorder struct {
	service *incident.Service
}

func (r *breachRecorder) RecordBreach(ctx context.Context, incidentID, monitorID string) error {
	return r.service.RecordBreach(ctx, incidentID, monitorID)
}
