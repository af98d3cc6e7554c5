package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-rental/internal/auth"
	"github.com/ukydev/fleet-rental/internal/config"
	"github.com/ukydev/fleet-rental/internal/consignment"
	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/events"
	"github.com/ukydev/fleet-rental/internal/handlers"
	"github.com/ukydev/fleet-rental/internal/users"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	logger := log.NewEntry(cfg.NewLogger()).WithField("service", "fleet-rental")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Entry) error {
	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	logger.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		return err
	}
	store := db.NewStore(database)

	publisher, closePublisher := buildPublisher(cfg, logger)
	defer closePublisher()

	authService, err := auth.NewService(auth.Options{
		Secret:       cfg.JWTSecret,
		TokenExpiry:  cfg.JWTExpiry,
		CookieName:   cfg.SessionCookie,
		SecureCookie: cfg.IsProduction(),
	})
	if err != nil {
		return err
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:     authService,
		Resolver: auth.NewResolver(authService, cfg.OracleTimeout, logger),
		Consignments: consignment.NewService(store.Consignments, store.Vehicles, logger,
			consignment.WithPublisher(publisher)),
		UserAdmin:    users.NewService(store.Users, logger),
		Users:        store.Users,
		Vehicles:     store.Vehicles,
		Log:          logger,
		Production:   cfg.IsProduction(),
		SubmitLimit:  cfg.SubmitRateLimit,
		SubmitWindow: cfg.SubmitRateWindow,
		HealthCheck: func(r *http.Request) error {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx, nil)
		},
	})

	srv := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.AppAddr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildPublisher connects to the MQTT broker when one is configured. A
// broker that cannot be reached disables events rather than the service.
func buildPublisher(cfg *config.Config, logger *log.Entry) (events.Publisher, func()) {
	if cfg.MQTTBroker == "" {
		logger.Info("MQTT broker not configured, lifecycle events disabled")
		return events.NopPublisher{}, func() {}
	}
	publisher, err := events.NewMQTTPublisher(events.MQTTOptions{
		BrokerURL:   cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		TopicPrefix: cfg.MQTTTopicPrefix,
		QoS:         1,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("MQTT unavailable, lifecycle events disabled")
		return events.NopPublisher{}, func() {}
	}
	return publisher, publisher.Close
}
