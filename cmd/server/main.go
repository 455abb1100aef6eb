package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/quarry-data/quarry/modules"
	catalogoutbox "github.com/quarry-data/quarry/modules/catalog/infrastructure/outbox"
	catalogservices "github.com/quarry-data/quarry/modules/catalog/services"
	"github.com/quarry-data/quarry/pkg/application"
	"github.com/quarry-data/quarry/pkg/authz"
	"github.com/quarry-data/quarry/pkg/configuration"
	"github.com/quarry-data/quarry/pkg/eventbus"
	"github.com/quarry-data/quarry/pkg/httpapi"
	"github.com/quarry-data/quarry/pkg/metrics"
	"github.com/quarry-data/quarry/pkg/middleware"
	"github.com/quarry-data/quarry/pkg/outbox"
	"github.com/quarry-data/quarry/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}

	authzService, err := authz.NewService(authz.Config{
		ModelPath:  conf.Authz.ModelPath,
		PolicyPath: conf.Authz.PolicyPath,
		Mode:       authz.Mode(conf.Authz.Mode),
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("failed to initialize authorization: %v", err)
	}
	authz.Setup(authzService)

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}

	indexer := app.Service(catalogservices.IndexService{}).(*catalogservices.IndexService)
	ensureSearchIndex(indexer, logger)
	startOutboxBackground(conf, pool, indexer, logger)

	app.RegisterControllers(server.NewHealthController(pool))
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	app.RegisterMiddleware(
		middleware.LogRequests(logger, conf.RequestIDHeader),
		middleware.WithPool(pool),
		middleware.WithActorID(conf.ActorIDHeader),
	)

	serverInstance := server.NewHTTPServer(
		app,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
		}),
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
		}),
	)
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// ensureSearchIndex is best effort at boot. A down search cluster must not
// keep the approval workflow from serving; the relay re-publishes once the
// cluster returns.
func ensureSearchIndex(indexer *catalogservices.IndexService, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := indexer.EnsureIndex(ctx); err != nil {
		logger.WithError(err).Warn("search index not ready; continuing without it")
	}
}

func startOutboxBackground(
	conf *configuration.Configuration,
	pool *pgxpool.Pool,
	indexer *catalogservices.IndexService,
	logger *logrus.Logger,
) {
	outboxLog := logger.WithField("component", "outbox")
	table := catalogservices.OutboxTable

	if conf.Outbox.RelayEnabled {
		dispatcher := catalogoutbox.NewIndexDispatcher(indexer, pool, logger)
		relay, err := outbox.NewRelay(pool, table, dispatcher, outbox.RelayOptions{
			PollInterval:    conf.Outbox.RelayPollInterval,
			BatchSize:       conf.Outbox.RelayBatchSize,
			LockTTL:         conf.Outbox.RelayLockTTL,
			MaxAttempts:     conf.Outbox.RelayMaxAttempts,
			SingleActive:    conf.Outbox.RelaySingleActive,
			LastErrorMaxLen: conf.Outbox.LastErrorMaxBytes,
			DispatchTimeout: conf.Outbox.RelayDispatchTimeout,
			Logger:          outboxLog.WithField("table", outbox.TableLabel(table)),
		})
		if err != nil {
			outboxLog.WithError(err).Warn("outbox: failed to create relay")
		} else {
			go func() {
				if err := relay.Run(context.Background()); err != nil {
					outboxLog.WithError(err).Error("outbox: relay stopped")
				}
			}()
		}
	}

	if conf.Outbox.CleanerEnabled {
		cleaner, err := outbox.NewCleaner(pool, table, outbox.CleanerOptions{
			Enabled:               true,
			Interval:              conf.Outbox.CleanerInterval,
			Retention:             conf.Outbox.CleanerRetention,
			DeadRetention:         conf.Outbox.CleanerDeadRetention,
			DeadAttemptsThreshold: conf.Outbox.RelayMaxAttempts,
			Logger:                outboxLog.WithField("table", outbox.TableLabel(table)),
		})
		if err != nil {
			outboxLog.WithError(err).Warn("outbox: failed to create cleaner")
			return
		}
		go func() {
			if err := cleaner.Run(context.Background()); err != nil {
				outboxLog.WithError(err).Error("outbox: cleaner stopped")
			}
		}()
	}
}
