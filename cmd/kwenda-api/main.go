// README: Entry point; loads config, wires stores, event bus and services, then serves HTTP.
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kwenda/internal/config"
	"kwenda/internal/events"
	httptransport "kwenda/internal/http"
	"kwenda/internal/infra"
	"kwenda/internal/logger"
	"kwenda/internal/maps"
	"kwenda/internal/modules/assignment"
	"kwenda/internal/modules/dispatch"
	"kwenda/internal/modules/location"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatal(err)
	}
	log, err := logger.New(cfg.Log.Env, "kwenda-api", cfg.Log.Level)
	if err != nil {
		stdlog.Fatal(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("kwenda-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if cfg.Firebase.ProjectID == "" {
		return fmt.Errorf("KWENDA_FIREBASE_PROJECT_ID is required")
	}
	fbApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase)
	if err != nil {
		return err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, fbApp)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Dispatch.CandidateSource == config.SourceRedis || cfg.Events.Backend == config.BackendRedis {
		rdb, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	publisher, subscriber, closeBus := newEventBus(cfg.Events, rdb, log.Named("events"))
	defer closeBus()

	var repo assignment.Repository = assignment.NewMemoryRepository()
	var snapshots location.SnapshotWriter
	if cfg.DB.Enabled {
		if cfg.DB.AutoMigrate {
			if err := infra.Migrate(ctx, cfg.DB.DSN, cfg.DB.MigrationsPath, log.Named("migrate")); err != nil {
				return err
			}
		}
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer dbPool.Close()
		repo = assignment.NewStore(dbPool)
		snapshots = location.NewStore(dbPool)
	} else {
		log.Warn("database disabled, assignments are kept in memory")
	}

	deps, pool, err := newDispatchDeps(ctx, cfg, fbApp, rdb, log)
	if err != nil {
		return err
	}

	assignmentSvc := assignment.NewService(repo, publisher, cfg.Dispatch.OfferTTL(), log.Named("assignment"))
	deps.Recorder = assignmentSvc
	deps.Bus = publisher
	dispatchSvc := dispatch.NewService(deps, cfg.Dispatch, log.Named("dispatch"))
	locationSvc := location.NewService(pool, snapshots, publisher, log.Named("location"))

	if ttl := cfg.Dispatch.OfferTTL(); ttl > 0 {
		go assignmentSvc.RunExpiryMonitor(ctx, max(ttl/2, time.Second))
	}

	server := httptransport.NewServer(httptransport.ServerDeps{
		Dispatch:    dispatchSvc,
		Assignments: assignmentSvc,
		Location:    locationSvc,
		Events:      subscriber,
		Verifier:    verifier,
		Log:         log.Named("http"),
	})
	return server.Run(ctx, cfg.HTTP.Addr)
}

// newEventBus picks the outcome transport. Kafka has no subscriber side
// here, so events are mirrored to an in-process bus for the SSE stream.
func newEventBus(cfg config.EventsConfig, rdb *redis.Client, log *zap.Logger) (events.Publisher, events.Subscriber, func()) {
	switch cfg.Backend {
	case config.BackendRedis:
		bus := events.NewRedisBus(rdb, cfg.Channel, log)
		return bus, bus, func() {}
	case config.BackendKafka:
		kafka := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		local := events.NewMemoryBus(64, log)
		return events.Fanout{kafka, local}, local, func() {
			if err := kafka.Close(); err != nil {
				log.Warn("closing kafka writer", zap.Error(err))
			}
		}
	default:
		bus := events.NewMemoryBus(64, log)
		return bus, bus, func() {}
	}
}

// newDispatchDeps builds the candidate source, the pool location updates
// write to, and the optional notifier and route ETA.
func newDispatchDeps(ctx context.Context, cfg config.Config, fbApp *firebase.App, rdb *redis.Client, log *zap.Logger) (dispatch.ServiceDeps, location.DriverPool, error) {
	var deps dispatch.ServiceDeps
	var pool location.DriverPool

	var fb *location.FirebaseService
	if cfg.Firebase.DatabaseURL != "" {
		var err error
		fb, err = location.NewFirebaseService(ctx, fbApp, log.Named("firebase"))
		if err != nil {
			return deps, nil, err
		}
		deps.Notifier = fb
	}

	switch cfg.Dispatch.CandidateSource {
	case config.SourceRedis:
		store := dispatch.NewStore(rdb)
		deps.Source, pool = store, store
	case config.SourceFirebase:
		// Drivers write RTDB directly; API location reports stay local.
		deps.Source = fb
		pool = dispatch.NewMemoryPool()
	default:
		mem := dispatch.NewMemoryPool()
		deps.Source, pool = mem, mem
	}

	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return deps, nil, err
		}
		deps.ETA = routes
	}
	log.Info("dispatch wired",
		zap.String("source", cfg.Dispatch.CandidateSource),
		zap.Bool("notifier", deps.Notifier != nil),
		zap.Bool("route_eta", deps.ETA != nil))
	return deps, pool, nil
}
