// Package app wires the dispatch service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/chachabrian/mooveit-dispatch/internal/auth"
	"github.com/chachabrian/mooveit-dispatch/internal/config"
	"github.com/chachabrian/mooveit-dispatch/internal/database"
	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/events"
	"github.com/chachabrian/mooveit-dispatch/internal/handlers"
	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/metrics"
	"github.com/chachabrian/mooveit-dispatch/internal/middleware"
	"github.com/chachabrian/mooveit-dispatch/internal/outbox"
	"github.com/chachabrian/mooveit-dispatch/internal/realtime"
	"github.com/chachabrian/mooveit-dispatch/internal/scheduler"
	"github.com/chachabrian/mooveit-dispatch/internal/services"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Deps overrides infrastructure. Assemble only uses what is set; New fills
// the rest from the configuration.
type Deps struct {
	DB    *gorm.DB
	Redis redis.UniversalClient
	Store store.Store
	Geo   services.GeoStore
	// Selector defaults to the driver directory.
	Selector    dispatch.CandidateSelector
	Revocations auth.Revocations
	Contacts    services.ContactBook
	// Messenger enables push notifications.
	Messenger services.Messenger
	Registry  *prometheus.Registry
	// Log replaces the stdout service logger.
	Log logger.Logger
}

// Service owns every long-lived component of the process.
type Service struct {
	Store        store.Store
	Bus          *events.Bus
	Relay        *outbox.Relay
	Scheduler    *scheduler.Scheduler
	Orchestrator *dispatch.Orchestrator
	Drivers      *services.DriverDirectory
	Realtime     *realtime.Registry
	Sessions     *auth.Sessions
	Router       *gin.Engine

	cfg    *config.Config
	log    logger.Logger
	deps   Deps
	kafka  *outbox.KafkaSink
	server *http.Server
}

// New connects to postgres, redis and firebase as configured and assembles
// the service on top of them.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logger.SetLevel(cfg.Logging.Level)
	log := logger.New("service")

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb, err := services.InitRedis(ctx, cfg.Redis.URL)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	deps := Deps{
		DB:       db,
		Redis:    rdb,
		Store:    store.NewGormStore(db),
		Geo:      services.NewRedisGeo(rdb),
		Contacts: services.NewUserDirectory(db),
	}
	fcm, err := services.InitFirebase(ctx, cfg.Push.ServiceAccountPath)
	if err != nil {
		log.Warnf("push disabled: %v", err)
	} else if fcm != nil {
		deps.Messenger = fcm
	}
	return Assemble(cfg, deps)
}

// Assemble builds the service from explicit dependencies. Without a store it
// runs on memory; without a geo store there is no driver directory and a
// Selector is required.
func Assemble(cfg *config.Config, deps Deps) (*Service, error) {
	log := deps.Log
	if log == nil {
		log = logger.New("service")
	}

	if deps.Store == nil {
		deps.Store = store.NewMemoryStore()
	}
	if deps.Contacts == nil {
		deps.Contacts = services.NewStaticUsers()
	}

	var sink metrics.Sink = metrics.NopSink{}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		if deps.Registry == nil {
			deps.Registry = prometheus.NewRegistry()
		}
		prom, err := metrics.NewPromSink(deps.Registry)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sink = prom
		metricsHandler = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
	}

	s := &Service{Store: deps.Store, cfg: cfg, log: log, deps: deps}
	s.Bus = events.NewBus(log.With("bus"))
	s.Relay = outbox.NewRelay(deps.Store, s.Bus, outbox.Options{
		PollInterval: cfg.Outbox.PollInterval(),
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		RetryBase:    time.Duration(cfg.Outbox.RetryBaseSeconds) * time.Second,
		RetryMax:     time.Duration(cfg.Outbox.RetryMaxSeconds) * time.Second,
	}, log.With("outbox"), sink)

	var locations dispatch.LocationLookup
	var availability realtime.Availability
	selector := deps.Selector
	if deps.Geo != nil {
		s.Drivers = services.NewDriverDirectory(deps.Geo, deps.DB, log.With("drivers"))
		s.Drivers.Listen(s.Bus)
		locations, availability = s.Drivers, s.Drivers
		if selector == nil {
			selector = s.Drivers
		}
	}
	if selector == nil {
		return nil, errors.New("app: no candidate selector configured")
	}

	// The scheduler needs the orchestrator and the orchestrator needs the
	// scheduler as its timers.
	var orch *dispatch.Orchestrator
	s.Scheduler = scheduler.New(scheduler.ExpireFunc(func(ctx context.Context, id string) error {
		return orch.ExpireOffer(ctx, id)
	}), deps.Store, scheduler.Options{SweepInterval: cfg.Dispatch.SweepInterval()}, log.With("scheduler"), sink)
	orch = dispatch.New(dispatch.Deps{
		Store:     deps.Store,
		Selector:  selector,
		Locations: locations,
		Timers:    s.Scheduler,
		Notifier:  s.Relay,
		Log:       log.With("dispatch"),
	}, dispatch.Options{
		Assign: dispatch.AssignOptions{
			SearchRadiusMeters: cfg.Dispatch.SearchRadiusMeters,
			MaxCandidates:      cfg.Dispatch.MaxCandidates,
			OfferTTL:           cfg.Dispatch.OfferTTL(),
		},
		AverageSpeedKmh: cfg.Dispatch.AverageSpeedKmh,
		Currency:        cfg.Dispatch.Currency,
	})
	orch.Listen(s.Bus)
	s.Orchestrator = orch

	if deps.Messenger != nil {
		services.NewPushNotifier(deps.Messenger, deps.Contacts, log.With("push")).Listen(s.Bus)
	}
	s.Realtime = realtime.NewRegistry(log.With("realtime"), sink)
	realtime.NewFanout(s.Realtime, deps.Contacts, realtime.ViewOptions{
		IncludeAdminContact: cfg.Realtime.IncludeAdminContact,
	}, log.With("fanout")).Listen(s.Bus)
	s.Bus.SubscribeAll("audit", events.Audit(log.With("audit")))
	s.Bus.SubscribeAll("metrics", metrics.Collect(sink))
	if cfg.Kafka.Enabled {
		s.kafka = outbox.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		s.Bus.SubscribeAll("kafka", s.kafka.Handle)
	}

	revocations := deps.Revocations
	if revocations == nil && deps.Redis != nil {
		revocations = auth.NewRedisRevocations(deps.Redis)
	}
	if revocations == nil {
		revocations = auth.NewMemoryRevocations()
	}
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, revocations)
	s.Sessions = auth.NewSessions(revocations, deps.Store, s.Relay, cfg.Auth.TokenTTL())

	ws := realtime.NewHandler(s.Realtime, verifier, availability, realtime.HandlerOptions{
		SendBuffer:   cfg.Realtime.SendBuffer,
		AllowOrigins: cfg.HTTP.AllowOrigins,
	}, log.With("ws"), sink)

	s.Router = newRouter(cfg.HTTP, log.With("http"))
	handlers.Register(s.Router, handlers.Routes{
		Orchestrator: orch,
		Sessions:     s.Sessions,
		Verifier:     verifier,
		Realtime:     ws,
		Metrics:      metricsHandler,
		Checks:       s.checks(),
	})
	s.server = &http.Server{Addr: cfg.HTTP.Addr, Handler: s.Router, ReadHeaderTimeout: 10 * time.Second}
	return s, nil
}

func newRouter(cfg config.HTTPConfig, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.AllowOrigins
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsCfg))
	return r
}

func (s *Service) checks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if db := s.deps.DB; db != nil {
		checks["postgres"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if rdb := s.deps.Redis; rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

// Start runs the outbox relay and the offer sweep in the background until
// ctx is done. The returned function waits for both to stop.
func (s *Service) Start(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.Relay.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = s.Scheduler.Run(ctx)
	}()
	return wg.Wait
}

// Run serves HTTP and runs the background loops until ctx is done or the
// listener fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wait := s.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.HTTP.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if sErr := s.server.Shutdown(shutdownCtx); sErr != nil {
		s.log.Warnf("http shutdown: %v", sErr)
	}
	cancel()
	wait()
	return err
}

// Close releases everything the service holds.
func (s *Service) Close() error {
	s.Scheduler.Close()
	s.Realtime.Close()
	s.Bus.Close()

	var errs []error
	if s.kafka != nil {
		errs = append(errs, s.kafka.Close())
	}
	if s.deps.Redis != nil {
		errs = append(errs, s.deps.Redis.Close())
	}
	if s.deps.DB != nil {
		sqlDB, err := s.deps.DB.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
