package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/carecal/carecal/internal/config"
	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/domain/registry"
	"github.com/carecal/carecal/internal/domain/reminder"
	"github.com/carecal/carecal/internal/platform/auth"
	"github.com/carecal/carecal/internal/platform/clock"
	"github.com/carecal/carecal/internal/platform/db"
	"github.com/carecal/carecal/internal/platform/middleware"
	"github.com/carecal/carecal/internal/platform/notification"
)

// app holds the wired services shared by the serve and sweep commands.
type app struct {
	cfg      *config.Config
	loc      *time.Location
	clock    clock.Clock
	pool     *pgxpool.Pool
	pinger   db.Pinger
	events   *careevent.Service
	registry *registry.Service
	reminder *reminder.Service
	sweep    *reminder.Sweep
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newApp builds the service graph. A nil clk means the wall clock in the
// configured time zone.
func newApp(ctx context.Context, cfg *config.Config, clk clock.Clock, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{Location: loc}
	}
	a := &app{cfg: cfg, loc: loc, clock: clk}

	var (
		tx          db.Transactor
		eventRepo   careevent.Repository
		reminders   reminder.Repository
		patients    registry.PatientRepository
		pregnancies registry.PregnancyRepository
		children    registry.ChildRepository
	)
	switch cfg.Store {
	case config.StoreMemory:
		store := registry.NewMemoryStore()
		tx = db.NewLocalTransactor()
		eventRepo = careevent.NewMemoryRepo()
		reminders = reminder.NewMemoryRepo()
		patients, pregnancies, children = store.Patients(), store.Pregnancies(), store.Children()
		a.pinger = db.MemoryPinger{}
		logger.Warn().Msg("using in-memory store, data is lost on restart")
	default:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		tx = db.NewPgTransactor(pool)
		eventRepo = careevent.NewRepoPG(pool)
		reminders = reminder.NewRepoPG(pool)
		patients = registry.NewPatientRepoPG(pool)
		pregnancies = registry.NewPregnancyRepoPG(pool)
		children = registry.NewChildRepoPG(pool)
		a.pinger = db.PoolPinger{Pool: pool}
		logger.Info().Msg("connected to database")
	}

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.events = careevent.NewService(eventRepo, tx, clk, logger)
	a.registry = registry.NewService(patients, pregnancies, children, a.events, tx, clk, logger)
	engine := reminder.NewEngine(
		eventRepo,
		reminders,
		tx,
		a.registry,
		notification.NewTemplateEngine(),
		dispatcher,
		reminder.EngineConfig{Location: loc, SendHour: cfg.ReminderSendHour},
		logger,
	)
	a.events.OnReschedule(engine)
	a.sweep = reminder.NewSweep(engine, eventRepo, clk, logger)
	a.reminder = reminder.NewService(reminders, eventRepo, engine, tx, clk, logger)
	return a, nil
}

func newDispatcher(cfg *config.Config, logger zerolog.Logger) (notification.Dispatcher, error) {
	switch cfg.NotifyChannel {
	case config.NotifyTwilio:
		sender := notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		return notification.NewSMSDispatcher(sender, logger), nil
	case config.NotifyLog, "":
		return notification.NewLogDispatcher(logger), nil
	}
	return nil, fmt.Errorf("unknown notify channel %q", cfg.NotifyChannel)
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// routes builds the HTTP surface.
func (a *app) routes(logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.cfg.Store, a.pinger))

	apiV1 := e.Group("/api/v1")
	if a.cfg.RateLimitRPS > 0 {
		apiV1.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(rate.Limit(a.cfg.RateLimitRPS))))
	}
	if a.cfg.IsDev() {
		logger.Warn().Msg("development auth is active, unauthenticated requests get admin access")
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     a.cfg.AuthIssuer,
			Audience:   a.cfg.AuthAudience,
			SigningKey: []byte(a.cfg.JWTSigningKey),
		}))
	}

	can := auth.DefaultCapabilities()
	registry.NewHandler(a.registry).RegisterRoutes(apiV1)
	careevent.NewHandler(a.events, can).RegisterRoutes(apiV1)
	reminder.NewHandler(a.reminder, a.sweep, can).RegisterRoutes(apiV1)
	return e
}
