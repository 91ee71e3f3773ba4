package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i8gateway/apperr"
	"i8gateway/cache"
	"i8gateway/config"
	"i8gateway/controllers/api"
	"i8gateway/controllers/callback"
	"i8gateway/database"
	"i8gateway/events"
	"i8gateway/jobs"
	"i8gateway/ledger"
	"i8gateway/locks"
	"i8gateway/logger"
	"i8gateway/metrics"
	"i8gateway/providers"
	"i8gateway/reconcile"
	"i8gateway/routes"
	"i8gateway/services"
	"i8gateway/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		l := logger.New("main", "info")
		l.Error().Err(err).Msg("gateway stopped")
		os.Exit(1)
	}
}

// run wires the gateway and serves until SIGINT, SIGTERM or a listen
// failure.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("main", cfg.LogLevel)

	db, err := database.Connect(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close(db)

	m := metrics.New()

	var locker locks.Locker = locks.NewMemoryLocker()
	if cfg.RoundLock == "database" {
		dl, err := locks.NewDatabaseLocker(db)
		if err != nil {
			return fmt.Errorf("database locker: %w", err)
		}
		locker = dl
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, m, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	configCache := cache.NewMemory()
	defer configCache.Close()
	dir := services.NewDirectory(services.NewGormSource(db), configCache, cfg.CacheTTL, m)

	engine := reconcile.NewEngine(reconcile.Deps{
		Ledger:    ledger.NewGormStore(db),
		Wallet:    wallet.NewClient(cfg.AppName, cfg.WalletTimeout, m, log),
		Directory: dir,
		Locker:    locker,
		Publisher: publisher,
		Metrics:   m,
		Log:       log,
		GameID:    cfg.GameID,
	})
	launcher := providers.NewClient(cfg.API, cfg.WalletTimeout, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		ErrorHandler: errorHandler(log),
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	routes.Setup(app, routes.Deps{
		Callback:  callback.NewHandler(engine),
		API:       api.NewHandler(launcher, dir, cfg.AuthSecretKey, log),
		Agents:    dir,
		SecretKey: cfg.AuthSecretKey,
		Metrics:   m,
		Log:       log,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	janitorDone := jobs.StartCacheJanitor(ctx, configCache, cfg.CacheSweepInterval, log)

	addr := cfg.Addr()
	log.Info().Str("addr", addr).Str("roundLock", cfg.RoundLock).Msg("server running")

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	var serveErr error
	select {
	case <-sig:
		log.Info().Msg("gracefully shutting down")
	case err := <-listenErr:
		serveErr = fmt.Errorf("listen %s: %w", addr, err)
	}

	stop()
	<-janitorDone
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if serveErr != nil {
		return serveErr
	}
	log.Info().Msg("server exited cleanly")
	return nil
}

// errorHandler answers anything a handler did not turn into a body itself.
func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError && !apperr.IsReported(err) {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}
		return c.Status(code).JSON(fiber.Map{
			"statusCode": code,
			"message":    err.Error(),
		})
	}
}
