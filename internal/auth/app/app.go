package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cataloghq/authcore/internal/auth/audit"
	httpapi "github.com/cataloghq/authcore/internal/auth/http"
	"github.com/cataloghq/authcore/internal/auth/metrics"
	"github.com/cataloghq/authcore/internal/auth/service"
	"github.com/cataloghq/authcore/internal/auth/store"
	"github.com/cataloghq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/cataloghq/authcore/pkg/cryptox"
	"github.com/cataloghq/authcore/pkg/jwtx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the auth service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	signer   jwtx.Signer
	verifier jwtx.Verifier

	loginService        *service.LoginService
	tokenService        *service.TokenService
	twoFactorService    *service.TwoFactorService
	accountService      *service.AccountService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authcore",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)
	metrics.Register()

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, verifier, err := initSigningKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.signer = signer
	app.verifier = verifier

	app.initServices()

	if err := app.accountService.EnsureBootstrapAccount(
		context.Background(), app.cfg.BootstrapEmail, app.cfg.BootstrapPassword,
	); err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("bootstrap account: %w", err)
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the server, the housekeeping worker, and the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied")
	return nil
}

func (app *Application) initServices() {
	sink := audit.SlogSink{Logger: app.logger}

	app.tokenService = &service.TokenService{
		Store:      app.db,
		Signer:     app.signer,
		Audit:      sink,
		Issuer:     app.cfg.Issuer,
		Audience:   app.cfg.Audience,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}
	app.loginService = &service.LoginService{
		Store:  app.db,
		Tokens: app.tokenService,
		Audit:  sink,
	}
	app.twoFactorService = &service.TwoFactorService{
		Store:  app.db,
		Tokens: app.tokenService,
		Audit:  sink,
		Issuer: app.cfg.TOTPIssuer,
	}
	app.accountService = &service.AccountService{
		Store:  app.db,
		Tokens: app.tokenService,
		Audit:  sink,
	}
	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.verifier, app.db, app.logger)
	router.LoginService = app.loginService
	router.TokenService = app.tokenService
	router.TwoFactorService = app.twoFactorService
	router.AccountService = app.accountService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
