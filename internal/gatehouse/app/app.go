package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/notify"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/service"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/store"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/store/drivers/sqlite"
	"github.com/tokablelabs/gatehouse/pkg/cryptox"
	"github.com/tokablelabs/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the authentication core together: store, services and
// the housekeeping worker. The embedding transport layer (not part of this
// module) consumes the services; the binary itself runs housekeeping.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	// Services, exported for the consuming layer.
	Sessions     *service.SessionService
	Resume       *service.ResumeService
	Reset        *service.ResetService
	Throttle     *service.Throttle
	housekeeping *service.HousekeepingService
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()

	return app, nil
}

// Run starts the housekeeping worker and blocks until a shutdown signal.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("gatehouse started", "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the worker and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatehouse...")

	app.housekeeping.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gatehouse stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
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
	fingerprint := service.FingerprintOptions{
		UseRemoteAddr: app.cfg.FingerprintRemoteAddr,
		UseUserAgent:  app.cfg.FingerprintUserAgent,
		UseHost:       app.cfg.FingerprintHost,
	}

	app.Throttle = &service.Throttle{
		Enforce:           app.cfg.ThrottleEnforce,
		AttemptsPerMinute: app.cfg.ThrottleAttemptsPerMinute,
		Burst:             app.cfg.ThrottleBurst,
	}

	app.Resume = &service.ResumeService{
		Store:       app.db,
		Fingerprint: fingerprint,
		TTL:         app.cfg.ResumeTokenTTL,
	}

	app.Sessions = &service.SessionService{
		Store:       app.db,
		Resume:      app.Resume,
		Fingerprint: fingerprint,
		Throttle:    app.Throttle,
	}

	app.Reset = &service.ResetService{
		Store:    app.db,
		Notifier: app.notifier(),
		ResetURL: app.cfg.ResetURL,
		TTL:      app.cfg.ResetTokenTTL,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) notifier() notify.Notifier {
	if app.cfg.SMTPHost == "" {
		app.logger.Warn("no SMTP host configured, reset mails will only be logged")
		return notify.LogMailer{}
	}
	return &notify.SMTPMailer{
		Host:     app.cfg.SMTPHost,
		Port:     app.cfg.SMTPPort,
		Username: app.cfg.SMTPUsername,
		Password: app.cfg.SMTPPassword,
		From:     app.cfg.SMTPFrom,
	}
}
