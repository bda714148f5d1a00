package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"meetbook.org/internal/audit"
	"meetbook.org/internal/auth"
	"meetbook.org/internal/config"
	"meetbook.org/internal/httpapi"
	"meetbook.org/internal/ids"
	"meetbook.org/internal/meetings"
	"meetbook.org/internal/migrate"
	"meetbook.org/internal/obs"
	"meetbook.org/internal/store/pg"
	"meetbook.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("meetbook exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[0], os.Args[1:], os.LookupEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := obs.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	obs.SetLogger(logger)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if cfg.AuditLogPath != "" {
		w := audit.NewFileWriter(cfg.AuditLogPath)
		defer w.Close()
		audit.SetOutput(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db        *sql.DB
		users     auth.UserStore
		sessions  auth.SessionStore
		meetStore meetings.Store
	)
	if cfg.DatabaseDSN != "" {
		store, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		db = store.DB()

		if cfg.MigrateOnStart {
			applied, err := migrate.NewManager(db, migrate.Schema()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", "count", len(applied))
		}
		users, sessions, meetStore = store.Users(), store.Sessions(), store.Meetings()
	} else {
		logger.Warn("no database configured, using in-memory stores")
		mem := auth.NewMemoryStore()
		users, sessions, meetStore = mem, mem.Sessions(), meetings.NewInMemory()
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		generated, err := ids.Token(32)
		if err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		secret, _ = hex.DecodeString(generated)
		logger.Warn("no session secret configured, generated an ephemeral one; sessions end on restart")
	}
	codec, err := auth.NewCookieCodec(secret)
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(users, sessions, auth.WithSessionTTL(cfg.SessionTTL))
	if err != nil {
		return err
	}
	hub := stream.New()
	probe := httpapi.ReadyProbe{DB: db}

	api, err := httpapi.New(httpapi.Deps{
		Auth:     authSvc,
		Cookies:  codec,
		Meetings: meetings.NewService(meetStore, meetings.WithPublisher(hub)),
		Events:   hub,
		Ready:    probe,
		Version:  version,
	}, httpapi.WithCookieSecure(cfg.CookieSecure))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	srv.RegisterOnShutdown(api.CloseStreams)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting meetbook", "version", version, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()
	if cfg.GRPCAddr != "" {
		go func() {
			if err := httpapi.NewGRPCServer(probe, version).Run(ctx, cfg.GRPCAddr); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}
