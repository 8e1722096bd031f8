// Command trustcore-server serves the authentication API over HTTP.
//
// Settings come from config.yaml, .env and TRUSTCORE_* environment
// variables. With no Redis address an in-process miniredis is started, and
// with no database DSN accounts live in memory; both fallbacks are meant for
// local development only.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/directory/memory"
	"github.com/RedBox-TN/Backend-sub000/internal/audit"
	"github.com/RedBox-TN/Backend-sub000/internal/httpapi"
	"github.com/RedBox-TN/Backend-sub000/internal/observability"
	"github.com/RedBox-TN/Backend-sub000/internal/settings"
	"github.com/RedBox-TN/Backend-sub000/metrics/export/prometheus"
)

// adminPermission guards the account administration routes.
const adminPermission = "users.manage"

func main() {
	configFile := flag.String("config", "", "path to a config file (default ./config.yaml when present)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "trustcore-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := settings.Load(settings.Options{ConfigFile: configFile})
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	roles, err := memory.NewRoles(cfg.Access.Permissions, cfg.Access.Roles)
	if err != nil {
		return fmt.Errorf("build roles: %w", err)
	}

	dir, err := openDirectory(ctx, cfg.Database, roles, logger)
	if err != nil {
		return err
	}
	defer dir.close()

	engine, err := trustcore.New().
		WithConfig(cfg.Core).
		WithRedis(rdb).
		WithDirectory(dir.Directory).
		WithLogger(logger).
		WithAuditSink(audit.NewZapSink(logger)).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if err := seed(ctx, engine, dir, cfg.Seed, logger); err != nil {
		return err
	}

	adminMask, err := permissionMask(roles, adminPermission)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	router, err := httpapi.NewRouter(engine, logger, httpapi.Options{
		AdminPermissions: adminMask,
		MetricsPath:      cfg.Server.MetricsPath,
		MetricsHandler:   prometheus.NewExporter(engine).Handler(),
		TrustedProxies:   cfg.Server.TrustedProxies,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
