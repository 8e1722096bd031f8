package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/directory/memory"
	"github.com/RedBox-TN/Backend-sub000/directory/postgres"
	"github.com/RedBox-TN/Backend-sub000/internal/settings"
	"github.com/RedBox-TN/Backend-sub000/permission"
)

func openRedis(cfg settings.RedisSettings, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if len(cfg.Addrs) == 0 {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("no redis configured, using in-process miniredis", zap.String("addr", mr.Addr()))
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return client, func() { _ = client.Close() }, nil
}

// directory is the selected account backend plus the hooks the server needs
// around it.
type directory struct {
	trustcore.Directory
	create func(ctx context.Context, cred *trustcore.Credential) error
	close  func()
}

func openDirectory(ctx context.Context, cfg settings.DatabaseSettings, roles *permission.RoleManager, logger *zap.Logger) (*directory, error) {
	if cfg.DSN == "" {
		logger.Warn("no database configured, accounts are kept in memory")
		mem := memory.New(roles)
		return &directory{
			Directory: mem,
			create:    func(_ context.Context, cred *trustcore.Credential) error { return mem.Add(cred) },
			close:     func() {},
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DSN, postgres.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	pg := postgres.New(db)
	for name, mask := range roles.Roles() {
		if err := pg.UpsertRole(ctx, trustcore.Role{ID: name, Name: name, Permissions: mask}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sync role %q: %w", name, err)
		}
	}
	logger.Info("postgres directory ready", zap.Int("roles", roles.Count()))

	return &directory{
		Directory: pg,
		create:    pg.Create,
		close:     func() { _ = db.Close() },
	}, nil
}

// seed creates the configured bootstrap account. An existing account with
// the same name is left untouched.
func seed(ctx context.Context, engine *trustcore.Engine, dir *directory, cfg settings.SeedSettings, logger *zap.Logger) error {
	if cfg.Username == "" {
		return nil
	}

	cred, err := engine.NewCredential(cfg.Username, cfg.Email, cfg.Password, cfg.Role)
	if err != nil {
		return fmt.Errorf("seed account: %w", err)
	}
	if err := dir.create(ctx, cred); err != nil {
		if errors.Is(err, trustcore.ErrUserExists) {
			logger.Info("seed account already present", zap.String("username", cred.Username))
			return nil
		}
		return fmt.Errorf("seed account: %w", err)
	}

	logger.Info("seed account created", zap.String("username", cred.Username), zap.String("role", cred.RoleID))
	return nil
}

func permissionMask(roles *permission.RoleManager, name string) (permission.Mask, error) {
	mask, err := roles.Registry().Mask(name)
	if err != nil {
		return 0, fmt.Errorf("admin routes: %w", err)
	}
	return mask, nil
}
