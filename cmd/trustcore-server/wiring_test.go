package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/directory/memory"
	"github.com/RedBox-TN/Backend-sub000/internal/settings"
)

func TestMemoryDirectorySeed(t *testing.T) {
	ctx := context.Background()
	defaults := settings.Default()

	roles, err := memory.NewRoles(defaults.Access.Permissions, defaults.Access.Roles)
	if err != nil {
		t.Fatalf("NewRoles: %v", err)
	}
	dir, err := openDirectory(ctx, settings.DatabaseSettings{}, roles, zap.NewNop())
	if err != nil {
		t.Fatalf("openDirectory: %v", err)
	}
	defer dir.close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := trustcore.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.Pepper = "wiring-test"
	engine, err := trustcore.New().WithConfig(cfg).WithRedis(rdb).WithDirectory(dir.Directory).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	account := settings.SeedSettings{Username: "root", Email: "root@redbox.test", Password: "Secr3t-pass", Role: "admin"}
	if err := seed(ctx, engine, dir, account, zap.NewNop()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := seed(ctx, engine, dir, account, zap.NewNop()); err != nil {
		t.Fatalf("second seed must be a no-op: %v", err)
	}
	if err := seed(ctx, engine, dir, settings.SeedSettings{}, zap.NewNop()); err != nil {
		t.Fatalf("empty seed: %v", err)
	}

	res, err := engine.Login(ctx, trustcore.Identifier{Username: "root"}, "Secr3t-pass")
	if err != nil || res.Status != trustcore.StatusLoginSuccess {
		t.Fatalf("login seeded account: %+v %v", res, err)
	}

	mask, err := permissionMask(roles, adminPermission)
	if err != nil {
		t.Fatalf("permissionMask: %v", err)
	}
	id, err := engine.Authorize(ctx, res.Token, trustcore.RequiredPermissions(mask))
	if err != nil || id.Username != "root" {
		t.Fatalf("admin authorize: %+v %v", id, err)
	}
}

func TestPermissionMaskUnknown(t *testing.T) {
	roles, err := memory.NewRoles([]string{"messages.read"}, nil)
	if err != nil {
		t.Fatalf("NewRoles: %v", err)
	}
	if _, err := permissionMask(roles, adminPermission); err == nil {
		t.Fatal("expected error for unregistered permission")
	}
}

func TestOpenRedisFallsBackToMiniredis(t *testing.T) {
	client, closeFn, err := openRedis(settings.RedisSettings{}, zap.NewNop())
	if err != nil {
		t.Fatalf("openRedis: %v", err)
	}
	defer closeFn()

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
