package trustcore

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRequiresDependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithDirectory(newFakeDirectory()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without directory")
	}

	bad := testConfig()
	bad.Password.Pepper = ""
	if _, err := New().WithConfig(bad).WithRedis(rdb).WithDirectory(newFakeDirectory()).Build(); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithDirectory(newFakeDirectory())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildMetricsToggle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithDirectory(newFakeDirectory()).
		WithMetricsEnabled(false).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if engine.Config().Metrics.Enabled {
		t.Fatal("metrics should be disabled")
	}
	if got := len(engine.MetricsSnapshot().Counters); got != 0 {
		t.Fatalf("expected no counters when disabled, got %d", got)
	}
}
