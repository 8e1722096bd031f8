// Command trustcore-loadtest drives the session store with concurrent
// lookups, token rotations and competing logins, and prints latency
// percentiles per phase.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/RedBox-TN/Backend-sub000/device"
	"github.com/RedBox-TN/Backend-sub000/permission"
	"github.com/RedBox-TN/Backend-sub000/session"
)

type userState struct {
	userID string
	mu     sync.Mutex
	token  string
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of sessions to seed, one per user")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		races       = flag.Int("races", 1000, "identities contended in the login race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tc-load", "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *races <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and races must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store, err := session.NewStore(client, session.Config{Prefix: *prefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "session store: %v\n", err)
		os.Exit(1)
	}

	states := make([]userState, *users)
	fmt.Printf("seeding %d sessions...\n", *users)
	startSeed := time.Now()
	for i := range states {
		states[i].userID = fmt.Sprintf("user-%d", i)
		issued, err := store.Store(ctx, buildRecord(states[i].userID), time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "store failed: %v\n", err)
			os.Exit(1)
		}
		states[i].token = issued.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookupStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.token
		st.mu.Unlock()
		_, err := store.TryGet(ctx, token)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		issued, err := store.RefreshToken(ctx, st.token, time.Hour)
		if err != nil {
			return err
		}
		st.token = issued.Token
		return nil
	})

	raceStats, winners := runLoginRace(ctx, store, *races, *concurrency)

	fmt.Println("---- results ----")
	printStats("lookup", lookupStats)
	printStats("refresh", refreshStats)
	printStats("login-race", raceStats)
	fmt.Printf("login-race: identities=%d winners=%d\n", *races, winners)
	if winners != int64(*races) {
		fmt.Fprintln(os.Stderr, "single-session invariant violated")
		os.Exit(1)
	}
}

// runPhase spreads ops calls of op over concurrency workers and records
// the latency of each call.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runLoginRace has every worker try to open a session for the same
// identities in the same order. Exactly one Store per identity may win; the
// rest must see ErrAlreadyLogged, which is not counted as a failure.
func runLoginRace(ctx context.Context, store *session.Store, identities, concurrency int) (phaseStats, int64) {
	var winners int64
	stats := runPhase(identities*concurrency, concurrency, 104729, func(_ *rand.Rand, i int) error {
		userID := fmt.Sprintf("race-%d", i/concurrency)
		_, err := store.Store(ctx, buildRecord(userID), time.Hour)
		switch {
		case err == nil:
			atomic.AddInt64(&winners, 1)
			return nil
		case errors.Is(err, session.ErrAlreadyLogged):
			return nil
		default:
			return err
		}
	})
	return stats, winners
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func buildRecord(userID string) *session.Record {
	return &session.Record{
		UserID:      userID,
		Username:    userID,
		Role:        "member",
		Permissions: permission.Mask(0).Set(0),
		DeviceHash:  device.Calculate("trustcore-loadtest", "127.0.0.1"),
		CreatedAt:   time.Now().UnixMilli(),
	}
}
