package trustcore

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/RedBox-TN/Backend-sub000/permission"
)

const (
	permMessagesRead  = 0
	permMessagesWrite = 1
	permGroupsAdmin   = 2
)

// fakeDirectory is an in-memory Directory that counts calls.
type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]*Credential
	roles map[string]Role
	calls atomic.Int64
}

func newFakeDirectory() *fakeDirectory {
	member := permission.Mask(0).Set(permMessagesRead).Set(permMessagesWrite)
	return &fakeDirectory{
		users: map[string]*Credential{},
		roles: map[string]Role{
			"member": {ID: "member", Name: "member", Permissions: member},
			"admin":  {ID: "admin", Name: "admin", Permissions: member.Set(permGroupsAdmin)},
		},
	}
}

func (d *fakeDirectory) add(c *Credential) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *c
	d.users[c.UserID] = &cp
}

func (d *fakeDirectory) get(userID string) Credential {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.users[userID]
}

func (d *fakeDirectory) resetCalls()        { d.calls.Store(0) }
func (d *fakeDirectory) totalCalls() int64 { return d.calls.Load() }

func (d *fakeDirectory) find(match func(*Credential) bool) (*Credential, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.users {
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (d *fakeDirectory) FindByUsername(_ context.Context, username string) (*Credential, error) {
	return d.find(func(c *Credential) bool { return c.Username == username })
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*Credential, error) {
	return d.find(func(c *Credential) bool { return strings.EqualFold(c.Email, email) })
}

func (d *fakeDirectory) FindByID(_ context.Context, userID string) (*Credential, error) {
	return d.find(func(c *Credential) bool { return c.UserID == userID })
}

func (d *fakeDirectory) update(userID string, fn func(*Credential)) error {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(c)
	return nil
}

func (d *fakeDirectory) RecordLoginFailure(_ context.Context, userID string, maxAttempts int) (int, bool, error) {
	var attempts int
	var blocked bool
	err := d.update(userID, func(c *Credential) {
		c.InvalidAttempts++
		if c.InvalidAttempts >= maxAttempts {
			c.Blocked = true
		}
		attempts, blocked = c.InvalidAttempts, c.Blocked
	})
	return attempts, blocked, err
}

func (d *fakeDirectory) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	return d.update(userID, func(c *Credential) {
		c.InvalidAttempts = 0
		c.LastAccess = at
	})
}

func (d *fakeDirectory) SetBlocked(_ context.Context, userID string, blocked bool) error {
	return d.update(userID, func(c *Credential) {
		c.Blocked = blocked
		if !blocked {
			c.InvalidAttempts = 0
		}
	})
}

func (d *fakeDirectory) UpdatePassword(_ context.Context, userID string, hash, salt []byte, history []PasswordHistoryEntry) error {
	return d.update(userID, func(c *Credential) {
		c.PasswordHash, c.Salt, c.PasswordHistory = hash, salt, history
	})
}

func (d *fakeDirectory) UpdateTOTP(_ context.Context, userID, secret string, enabled bool) error {
	return d.update(userID, func(c *Credential) {
		c.TOTPSecret, c.TOTPEnabled = secret, enabled
	})
}

func (d *fakeDirectory) GetRole(_ context.Context, roleID string) (Role, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.roles[roleID]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return r, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) snapshot() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

type testHarness struct {
	engine *Engine
	dir    *fakeDirectory
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	sink   *recordingSink
	ip     string
	ua     string
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.Pepper = "test-pepper"
	cfg.Password.MinLength = 6
	cfg.Security.MaxLoginAttempts = 3
	cfg.Session.TokenBytes = 12
	cfg.Audit.DropIfFull = false
	return cfg
}

func newTestEngine(t testing.TB, mutate func(*Config)) *testHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	dir := newFakeDirectory()
	sink := &recordingSink{}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
	})

	return &testHarness{
		engine: engine,
		dir:    dir,
		mr:     mr,
		rdb:    rdb,
		sink:   sink,
		ip:     "10.0.0.1",
		ua:     "redbox-client/1.0",
	}
}

func (h *testHarness) ctx() context.Context {
	return h.ctxFrom(h.ua, h.ip)
}

func (h *testHarness) ctxFrom(ua, ip string) context.Context {
	return WithUserAgent(WithClientIP(context.Background(), ip), ua)
}

func (h *testHarness) seedUser(t testing.TB, username, pw string, tfa bool) *Credential {
	t.Helper()
	return h.seedUserWithRole(t, username, pw, tfa, "member")
}

func (h *testHarness) seedUserWithRole(t testing.TB, username, pw string, tfa bool, roleID string) *Credential {
	t.Helper()

	cred, err := h.engine.NewCredential(username, username+"@redbox.test", pw, roleID)
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	if tfa {
		secret, err := h.engine.totp.CreateSharedSecret(username)
		if err != nil {
			t.Fatalf("CreateSharedSecret: %v", err)
		}
		cred.TOTPSecret = secret.Secret
		cred.TOTPEnabled = true
	}
	h.dir.add(cred)
	return cred
}

func (h *testHarness) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := h.engine.totp.GenerateCodeAt(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCodeAt: %v", err)
	}
	return code
}

// wrongCode returns a code that is not valid in any accepted window.
func (h *testHarness) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	now := time.Now()
	valid := map[string]bool{}
	for _, off := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := h.engine.totp.GenerateCodeAt(secret, now.Add(off))
		if err != nil {
			t.Fatalf("GenerateCodeAt: %v", err)
		}
		valid[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("could not find an invalid code")
	return ""
}
