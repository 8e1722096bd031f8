// Package memory is an in-process trustcore.Directory for tests and the
// development server. Role masks are resolved from permission names through a
// permission.RoleManager.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/permission"
)

// Directory keeps credentials in maps guarded by one mutex. Returned
// credentials are copies.
type Directory struct {
	roles *permission.RoleManager

	mu      sync.RWMutex
	users   map[string]*trustcore.Credential
	byName  map[string]string
	byEmail map[string]string
}

// New returns an empty directory whose roles come from roles. The role
// manager is frozen so masks cannot change under live sessions.
func New(roles *permission.RoleManager) *Directory {
	roles.Freeze()
	return &Directory{
		roles:   roles,
		users:   map[string]*trustcore.Credential{},
		byName:  map[string]string{},
		byEmail: map[string]string{},
	}
}

// NewRoles registers permissions in order and builds a role manager from
// roles, mapping each role name to its permission names.
func NewRoles(permissions []string, roles map[string][]string) (*permission.RoleManager, error) {
	registry := permission.NewRegistry()
	for _, name := range permissions {
		if _, err := registry.Register(name); err != nil {
			return nil, fmt.Errorf("register permission %q: %w", name, err)
		}
	}
	registry.Freeze()

	rm := permission.NewRoleManager(registry)
	for name, perms := range roles {
		if err := rm.RegisterRole(name, perms); err != nil {
			return nil, fmt.Errorf("register role %q: %w", name, err)
		}
	}
	return rm, nil
}

// Add stores cred. Usernames and emails are unique; emails compare
// case-insensitively.
func (d *Directory) Add(cred *trustcore.Credential) error {
	if cred == nil || cred.UserID == "" || cred.Username == "" {
		return fmt.Errorf("%w: user id and username are required", trustcore.ErrInvalidRequest)
	}
	if _, ok := d.roles.GetMask(cred.RoleID); !ok {
		return fmt.Errorf("%w: %s", trustcore.ErrRoleNotFound, cred.RoleID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	email := strings.ToLower(cred.Email)
	if _, ok := d.users[cred.UserID]; ok {
		return trustcore.ErrUserExists
	}
	if _, ok := d.byName[cred.Username]; ok {
		return trustcore.ErrUserExists
	}
	if email != "" {
		if _, ok := d.byEmail[email]; ok {
			return trustcore.ErrUserExists
		}
	}

	d.users[cred.UserID] = clone(cred)
	d.byName[cred.Username] = cred.UserID
	if email != "" {
		d.byEmail[email] = cred.UserID
	}
	return nil
}

func (d *Directory) FindByUsername(_ context.Context, username string) (*trustcore.Credential, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookup(d.byName[username])
}

func (d *Directory) FindByEmail(_ context.Context, email string) (*trustcore.Credential, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookup(d.byEmail[strings.ToLower(email)])
}

func (d *Directory) FindByID(_ context.Context, userID string) (*trustcore.Credential, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookup(userID)
}

func (d *Directory) RecordLoginFailure(_ context.Context, userID string, maxAttempts int) (int, bool, error) {
	var attempts int
	var blocked bool
	err := d.update(userID, func(c *trustcore.Credential) {
		c.InvalidAttempts++
		if c.InvalidAttempts >= maxAttempts {
			c.Blocked = true
		}
		attempts, blocked = c.InvalidAttempts, c.Blocked
	})
	return attempts, blocked, err
}

func (d *Directory) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	return d.update(userID, func(c *trustcore.Credential) {
		c.InvalidAttempts = 0
		c.LastAccess = at
	})
}

func (d *Directory) SetBlocked(_ context.Context, userID string, blocked bool) error {
	return d.update(userID, func(c *trustcore.Credential) {
		c.Blocked = blocked
		if !blocked {
			c.InvalidAttempts = 0
		}
	})
}

func (d *Directory) UpdatePassword(_ context.Context, userID string, hash, salt []byte, history []trustcore.PasswordHistoryEntry) error {
	return d.update(userID, func(c *trustcore.Credential) {
		c.PasswordHash = append([]byte(nil), hash...)
		c.Salt = append([]byte(nil), salt...)
		c.PasswordHistory = append([]trustcore.PasswordHistoryEntry(nil), history...)
	})
}

func (d *Directory) UpdateTOTP(_ context.Context, userID, secret string, enabled bool) error {
	return d.update(userID, func(c *trustcore.Credential) {
		c.TOTPSecret = secret
		c.TOTPEnabled = enabled
	})
}

func (d *Directory) GetRole(_ context.Context, roleID string) (trustcore.Role, error) {
	mask, ok := d.roles.GetMask(roleID)
	if !ok {
		return trustcore.Role{}, trustcore.ErrRoleNotFound
	}
	return trustcore.Role{ID: roleID, Name: roleID, Permissions: mask}, nil
}

// Len is the number of stored credentials.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

func (d *Directory) lookup(userID string) (*trustcore.Credential, error) {
	c, ok := d.users[userID]
	if !ok || userID == "" {
		return nil, trustcore.ErrUserNotFound
	}
	return clone(c), nil
}

func (d *Directory) update(userID string, fn func(*trustcore.Credential)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.users[userID]
	if !ok {
		return trustcore.ErrUserNotFound
	}
	fn(c)
	return nil
}

func clone(c *trustcore.Credential) *trustcore.Credential {
	cp := *c
	cp.PasswordHash = append([]byte(nil), c.PasswordHash...)
	cp.Salt = append([]byte(nil), c.Salt...)
	cp.PasswordHistory = append([]trustcore.PasswordHistoryEntry(nil), c.PasswordHistory...)
	return &cp
}

var _ trustcore.Directory = (*Directory)(nil)
