package permission

import (
	"errors"
	"sync"
)

// RoleManager composes named roles into permission masks using a [Registry].
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask
	frozen bool
}

// NewRoleManager creates a RoleManager resolving names through registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask),
	}
}

// Registry returns the registry role names are resolved through.
func (rm *RoleManager) Registry() *Registry {
	return rm.registry
}

// RegisterRole stores the union of permissionNames under roleName.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}

	if roleName == "" {
		return errors.New("role name empty")
	}

	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	mask, err := rm.registry.Mask(permissionNames...)
	if err != nil {
		return err
	}

	rm.roles[roleName] = mask
	return nil
}

// GetMask returns the mask registered for roleName.
func (rm *RoleManager) GetMask(roleName string) (Mask, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Roles returns a copy of every registered role mask.
func (rm *RoleManager) Roles() map[string]Mask {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := make(map[string]Mask, len(rm.roles))
	for name, mask := range rm.roles {
		out[name] = mask
	}
	return out
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
