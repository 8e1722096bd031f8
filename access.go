package trustcore

import (
	"fmt"

	"github.com/RedBox-TN/Backend-sub000/permission"
)

// AccessKind is the tag of an Access requirement.
type AccessKind uint8

const (
	accessUndeclared AccessKind = iota
	AccessAnonymous
	AccessAuthenticated
	AccessPermissions
)

// Access is the requirement a route declares at registration. The zero value
// is undeclared and every check against it fails closed.
type Access struct {
	kind     AccessKind
	required permission.Mask
}

// Anonymous lets the request through unchanged.
func Anonymous() Access {
	return Access{kind: AccessAnonymous}
}

// AuthenticationRequired requires a live, fully authenticated session bound
// to the calling device.
func AuthenticationRequired() Access {
	return Access{kind: AccessAuthenticated}
}

// RequiredPermissions is AuthenticationRequired plus every bit of mask.
func RequiredPermissions(mask permission.Mask) Access {
	return Access{kind: AccessPermissions, required: mask}
}

func (a Access) Kind() AccessKind {
	return a.kind
}

// Required is the permission mask for AccessPermissions, zero otherwise.
func (a Access) Required() permission.Mask {
	return a.required
}

// Validate rejects undeclared requirements and empty permission masks.
func (a Access) Validate() error {
	switch a.kind {
	case AccessAnonymous, AccessAuthenticated:
		return nil
	case AccessPermissions:
		if a.required == 0 {
			return fmt.Errorf("%w: empty permission mask", ErrAccessInvalid)
		}
		return nil
	default:
		return ErrAccessUndeclared
	}
}

func (a Access) String() string {
	switch a.kind {
	case AccessAnonymous:
		return "anonymous"
	case AccessAuthenticated:
		return "authenticated"
	case AccessPermissions:
		return "permissions(" + a.required.String() + ")"
	default:
		return "undeclared"
	}
}
