package trustcore

import "errors"

var (
	// ErrInvalidRequest is returned for missing or malformed request fields,
	// before any backend call.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized covers every token failure: missing, unknown, expired,
	// pending or bound to another device.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied is returned when the session lacks a required permission bit.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAccessUndeclared is returned for a route with no declared access requirement.
	ErrAccessUndeclared = errors.New("access requirement not declared")
	// ErrAccessInvalid is returned for RequiredPermissions with an empty mask.
	ErrAccessInvalid = errors.New("invalid access requirement")

	ErrUserNotFound         = errors.New("user not found")
	ErrRoleNotFound         = errors.New("role not found")
	ErrUserExists           = errors.New("user already exists")
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrPasswordReuse      = errors.New("password was used recently")

	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	ErrTOTPNotEnrolled    = errors.New("totp enrollment not started")
	ErrTOTPInvalid        = errors.New("invalid totp code")
	ErrTOTPUnavailable    = errors.New("totp backend unavailable")

	ErrEngineNotReady = errors.New("engine not initialized")
)
