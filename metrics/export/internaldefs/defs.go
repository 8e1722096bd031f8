package internaldefs

import (
	trustcore "github.com/RedBox-TN/Backend-sub000"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   trustcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   trustcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: trustcore.MetricLoginSuccess, Name: "trustcore_login_success_total", Help: "Logins that issued an authenticated session."},
	{ID: trustcore.MetricLoginRequire2FA, Name: "trustcore_login_require_2fa_total", Help: "Logins that issued a session awaiting the second factor."},
	{ID: trustcore.MetricLoginFailure, Name: "trustcore_login_failure_total", Help: "Logins rejected for unknown users or wrong passwords."},
	{ID: trustcore.MetricLoginBlocked, Name: "trustcore_login_blocked_total", Help: "Logins rejected because the account is blocked."},
	{ID: trustcore.MetricLoginAlreadyLogged, Name: "trustcore_login_already_logged_total", Help: "Logins rejected because the identity holds a live session."},
	{ID: trustcore.MetricAccountLocked, Name: "trustcore_account_locked_total", Help: "Accounts blocked after too many wrong passwords or codes."},
	{ID: trustcore.MetricAccountUnblocked, Name: "trustcore_account_unblocked_total", Help: "Out-of-band account unblocks."},
	{ID: trustcore.MetricTFASuccess, Name: "trustcore_tfa_success_total", Help: "Successful second-factor verifications."},
	{ID: trustcore.MetricTFAFailure, Name: "trustcore_tfa_failure_total", Help: "Rejected second-factor verifications."},
	{ID: trustcore.MetricTFAAttemptsExceeded, Name: "trustcore_tfa_attempts_exceeded_total", Help: "Pending sessions dropped after too many wrong codes."},
	{ID: trustcore.MetricLogout, Name: "trustcore_logout_total", Help: "Logouts."},
	{ID: trustcore.MetricRefreshSuccess, Name: "trustcore_refresh_success_total", Help: "Token rotations."},
	{ID: trustcore.MetricRefreshFailure, Name: "trustcore_refresh_failure_total", Help: "Rejected token rotations."},
	{ID: trustcore.MetricAuthorizeAllowed, Name: "trustcore_authorize_allowed_total", Help: "Requests allowed by Authorize."},
	{ID: trustcore.MetricAuthorizeUnauthorized, Name: "trustcore_authorize_unauthorized_total", Help: "Requests rejected for a missing or invalid token."},
	{ID: trustcore.MetricAuthorizeForbidden, Name: "trustcore_authorize_forbidden_total", Help: "Requests rejected for missing permissions."},
	{ID: trustcore.MetricDeviceMismatch, Name: "trustcore_device_mismatch_total", Help: "Requests presented from a device other than the login device."},
	{ID: trustcore.MetricSessionRevoked, Name: "trustcore_session_revoked_total", Help: "Sessions revoked on device mismatch."},
	{ID: trustcore.MetricPasswordChangeSuccess, Name: "trustcore_password_change_success_total", Help: "Successful password changes."},
	{ID: trustcore.MetricPasswordChangeFailure, Name: "trustcore_password_change_failure_total", Help: "Rejected password changes."},
	{ID: trustcore.MetricTOTPEnrolled, Name: "trustcore_totp_enrolled_total", Help: "Second factors enabled."},
	{ID: trustcore.MetricTOTPDisabled, Name: "trustcore_totp_disabled_total", Help: "Second factors disabled."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: trustcore.MetricAuthorizeLatency, Name: "trustcore_authorize_latency_seconds", Help: "Authorize latency."},
	{ID: trustcore.MetricLoginLatency, Name: "trustcore_login_latency_seconds", Help: "Login latency, password hashing included."},
}

// Source is the engine surface both exporters read. *trustcore.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() trustcore.MetricsSnapshot
	AuditDropped() uint64
	AuditFailed() uint64
}

// AuditCounterDef names one audit dispatcher counter. Unlike CounterDefs
// these are reported even when engine metrics are disabled.
type AuditCounterDef struct {
	Name string
	Help string
	Read func(Source) uint64
}

var AuditCounterDefs = []AuditCounterDef{
	{
		Name: "trustcore_audit_dropped_total",
		Help: "Audit events dropped on a full buffer or an expired request.",
		Read: Source.AuditDropped,
	},
	{
		Name: "trustcore_audit_failed_total",
		Help: "Audit events lost to a failing sink.",
		Read: Source.AuditFailed,
	},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
