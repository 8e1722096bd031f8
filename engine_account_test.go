package trustcore

import (
	"errors"
	"testing"
)

func TestNewCredential(t *testing.T) {
	h := newTestEngine(t, nil)

	cred, err := h.engine.NewCredential(" carol ", "carol@redbox.test", "Secr3t!", "member")
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	if cred.UserID == "" || cred.Username != "carol" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if len(cred.Salt) != 16 || len(cred.PasswordHash) != 32 {
		t.Fatalf("unexpected salt/hash lengths %d/%d", len(cred.Salt), len(cred.PasswordHash))
	}
	ok, err := h.engine.hasher.VerifyPassword("Secr3t!", cred.PasswordHash, cred.Salt)
	if err != nil || !ok {
		t.Fatalf("hash does not verify: %v, %v", ok, err)
	}

	other, err := h.engine.NewCredential("dave", "", "Secr3t!", "member")
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	if other.UserID == cred.UserID {
		t.Fatal("expected distinct user ids")
	}

	if _, err := h.engine.NewCredential("", "x@redbox.test", "Secr3t!", "member"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing username: got %v", err)
	}
	if _, err := h.engine.NewCredential("erin", "", "abc", "member"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("short password: got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	h := newTestEngine(t, nil)
	login, cred := loginAlice(t, h)
	ctx := h.ctx()

	if err := h.engine.ChangePassword(ctx, login.Token, "wrong-old", "N3w-secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong old password: got %v", err)
	}
	if err := h.engine.ChangePassword(ctx, login.Token, "Secr3t!", "Secr3t!"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("same password: got %v", err)
	}
	if err := h.engine.ChangePassword(ctx, login.Token, "Secr3t!", "abc"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("short password: got %v", err)
	}
	if err := h.engine.ChangePassword(ctx, "AAAAAAAAAAAAAAAA", "Secr3t!", "N3w-secret"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown token: got %v", err)
	}

	if err := h.engine.ChangePassword(ctx, login.Token, "Secr3t!", "N3w-secret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	stored := h.dir.get(cred.UserID)
	if len(stored.PasswordHistory) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(stored.PasswordHistory))
	}

	if err := h.engine.ChangePassword(ctx, login.Token, "N3w-secret", "Secr3t!"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("reuse from history: got %v", err)
	}

	if _, err := h.engine.Authorize(ctx, login.Token, AuthenticationRequired()); err != nil {
		t.Fatalf("session must survive a password change: %v", err)
	}
	if _, err := h.engine.Logout(ctx, login.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	res, err := h.engine.Login(ctx, Identifier{Username: "alice"}, "N3w-secret")
	if err != nil || res.Status != StatusLoginSuccess {
		t.Fatalf("login with new password: %+v, %v", res, err)
	}
}

func TestPasswordHistoryIsBounded(t *testing.T) {
	h := newTestEngine(t, func(c *Config) { c.Password.HistorySize = 2 })
	login, cred := loginAlice(t, h)
	ctx := h.ctx()

	passwords := []string{"Secr3t!", "pass-one", "pass-two", "pass-three"}
	for i := 1; i < len(passwords); i++ {
		if err := h.engine.ChangePassword(ctx, login.Token, passwords[i-1], passwords[i]); err != nil {
			t.Fatalf("change %d: %v", i, err)
		}
	}
	if got := len(h.dir.get(cred.UserID).PasswordHistory); got != 2 {
		t.Fatalf("expected history of 2, got %d", got)
	}

	// "Secr3t!" fell out of the window and is allowed again.
	if err := h.engine.ChangePassword(ctx, login.Token, "pass-three", "Secr3t!"); err != nil {
		t.Fatalf("password outside history window: %v", err)
	}
}

func TestTOTPEnrollmentLifecycle(t *testing.T) {
	h := newTestEngine(t, nil)
	login, cred := loginAlice(t, h)
	ctx := h.ctx()

	if err := h.engine.ConfirmTOTPEnrollment(ctx, login.Token, "123456"); !errors.Is(err, ErrTOTPNotEnrolled) {
		t.Fatalf("confirm before begin: got %v", err)
	}

	secret, err := h.engine.BeginTOTPEnrollment(ctx, login.Token)
	if err != nil {
		t.Fatalf("BeginTOTPEnrollment: %v", err)
	}
	if secret.Secret == "" || secret.ProvisioningURI == "" || secret.ManualEntryCode == "" {
		t.Fatalf("incomplete shared secret %+v", secret)
	}
	if stored := h.dir.get(cred.UserID); stored.TOTPEnabled || stored.TOTPSecret != secret.Secret {
		t.Fatalf("secret must be stored disabled, got %+v", stored)
	}

	if err := h.engine.ConfirmTOTPEnrollment(ctx, login.Token, h.wrongCode(t, secret.Secret)); !errors.Is(err, ErrTOTPInvalid) {
		t.Fatalf("wrong confirmation code: got %v", err)
	}
	if err := h.engine.ConfirmTOTPEnrollment(ctx, login.Token, h.code(t, secret.Secret)); err != nil {
		t.Fatalf("ConfirmTOTPEnrollment: %v", err)
	}
	if !h.dir.get(cred.UserID).TOTPEnabled {
		t.Fatal("second factor not enabled")
	}
	if _, err := h.engine.BeginTOTPEnrollment(ctx, login.Token); !errors.Is(err, ErrTOTPAlreadyEnabled) {
		t.Fatalf("begin while enabled: got %v", err)
	}

	if _, err := h.engine.Logout(ctx, login.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	res, err := h.engine.Login(ctx, Identifier{Username: "alice"}, "Secr3t!")
	if err != nil || res.Status != StatusRequire2FA {
		t.Fatalf("login with second factor: %+v, %v", res, err)
	}
	v, err := h.engine.Verify2FA(ctx, res.Token, h.code(t, secret.Secret))
	if err != nil || v.Status != StatusVerified {
		t.Fatalf("Verify2FA: %+v, %v", v, err)
	}

	if err := h.engine.DisableTOTP(ctx, res.Token, h.code(t, secret.Secret)); err != nil {
		t.Fatalf("DisableTOTP: %v", err)
	}
	if stored := h.dir.get(cred.UserID); stored.TOTPEnabled || stored.TOTPSecret != "" {
		t.Fatalf("second factor not cleared: %+v", stored)
	}
}

func TestUnblockAccountValidation(t *testing.T) {
	h := newTestEngine(t, nil)
	if err := h.engine.UnblockAccount(h.ctx(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty id: got %v", err)
	}
	if err := h.engine.UnblockAccount(h.ctx(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown id: got %v", err)
	}
}
