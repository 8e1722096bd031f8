package trustcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RedBox-TN/Backend-sub000/session"
)

func loginAlice(t *testing.T, h *testHarness) (LoginResult, *Credential) {
	t.Helper()
	cred := h.seedUser(t, "alice", "Secr3t!", false)
	res, err := h.engine.Login(h.ctx(), Identifier{Username: "alice"}, "Secr3t!")
	if err != nil || res.Status != StatusLoginSuccess {
		t.Fatalf("login: %+v, %v", res, err)
	}
	return res, cred
}

func TestLogout(t *testing.T) {
	h := newTestEngine(t, nil)
	login, cred := loginAlice(t, h)
	ctx := h.ctx()

	res, err := h.engine.Logout(ctx, login.Token)
	if err != nil || res.Status != StatusLoggedOut {
		t.Fatalf("Logout: %+v, %v", res, err)
	}
	if _, err := h.engine.sessions.TryGet(context.Background(), login.Token); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("session still present: %v", err)
	}
	if _, live, _ := h.engine.ActiveSession(ctx, cred.UserID); live {
		t.Fatal("identity index still present")
	}

	res, err = h.engine.Logout(ctx, login.Token)
	if err != nil || res.Status != StatusLoggedOut {
		t.Fatalf("repeated Logout: %+v, %v", res, err)
	}

	for _, tok := range []string{"", "not-a-token"} {
		res, err = h.engine.Logout(ctx, tok)
		if err != nil || res.Status != StatusNotLogged {
			t.Fatalf("Logout(%q): %+v, %v", tok, res, err)
		}
	}
}

func TestRefreshToken(t *testing.T) {
	h := newTestEngine(t, nil)
	login, cred := loginAlice(t, h)
	ctx := h.ctx()

	before, err := h.engine.sessions.TryGet(context.Background(), login.Token)
	if err != nil {
		t.Fatalf("TryGet: %v", err)
	}

	res, err := h.engine.RefreshToken(ctx, login.Token)
	if err != nil || res.Status != StatusRefreshed {
		t.Fatalf("RefreshToken: %+v, %v", res, err)
	}
	if res.Token == login.Token || len(res.Token) != len(login.Token) {
		t.Fatalf("unexpected new token %q", res.Token)
	}

	after, err := h.engine.sessions.TryGet(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("TryGet new: %v", err)
	}
	if *after != *before {
		t.Fatalf("refresh changed the session:\n got %+v\nwant %+v", *after, *before)
	}

	if _, err := h.engine.Authorize(ctx, login.Token, AuthenticationRequired()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old token must be invalid, got %v", err)
	}
	active, live, err := h.engine.ActiveSession(ctx, cred.UserID)
	if err != nil || !live || active.Token != res.Token {
		t.Fatalf("index not moved: %+v, %v, %v", active, live, err)
	}

	stale, err := h.engine.RefreshToken(ctx, login.Token)
	if err != nil || stale.Status != StatusInvalidToken {
		t.Fatalf("refresh with old token: %+v, %v", stale, err)
	}
}

func TestRefreshRejectsPendingAndUnknown(t *testing.T) {
	h := newTestEngine(t, nil)
	login, _ := loginPending(t, h, "bob")
	ctx := h.ctx()

	for _, tok := range []string{login.Token, "", "AAAAAAAAAAAAAAAA"} {
		res, err := h.engine.RefreshToken(ctx, tok)
		if err != nil || res.Status != StatusInvalidToken {
			t.Fatalf("RefreshToken(%q): %+v, %v", tok, res, err)
		}
	}
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	h := newTestEngine(t, nil)
	login, cred := loginAlice(t, h)

	h.mr.FastForward(61 * time.Minute)

	if _, err := h.engine.Authorize(h.ctx(), login.Token, AuthenticationRequired()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired session must be unauthorized, got %v", err)
	}
	if _, live, _ := h.engine.ActiveSession(h.ctx(), cred.UserID); live {
		t.Fatal("expired session must not be reported active")
	}
	res, err := h.engine.Login(h.ctx(), Identifier{Username: "alice"}, "Secr3t!")
	if err != nil || res.Status != StatusLoginSuccess {
		t.Fatalf("login after expiry: %+v, %v", res, err)
	}
}
