package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "arkivo_session", time.Hour, false), mr
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.SetUser("42")
	sess.Set("theme", "dark")

	rec := httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "arkivo_session" {
		t.Fatalf("expected session cookie, got %v", cookies)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.User() != "42" {
		t.Fatalf("user = %q, want 42", loaded.User())
	}
	if loaded.Get("theme") != "dark" {
		t.Fatalf("value lost on round trip")
	}
}

func TestSessionDestroyClearsStore(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetUser("7")
	rec := httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	sm.Destroy(sess)
	rec = httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, sess); err != nil {
		t.Fatalf("destroy commit: %v", err)
	}
	if mr.Exists("arkivo:session:" + sess.ID) {
		t.Fatalf("destroyed session still in redis")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("expected expired cookie, got %v", cookies)
	}
}

func TestSessionRotateChangesID(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetUser("9")
	if err := sm.Commit(ctx, httptest.NewRecorder(), sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	old := sess.ID

	if err := sm.Rotate(ctx, sess); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if sess.ID == old {
		t.Fatalf("rotate kept the old id")
	}
	if mr.Exists("arkivo:session:" + old) {
		t.Fatalf("old session id still valid after rotate")
	}
}

func TestCSRFTokenLifecycle(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "abc", values: map[string]string{}}

	token, err := m.EnsureToken(sess)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if again, _ := m.EnsureToken(sess); again != token {
		t.Fatalf("token should be stable per session")
	}
	if err := m.VerifyToken(sess, token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := m.VerifyToken(sess, "forged"); err == nil {
		t.Fatalf("forged token must fail")
	}
	if err := m.VerifyToken(sess, ""); err == nil {
		t.Fatalf("empty token must fail")
	}
}
