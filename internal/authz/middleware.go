package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/arkivo-dms/arkivo/internal/platform/httpx"
	"github.com/arkivo-dms/arkivo/internal/shared"
)

// PrincipalSource loads the principal behind an authenticated session.
type PrincipalSource interface {
	FindPrincipal(ctx context.Context, userID int64) (Principal, error)
}

// DecisionRecorder receives every decision for the audit trail.
// Recording must not block the request path on failure.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, result Result)
}

// Middleware wires gate checks into HTTP handlers.
type Middleware struct {
	Gate       *Gate
	Principals PrincipalSource
	Logger     *slog.Logger
	Recorder   DecisionRecorder
	Observe    func(Result)
}

// Require enforces an action on the resource derived from the request.
// A denied request gets a generic 403; the reason trail goes to the
// log and the audit recorder, never to the caller.
func (m Middleware) Require(action string, resource ResourceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := m.currentPrincipal(r)
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
				return
			}

			result := m.Gate.Authorize(r.Context(), principal, action, resource(r), nil)
			m.report(r.Context(), result)
			if !result.Allowed() {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// Authenticate resolves the session principal into the request context
// without making a decision. Handlers behind it derive the resource
// from loaded state and call Check themselves.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := m.currentPrincipal(r)
		if !ok {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// Check runs an additional gate decision from inside a handler, for
// fine-grained checks that need attributes of the loaded target (for
// example the document author id). The decision is reported the same
// way as middleware decisions.
func (m Middleware) Check(ctx context.Context, principal Principal, action, resource string, overrides map[string]any) Result {
	result := m.Gate.Authorize(ctx, principal, action, resource, overrides)
	m.report(ctx, result)
	return result
}

func (m Middleware) report(ctx context.Context, result Result) {
	if m.Logger != nil {
		level := slog.LevelDebug
		if !result.Allowed() {
			level = slog.LevelInfo
		}
		m.Logger.Log(ctx, level, "authorization decision",
			slog.Int64("user_id", result.Principal.ID),
			slog.String("action", result.Action),
			slog.String("resource", result.Resource),
			slog.String("effect", string(result.Effect)),
			slog.String("reason", result.Reason),
			slog.String("details", strings.Join(result.Details, "; ")))
	}
	if m.Recorder != nil {
		m.Recorder.RecordDecision(ctx, result)
	}
	if m.Observe != nil {
		m.Observe(result)
	}
}

func (m Middleware) currentPrincipal(r *http.Request) (Principal, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Principal{}, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return Principal{}, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return Principal{}, false
	}
	principal, err := m.Principals.FindPrincipal(r.Context(), id)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("load principal", slog.Int64("user_id", id), slog.Any("error", err))
		}
		return Principal{}, false
	}
	return principal, true
}

type principalContextKey struct{}

// ContextWithPrincipal stashes the authenticated principal for
// downstream handlers.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal placed by Require.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
