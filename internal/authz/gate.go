// Package authz is the authorization boundary: it resolves the
// policies bound to a principal, asks the evaluation engine for a
// decision and exposes HTTP middleware that enforces it.
package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/arkivo-dms/arkivo/internal/iam/policy"
)

// PolicySource resolves the policy documents currently bound to a
// user. Implementations must exclude expired role bindings; the gate
// and the engine below it never re-check expiry.
type PolicySource interface {
	PoliciesForUser(ctx context.Context, userID int64) ([]policy.BoundPolicy, error)
}

// Principal identifies the authenticated actor being evaluated.
type Principal struct {
	ID       int64
	Username string
	Email    string
}

// ResourceFunc derives the resource identifier from the inbound
// request, e.g. "doc:" + chi.URLParam(r, "id").
type ResourceFunc func(r *http.Request) string

// StaticResource returns a ResourceFunc for a fixed resource string.
func StaticResource(resource string) ResourceFunc {
	return func(*http.Request) string { return resource }
}

// Result is the gate's verdict plus the trail used for audit logging.
type Result struct {
	policy.Decision
	Principal Principal
	Action    string
	Resource  string
	Elapsed   time.Duration
}

// Gate is the boundary function between request handling and policy
// evaluation. It holds no state and is safe for concurrent use; every
// call re-resolves the principal's current policies so a revoked role
// takes effect on the very next request.
type Gate struct {
	source PolicySource
	engine *policy.Engine
	logger *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(source PolicySource, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		source: source,
		engine: policy.NewEngine(logger),
		logger: logger,
	}
}

// Authorize decides whether the principal may perform action on
// resource. Overrides extend the evaluation context (for example a
// target document's author id); they cannot displace the principal's
// identity keys. A policy resolution failure yields a Deny with an
// error reason, never an implicit pass.
func (g *Gate) Authorize(ctx context.Context, p Principal, action, resource string, overrides policy.Context) Result {
	start := time.Now()
	evalCtx := policy.Context{}
	for key, value := range overrides {
		evalCtx[key] = value
	}
	evalCtx["userId"] = strconv.FormatInt(p.ID, 10)
	evalCtx["username"] = p.Username
	evalCtx["email"] = p.Email
	evalCtx["user"] = map[string]any{
		"id":       strconv.FormatInt(p.ID, 10),
		"username": p.Username,
		"email":    p.Email,
	}

	result := Result{Principal: p, Action: action, Resource: resource}
	policies, err := g.source.PoliciesForUser(ctx, p.ID)
	if err != nil {
		g.logger.Error("policy resolution failed",
			slog.Int64("user_id", p.ID),
			slog.String("action", action),
			slog.String("resource", resource),
			slog.Any("error", err))
		result.Decision = policy.Decision{
			Effect: policy.EffectDeny,
			Reason: "policy resolution failed",
		}
		result.Elapsed = time.Since(start)
		return result
	}

	result.Decision = g.engine.Decide(policies, action, resource, evalCtx)
	result.Elapsed = time.Since(start)
	return result
}
