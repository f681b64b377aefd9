package policy

import (
	"fmt"
	"log/slog"
)

// Canonical decision reasons. The distinct no-policies reason keeps a
// misconfigured principal distinguishable from an ordinary implicit
// deny in logs and audit records.
const (
	ReasonNoPolicies   = "no policies bound to principal"
	ReasonExplicitDeny = "explicit deny"
	ReasonAllowed      = "allowed by policy"
	ReasonImplicitDeny = "implicit deny: no matching statement"
)

// BoundPolicy pairs a resolved document with the policy name it was
// bound under, so decisions can name their sources.
type BoundPolicy struct {
	Name     string
	Document Document
}

// Decision is the aggregate verdict for one request.
type Decision struct {
	Effect  Effect
	Reason  string
	Details []string
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow
}

// Engine reduces a principal's policy set to a single decision. It is
// stateless and safe for concurrent use.
type Engine struct {
	logger *slog.Logger
}

// NewEngine constructs an Engine. A nil logger falls back to the
// default slog logger.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Decide evaluates every statement of every bound policy against the
// request and folds the outcomes with deny-overrides, default-deny
// semantics:
//
//  1. No policies bound → Deny.
//  2. Any applicable Deny statement → Deny, regardless of Allows.
//  3. Otherwise any applicable Allow statement → Allow.
//  4. Otherwise → Deny (absence of a grant is never permission).
//
// A document that fails validation is skipped with a warning so one
// bad policy cannot abort evaluation, and can never contribute an
// Allow. The fold is commutative over the policy list, so decisions
// are independent of binding order and idempotent under duplicates.
func (e *Engine) Decide(policies []BoundPolicy, action, resource string, ctx Context) Decision {
	if len(policies) == 0 {
		return Decision{Effect: EffectDeny, Reason: ReasonNoPolicies}
	}

	var denies, allows []string
	for _, bound := range policies {
		if err := bound.Document.Validate(); err != nil {
			e.logger.Warn("skipping malformed policy document",
				slog.String("policy", bound.Name),
				slog.Any("error", err))
			continue
		}
		for i, stmt := range bound.Document.Statement {
			switch stmt.Eval(action, resource, ctx) {
			case OutcomeDeny:
				denies = append(denies, statementRef(bound.Name, i, EffectDeny))
			case OutcomeAllow:
				allows = append(allows, statementRef(bound.Name, i, EffectAllow))
			}
		}
	}

	switch {
	case len(denies) > 0:
		return Decision{Effect: EffectDeny, Reason: ReasonExplicitDeny, Details: append(denies, allows...)}
	case len(allows) > 0:
		return Decision{Effect: EffectAllow, Reason: ReasonAllowed, Details: allows}
	default:
		return Decision{Effect: EffectDeny, Reason: ReasonImplicitDeny}
	}
}

func statementRef(policy string, index int, effect Effect) string {
	return fmt.Sprintf("%s by policy %q statement %d", effect, policy, index)
}
