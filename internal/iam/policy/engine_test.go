package policy

import (
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
)

func allowStatement(action, resource string) Statement {
	return Statement{
		Effect:   EffectAllow,
		Action:   NewStringList(action),
		Resource: NewStringList(resource),
	}
}

func denyStatement(action, resource string) Statement {
	return Statement{
		Effect:   EffectDeny,
		Action:   NewStringList(action),
		Resource: NewStringList(resource),
	}
}

func doc(statements ...Statement) Document {
	return Document{Version: "2024-01-01", Statement: statements}
}

func TestStatementEvalTriState(t *testing.T) {
	stmt := Statement{
		Effect:    EffectAllow,
		Action:    NewStringList("docs:Read", "docs:List"),
		Resource:  NewStringList("doc:public/*"),
		Condition: Condition{"StringEquals": {"request:channel": "web"}},
	}
	ctx := Context{"request:channel": "web"}

	if got := stmt.Eval("docs:Read", "doc:public/42", ctx); got != OutcomeAllow {
		t.Fatalf("applicable statement = %v, want Allow", got)
	}
	if got := stmt.Eval("docs:Delete", "doc:public/42", ctx); got != OutcomeNotApplicable {
		t.Fatalf("action mismatch = %v, want NotApplicable", got)
	}
	if got := stmt.Eval("docs:Read", "doc:private/42", ctx); got != OutcomeNotApplicable {
		t.Fatalf("resource mismatch = %v, want NotApplicable", got)
	}
	if got := stmt.Eval("docs:Read", "doc:public/42", Context{"request:channel": "batch"}); got != OutcomeNotApplicable {
		t.Fatalf("failed condition = %v, want NotApplicable", got)
	}
}

func TestDecideAllowsMatchingStatement(t *testing.T) {
	engine := NewEngine(slog.Default())
	policies := []BoundPolicy{{
		Name:     "public-read",
		Document: doc(allowStatement("docs:Read", "doc:public/*")),
	}}

	decision := engine.Decide(policies, "docs:Read", "doc:public/42", nil)
	if !decision.Allowed() {
		t.Fatalf("expected Allow, got %s (%s)", decision.Effect, decision.Reason)
	}
	if len(decision.Details) != 1 {
		t.Fatalf("expected one matched statement, got %v", decision.Details)
	}

	decision = engine.Decide(policies, "docs:Read", "doc:private/42", nil)
	if decision.Allowed() {
		t.Fatalf("expected implicit deny for unmatched resource")
	}
	if decision.Reason != ReasonImplicitDeny {
		t.Fatalf("reason = %q, want %q", decision.Reason, ReasonImplicitDeny)
	}
}

func TestDecideDenyOverridesAllow(t *testing.T) {
	engine := NewEngine(slog.Default())
	policies := []BoundPolicy{
		{Name: "all-docs", Document: doc(allowStatement("docs:*", "*"))},
		{Name: "lock-guard", Document: doc(denyStatement("docs:Delete", "doc:locked/*"))},
	}

	decision := engine.Decide(policies, "docs:Delete", "doc:locked/9", nil)
	if decision.Allowed() {
		t.Fatalf("explicit deny must beat the broad allow")
	}
	if decision.Reason != ReasonExplicitDeny {
		t.Fatalf("reason = %q, want %q", decision.Reason, ReasonExplicitDeny)
	}

	// The broad allow still applies elsewhere.
	if d := engine.Decide(policies, "docs:Delete", "doc:drafts/9", nil); !d.Allowed() {
		t.Fatalf("deny must not leak beyond its resource pattern")
	}
}

func TestDecideEmptyPolicySet(t *testing.T) {
	decision := NewEngine(nil).Decide(nil, "docs:Read", "doc:1", nil)
	if decision.Allowed() {
		t.Fatalf("no policies must deny")
	}
	if decision.Reason != ReasonNoPolicies {
		t.Fatalf("reason = %q, want %q", decision.Reason, ReasonNoPolicies)
	}
}

func TestDecideWildcardActionMatchesNamespacedActions(t *testing.T) {
	engine := NewEngine(slog.Default())
	policies := []BoundPolicy{{Name: "root", Document: doc(allowStatement("*", "*"))}}
	for _, action := range []string{"docs:Delete", "users:Create", "iam:AttachPolicy"} {
		if d := engine.Decide(policies, action, "doc:1", nil); !d.Allowed() {
			t.Fatalf("action %q should be allowed by wildcard", action)
		}
	}
}

func TestDecideConditionGatesOwnership(t *testing.T) {
	engine := NewEngine(slog.Default())
	policies := []BoundPolicy{{
		Name: "author-edit",
		Document: doc(Statement{
			Effect:    EffectAllow,
			Action:    NewStringList("docs:Update"),
			Resource:  NewStringList("*"),
			Condition: Condition{"StringEquals": {"docs:author_id": "${user.id}"}},
		}),
	}}

	owner := Context{"user": map[string]any{"id": "u7"}, "docs:author_id": "u7"}
	if d := engine.Decide(policies, "docs:Update", "doc:9", owner); !d.Allowed() {
		t.Fatalf("author should be allowed: %s", d.Reason)
	}

	stranger := Context{"user": map[string]any{"id": "u7"}, "docs:author_id": "u8"}
	if d := engine.Decide(policies, "docs:Update", "doc:9", stranger); d.Allowed() {
		t.Fatalf("non-author must be denied")
	}
}

func TestDecideSkipsMalformedDocuments(t *testing.T) {
	engine := NewEngine(slog.Default())
	policies := []BoundPolicy{
		{Name: "broken", Document: Document{Version: "", Statement: []Statement{allowStatement("*", "*")}}},
		{Name: "empty", Document: Document{Version: "2024-01-01"}},
	}
	if d := engine.Decide(policies, "docs:Read", "doc:1", nil); d.Allowed() {
		t.Fatalf("malformed documents must never contribute an Allow")
	}

	// A malformed document among valid ones does not abort evaluation.
	policies = append(policies, BoundPolicy{Name: "ok", Document: doc(allowStatement("docs:Read", "*"))})
	if d := engine.Decide(policies, "docs:Read", "doc:1", nil); !d.Allowed() {
		t.Fatalf("valid policy should still decide: %s", d.Reason)
	}
}

func TestDecideIdempotentUnderDuplicateBindings(t *testing.T) {
	engine := NewEngine(slog.Default())
	editor := BoundPolicy{Name: "editor", Document: doc(allowStatement("docs:Update", "doc:*"))}

	once := engine.Decide([]BoundPolicy{editor}, "docs:Update", "doc:5", nil)
	twice := engine.Decide([]BoundPolicy{editor, editor}, "docs:Update", "doc:5", nil)
	if once.Effect != twice.Effect {
		t.Fatalf("duplicate binding changed the decision: %s vs %s", once.Effect, twice.Effect)
	}
}

func TestDecideOrderIndependent(t *testing.T) {
	engine := NewEngine(slog.Default())
	policies := []BoundPolicy{
		{Name: "a", Document: doc(allowStatement("docs:*", "*"))},
		{Name: "b", Document: doc(denyStatement("docs:Delete", "doc:locked/*"))},
		{Name: "c", Document: doc(allowStatement("users:*", "user:*"))},
		{Name: "d", Document: doc(denyStatement("*", "doc:quarantine/*"))},
	}
	requests := []struct{ action, resource string }{
		{"docs:Delete", "doc:locked/9"},
		{"docs:Read", "doc:open/1"},
		{"users:Create", "user:new"},
		{"docs:Read", "doc:quarantine/3"},
		{"billing:Export", "invoice:7"},
	}

	rng := rand.New(rand.NewSource(1))
	for _, req := range requests {
		want := engine.Decide(policies, req.action, req.resource, nil).Effect
		for i := 0; i < 20; i++ {
			shuffled := make([]BoundPolicy, len(policies))
			copy(shuffled, policies)
			rng.Shuffle(len(shuffled), func(a, b int) {
				shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
			})
			if got := engine.Decide(shuffled, req.action, req.resource, nil).Effect; got != want {
				t.Fatalf("%s %s: decision changed under shuffle: %s vs %s", req.action, req.resource, got, want)
			}
		}
	}
}

func TestDecideConcurrentUse(t *testing.T) {
	engine := NewEngine(slog.Default())
	policies := []BoundPolicy{
		{Name: "all", Document: doc(allowStatement("docs:*", "*"))},
		{Name: "guard", Document: doc(denyStatement("docs:Delete", "doc:locked/*"))},
	}

	done := make(chan error, 32)
	for i := 0; i < 32; i++ {
		go func(i int) {
			for j := 0; j < 100; j++ {
				if d := engine.Decide(policies, "docs:Delete", "doc:locked/9", nil); d.Allowed() {
					done <- fmt.Errorf("goroutine %d: deny-overrides violated", i)
					return
				}
				if d := engine.Decide(policies, "docs:Read", "doc:open/1", nil); !d.Allowed() {
					done <- fmt.Errorf("goroutine %d: expected allow", i)
					return
				}
			}
			done <- nil
		}(i)
	}
	for i := 0; i < 32; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}
