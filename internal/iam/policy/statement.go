package policy

// Outcome classifies one statement against one request. The tri-state
// makes the aggregation fold explicit: a statement either applies with
// its declared effect or does not apply at all.
type Outcome int

const (
	OutcomeNotApplicable Outcome = iota
	OutcomeAllow
	OutcomeDeny
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "Allow"
	case OutcomeDeny:
		return "Deny"
	default:
		return "NotApplicable"
	}
}

// Eval classifies the statement against an action, resource and
// context. A statement applies only when some action pattern matches,
// some resource pattern matches, and its condition (if any) holds;
// it then yields its declared effect.
func (s Statement) Eval(action, resource string, ctx Context) Outcome {
	if !MatchAny(action, s.Action.Values(), ctx) {
		return OutcomeNotApplicable
	}
	if !MatchAny(resource, s.Resource.Values(), ctx) {
		return OutcomeNotApplicable
	}
	if len(s.Condition) > 0 && !EvalCondition(s.Condition, ctx) {
		return OutcomeNotApplicable
	}
	switch s.Effect {
	case EffectDeny:
		return OutcomeDeny
	case EffectAllow:
		return OutcomeAllow
	default:
		return OutcomeNotApplicable
	}
}
