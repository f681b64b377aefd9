package policy

// Operator names the supported condition operators. The set is closed:
// evaluation switches exhaustively over these values and anything else
// fails the whole condition block, so an unknown operator can never
// grant access.
type Operator string

const (
	OpStringEquals    Operator = "StringEquals"
	OpStringNotEquals Operator = "StringNotEquals"
	OpStringLike      Operator = "StringLike"
)

// EvalCondition reports whether the request context satisfies every
// operator block of the condition. An absent condition means no
// additional constraint. Expected values may carry ${var} tokens,
// which are substituted from the same context before comparison.
func EvalCondition(cond Condition, ctx Context) bool {
	for op, terms := range cond {
		switch Operator(op) {
		case OpStringEquals:
			for key, expected := range terms {
				actual, ok := ctx.Lookup(key)
				if !ok || actual != substitute(expected, ctx) {
					return false
				}
			}
		case OpStringNotEquals:
			// A key absent from the context trivially differs.
			for key, expected := range terms {
				if actual, ok := ctx.Lookup(key); ok && actual == substitute(expected, ctx) {
					return false
				}
			}
		case OpStringLike:
			for key, pattern := range terms {
				actual, ok := ctx.Lookup(key)
				if !ok || !Match(actual, pattern, ctx) {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}
