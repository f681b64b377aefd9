package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// Context carries the request attributes available to condition checks
// and ${var} substitution. Values may be strings or nested maps.
type Context map[string]any

// Lookup resolves a key against the context. A key that exists
// verbatim wins; otherwise the key is walked as a dotted path through
// nested maps ("user.id" reads ctx["user"]["id"]).
func (c Context) Lookup(key string) (string, bool) {
	if v, ok := c[key]; ok {
		return stringify(v)
	}
	parts := strings.Split(key, ".")
	var current any = map[string]any(c)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = m[part]
		if !ok {
			return "", false
		}
	}
	return stringify(current)
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	case nil:
		return "", false
	case map[string]any:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}

var variableToken = regexp.MustCompile(`\$\{([^}]+)\}`)

// substitute replaces ${a.b.c} tokens with values from the context.
// A token whose path resolves to nothing is left in place literally,
// which makes the enclosing pattern effectively unmatchable against
// real identifiers. Evaluation stays fail closed either way.
func substitute(pattern string, ctx Context) string {
	if ctx == nil || !strings.Contains(pattern, "${") {
		return pattern
	}
	return variableToken.ReplaceAllStringFunc(pattern, func(token string) string {
		key := token[2 : len(token)-1]
		if value, ok := ctx.Lookup(key); ok {
			return value
		}
		return token
	})
}

// Match reports whether candidate satisfies pattern. "*" matches
// everything. ${var} tokens are substituted from the context first,
// then the pattern must either equal the candidate exactly or, if it
// contains wildcards, match as a glob where "*" spans zero or more
// characters, anchored at both ends. Actions and resources share this
// matcher.
func Match(candidate, pattern string, ctx Context) bool {
	if pattern == "*" {
		return true
	}
	pattern = substitute(pattern, ctx)
	if pattern == candidate {
		return true
	}
	if strings.Contains(pattern, "*") {
		return globMatch(pattern, candidate)
	}
	return false
}

// MatchAny reports whether any of the patterns matches the candidate.
func MatchAny(candidate string, patterns []string, ctx Context) bool {
	for _, p := range patterns {
		if Match(candidate, p, ctx) {
			return true
		}
	}
	return false
}

// globMatch matches candidate against a pattern whose "*" wildcards
// span zero or more characters. The literal segments between
// wildcards must appear in order; the first and last segments are
// anchored to the ends of the candidate.
func globMatch(pattern, candidate string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == candidate
	}
	if !strings.HasPrefix(candidate, parts[0]) {
		return false
	}
	rest := candidate[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return strings.HasSuffix(rest, last)
}
