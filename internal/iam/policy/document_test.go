package policy

import (
	"encoding/json"
	"testing"
)

func TestParseDocumentRoundTrip(t *testing.T) {
	raw := `{"Version":"2024-01-01","Statement":[{"Effect":"Allow","Action":"docs:Read","Resource":["doc:public/*","doc:shared/*"],"Condition":{"StringEquals":{"request:channel":"web"}}}]}`

	parsed, err := ParseDocument([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := parsed.Statement[0].Action.Values(); len(got) != 1 || got[0] != "docs:Read" {
		t.Fatalf("action values = %v", got)
	}
	if got := parsed.Statement[0].Resource.Values(); len(got) != 2 {
		t.Fatalf("resource values = %v", got)
	}

	out, err := json.Marshal(parsed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// A bare string stays a bare string, an array stays an array.
	if string(out) != raw {
		t.Fatalf("round trip changed the document:\n in: %s\nout: %s", raw, out)
	}
}

func TestParseDocumentRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing version", `{"Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`},
		{"missing statements", `{"Version":"1"}`},
		{"empty statements", `{"Version":"1","Statement":[]}`},
		{"non-array statement", `{"Version":"1","Statement":{"Effect":"Allow"}}`},
		{"bad effect", `{"Version":"1","Statement":[{"Effect":"Permit","Action":"*","Resource":"*"}]}`},
		{"missing action", `{"Version":"1","Statement":[{"Effect":"Allow","Resource":"*"}]}`},
		{"missing resource", `{"Version":"1","Statement":[{"Effect":"Allow","Action":"*"}]}`},
		{"numeric action", `{"Version":"1","Statement":[{"Effect":"Allow","Action":7,"Resource":"*"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDocument([]byte(tc.raw)); err == nil {
				t.Fatalf("expected rejection of %s", tc.raw)
			}
		})
	}
}

func TestValidateAcceptsMinimalDocument(t *testing.T) {
	document := Document{
		Version: "2024-01-01",
		Statement: []Statement{{
			Effect:   EffectDeny,
			Action:   NewStringList("*"),
			Resource: NewStringList("*"),
		}},
	}
	if err := document.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
