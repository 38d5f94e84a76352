package auth

import (
	"net/http/httptest"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"Bearer   padded  ", "padded", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		got, err := ExtractBearerToken(r)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("header %q: got (%q, %v)", tc.header, got, err)
		}
	}
}

func TestAuthenticateAdminKey(t *testing.T) {
	p, ok := Authenticate("admin-key", "admin-key", nil)
	if !ok {
		t.Fatal("admin key rejected")
	}
	if !HasAnyScope(p, ScopeCommandsRW) {
		t.Fatal("admin should have every scope")
	}
}

func TestAuthenticateScopedToken(t *testing.T) {
	tokens := []TokenConfig{
		{Token: "reader", Scopes: []string{"commands:ro", " "}},
		{Token: "writer", Scopes: []string{"commands:rw", "events:rw"}},
	}

	reader, ok := Authenticate("reader", "", tokens)
	if !ok {
		t.Fatal("reader rejected")
	}
	if HasAnyScope(reader, ScopeCommandsRW) {
		t.Fatal("reader must not write")
	}
	if !HasAnyScope(reader, ScopeCommandsRO) {
		t.Fatal("reader must read")
	}

	writer, _ := Authenticate("writer", "", tokens)
	if !HasAnyScope(writer, ScopeCommandsRO) || !HasAnyScope(writer, ScopeEventsRO) {
		t.Fatal("write scopes should imply read")
	}

	if _, ok := Authenticate("nobody", "", tokens); ok {
		t.Fatal("unknown token accepted")
	}
	if _, ok := Authenticate("", "", tokens); ok {
		t.Fatal("empty token accepted")
	}
}

func TestEnabled(t *testing.T) {
	if Enabled("", nil) {
		t.Fatal("no credentials should disable auth")
	}
	if !Enabled("", []TokenConfig{{Token: "x"}}) {
		t.Fatal("tokens should enable auth")
	}
}
