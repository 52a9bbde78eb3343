package server

import (
	"testing"
	"time"

	"github.com/oakward/oauth-core/storage"
)

func TestDeriveClientType(t *testing.T) {
	tests := []struct {
		profile string
		want    string
	}{
		{storage.ProfileWeb, storage.TypeConfidential},
		{storage.ProfileUserAgentBase, storage.TypePublic},
		{storage.ProfileNative, storage.TypePublic},
	}

	for _, tt := range tests {
		if got := DeriveClientType(tt.profile); got != tt.want {
			t.Errorf("DeriveClientType(%q) = %q, want %q", tt.profile, got, tt.want)
		}
	}
}

func TestDeriveAllowedGrants(t *testing.T) {
	tests := []struct {
		name       string
		clientType string
		internal   bool
		want       []string
	}{
		{
			name:       "public external",
			clientType: storage.TypePublic,
			want:       []string{GrantImplicit, GrantAuthorizationCode},
		},
		{
			name:       "public internal",
			clientType: storage.TypePublic,
			internal:   true,
			want:       []string{GrantImplicit, GrantAuthorizationCode, GrantPassword},
		},
		{
			name:       "confidential external",
			clientType: storage.TypeConfidential,
			want:       []string{GrantImplicit, GrantAuthorizationCode},
		},
		{
			name:       "confidential internal",
			clientType: storage.TypeConfidential,
			internal:   true,
			want:       []string{GrantImplicit, GrantAuthorizationCode, GrantPassword, GrantClientCredentials},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveAllowedGrants(tt.clientType, tt.internal)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestExpiryTableLifetime(t *testing.T) {
	table := ExpiryTable{
		ConfidentialInternal: 24 * time.Hour,
		ConfidentialExternal: 12 * time.Hour,
		PublicInternal:       2 * time.Hour,
		PublicExternal:       1 * time.Hour,
	}

	tests := []struct {
		name       string
		clientType string
		internal   bool
		want       time.Duration
	}{
		{"confidential internal", storage.TypeConfidential, true, 24 * time.Hour},
		{"confidential external", storage.TypeConfidential, false, 12 * time.Hour},
		{"public internal", storage.TypePublic, true, 2 * time.Hour},
		{"public external", storage.TypePublic, false, 1 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &storage.Client{Type: tt.clientType, Internal: tt.internal}
			if got := table.Lifetime(client); got != tt.want {
				t.Errorf("Lifetime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateClientScope(t *testing.T) {
	tests := []struct {
		name        string
		clientScope string
		requested   string
		want        bool
	}{
		{"subset allowed", "read write", "read", true},
		{"full set allowed", "read write", "read write", true},
		{"empty request allowed", "read write", "", true},
		{"excess token rejected", "read write", "read delete", false},
		{"wildcard client accepts anything", WildcardScope, "read write delete", true},
		{"wildcard client accepts wildcard", WildcardScope, WildcardScope, true},
		{"wildcard request rejected for plain client", "read write", WildcardScope, false},
		{"empty client scope rejects request", "", "read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &storage.Client{Scope: tt.clientScope}
			if got := ValidateClientScope(client, tt.requested); got != tt.want {
				t.Errorf("ValidateClientScope(%q, %q) = %v, want %v", tt.clientScope, tt.requested, got, tt.want)
			}
		})
	}
}

func TestMergeScopes(t *testing.T) {
	tests := []struct {
		name         string
		subjectScope string
		requestScope string
		clientScope  string
		want         string
	}{
		{"intersection with request", "read write", "write delete", "read write delete", "write"},
		{"falls back to client scope", "read write", "", "write", "write"},
		{"empty subject passes request through", "", "read write", "read write delete", "read write"},
		{"empty subject passes client scope through", "", "", "read write", "read write"},
		{"wildcard subject yields operand", WildcardScope, "read write", "read write delete", "read write"},
		{"wildcard operand yields subject", "read write", WildcardScope, WildcardScope, "read write"},
		{"disjoint yields empty", "read", "write", "read write", ""},
		{"order follows subject scope", "write read", "read write", "read write", "write read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeScopes(tt.subjectScope, tt.requestScope, tt.clientScope)
			if got != tt.want {
				t.Errorf("MergeScopes(%q, %q, %q) = %q, want %q",
					tt.subjectScope, tt.requestScope, tt.clientScope, got, tt.want)
			}
		})
	}
}

func TestScopeSatisfies(t *testing.T) {
	tests := []struct {
		name     string
		granted  string
		required string
		want     bool
	}{
		{"exact match", "read", "read", true},
		{"superset satisfies", "read write", "read", true},
		{"missing token fails", "read", "read write", false},
		{"empty requirement satisfied", "", "", true},
		{"empty grant fails nonempty requirement", "", "read", false},
		{"wildcard grant satisfies everything", WildcardScope, "read write delete", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScopeSatisfies(tt.granted, tt.required); got != tt.want {
				t.Errorf("ScopeSatisfies(%q, %q) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestScopeOverlap(t *testing.T) {
	tests := []struct {
		previous  string
		requested string
		want      string
	}{
		{"read write", "delete", ""},
		{"read write", "write", "write"},
		{"read write", "delete write", "write"},
		{"", "read", ""},
	}

	for _, tt := range tests {
		if got := scopeOverlap(tt.previous, tt.requested); got != tt.want {
			t.Errorf("scopeOverlap(%q, %q) = %q, want %q", tt.previous, tt.requested, got, tt.want)
		}
	}
}

func TestAppendScope(t *testing.T) {
	tests := []struct {
		previous  string
		requested string
		want      string
	}{
		{"read write", "delete", "read write delete"},
		{"read", "", "read"},
		{"", "read", "read"},
	}

	for _, tt := range tests {
		if got := appendScope(tt.previous, tt.requested); got != tt.want {
			t.Errorf("appendScope(%q, %q) = %q, want %q", tt.previous, tt.requested, got, tt.want)
		}
	}
}
