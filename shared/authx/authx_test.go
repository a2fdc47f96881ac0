package authx

import "testing"

func TestParseRoles(t *testing.T) {
	claims := map[string]any{
		"roles": []any{"admin", "member"},
		"scp":   "missions.read missions.write",
	}
	roles := parseRoles(claims)
	if len(roles) != 4 {
		t.Fatalf("expected 4 roles, got %v", roles)
	}
}

func TestParseRolesDeduplicates(t *testing.T) {
	claims := map[string]any{
		"roles": []any{"admin", "admin"},
		"role":  "admin",
	}
	roles := parseRoles(claims)
	if len(roles) != 1 || roles[0] != "admin" {
		t.Fatalf("expected deduped [admin], got %v", roles)
	}
}

func TestNewJWTVerifierValidation(t *testing.T) {
	if _, err := NewJWTVerifier("", "aud", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing issuer")
	}
	if _, err := NewJWTVerifier("https://auth.example.com", "", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing audience")
	}
}

func TestHasRole(t *testing.T) {
	a := AuthContext{Roles: []string{"admin"}}
	if !a.HasRole("admin") || a.HasRole("member") {
		t.Fatalf("unexpected role membership: %v", a.Roles)
	}
}
