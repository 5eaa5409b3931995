package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
)

// fakeScopeRepo is a minimal in-memory registry for validator tests.
type fakeScopeRepo struct {
	scopes map[string]repository.Scope
}

func (f *fakeScopeRepo) GetByName(ctx context.Context, name string) (*repository.Scope, error) {
	s, ok := f.scopes[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}
func (f *fakeScopeRepo) List(ctx context.Context) ([]repository.Scope, error) { return nil, nil }
func (f *fakeScopeRepo) Upsert(ctx context.Context, in repository.ScopeInput) (*repository.Scope, error) {
	return nil, nil
}
func (f *fakeScopeRepo) Delete(ctx context.Context, name string) error { return nil }

func newTestValidator() *ScopeValidator {
	return NewScopeValidator(&fakeScopeRepo{scopes: map[string]repository.Scope{
		"openid":  {Name: "openid", Public: true, Active: true},
		"profile": {Name: "profile", Public: true, Active: true},
		"email":   {Name: "email", Public: true, Active: true},
		"admin":   {Name: "admin", Public: false, Active: true},
		"legacy":  {Name: "legacy", Public: true, Active: false},
	}})
}

func confidentialClient(allowed ...string) *repository.Client {
	return &repository.Client{
		ClientID:      "web-app",
		Type:          repository.ClientTypeConfidential,
		AllowedScopes: allowed,
		Active:        true,
	}
}

func TestValidateForClient_Granted(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateForClient(context.Background(), confidentialClient("openid", "profile", "email"), "openid profile")
	if !res.OK() {
		t.Fatalf("expected valid, got %q", res.Description)
	}
	if got := res.GrantedString(); got != "openid profile" {
		t.Fatalf("granted = %q", got)
	}
}

func TestValidateForClient_EmptyIsValid(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateForClient(context.Background(), confidentialClient("openid"), "")
	if !res.OK() || len(res.Granted) != 0 {
		t.Fatalf("empty scope must be trivially valid: %+v", res)
	}
}

func TestValidateForClient_Dedupe(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateForClient(context.Background(), confidentialClient("openid", "email"), "openid openid email")
	if got := res.GrantedString(); got != "openid email" {
		t.Fatalf("granted = %q", got)
	}
}

func TestValidateForClient_NotAllowed(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateForClient(context.Background(), confidentialClient("openid"), "openid profile")
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Description, "not allowed for this client") {
		t.Fatalf("description = %q", res.Description)
	}
	if len(res.Invalid) != 1 || res.Invalid[0] != "profile" {
		t.Fatalf("invalid = %v", res.Invalid)
	}
}

func TestValidateForClient_InactiveScope(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateForClient(context.Background(), confidentialClient("openid", "legacy"), "openid legacy")
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Description, "invalid or inactive") {
		t.Fatalf("description = %q", res.Description)
	}
}

func TestValidateForClient_UnknownScopeSameAsInactive(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateForClient(context.Background(), confidentialClient("openid", "ghost"), "ghost")
	if res.OK() {
		t.Fatal("expected failure")
	}
	// Un scope inexistente y uno inactivo reportan la misma categoría.
	if !strings.Contains(res.Description, "invalid or inactive") {
		t.Fatalf("description = %q", res.Description)
	}
}

func TestValidateForClient_PublicClientNonPublicScope(t *testing.T) {
	v := newTestValidator()
	client := &repository.Client{
		ClientID:      "spa",
		Type:          repository.ClientTypePublic,
		AllowedScopes: []string{"openid", "admin"},
		Active:        true,
	}
	res := v.ValidateForClient(context.Background(), client, "openid admin")
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Description, "non-public") {
		t.Fatalf("description = %q", res.Description)
	}
}

func TestValidateForClient_ControlCharsMalformed(t *testing.T) {
	v := newTestValidator()
	res := v.ValidateForClient(context.Background(), confidentialClient("openid"), "openid\nprofile")
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Description, "malformed") {
		t.Fatalf("description = %q", res.Description)
	}
}

func TestValidateAgainstList(t *testing.T) {
	v := newTestValidator()

	res := v.ValidateAgainstList([]string{"api:read", "api:write"}, "api:read")
	if !res.OK() || res.GrantedString() != "api:read" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = v.ValidateAgainstList([]string{"api:read"}, "api:write")
	if res.OK() {
		t.Fatal("expected failure")
	}
}

func TestIsSubset(t *testing.T) {
	have := []string{"openid", "profile", "email"}
	if !IsSubset([]string{"openid", "email"}, have) {
		t.Fatal("expected subset")
	}
	if IsSubset([]string{"openid", "admin"}, have) {
		t.Fatal("expected not a subset")
	}
	if !IsSubset(nil, have) {
		t.Fatal("empty want is trivially a subset")
	}
}
