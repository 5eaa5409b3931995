package validation

import (
	"context"
	"strings"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
)

// ScopeResult is the outcome of a scope validation pass.
type ScopeResult struct {
	// Valid scopes, in request order, deduplicated.
	Granted []string
	// Scopes that failed validation. Empty when the request is valid.
	Invalid []string
	// Human-readable reason for the first failing category. Empty when valid.
	Description string
}

// OK reports whether every requested scope passed.
func (r ScopeResult) OK() bool { return len(r.Invalid) == 0 }

// GrantedString joins the granted scopes back into a space-delimited string.
func (r ScopeResult) GrantedString() string { return strings.Join(r.Granted, " ") }

// ScopeValidator resolves requested scopes against a client's allowed set and
// the global scope registry.
type ScopeValidator struct {
	scopes repository.ScopeRepository
}

func NewScopeValidator(scopes repository.ScopeRepository) *ScopeValidator {
	return &ScopeValidator{scopes: scopes}
}

// splitRequested tokenizes a raw scope parameter. Control characters (notably
// newlines smuggled via form encoding) make the whole request malformed.
func splitRequested(raw string) ([]string, bool) {
	for _, c := range raw {
		if c != ' ' && (c < 0x20 || c == 0x7f) {
			return nil, false
		}
	}
	fields := strings.Fields(raw)
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, true
}

// ValidateForClient validates a raw scope string against a full client record.
// Each requested scope must be in the client's allowed set, exist and be
// active in the registry, and (for public clients) be marked public. The first
// failing category determines the reported description. An empty request is
// trivially valid.
func (v *ScopeValidator) ValidateForClient(ctx context.Context, client *repository.Client, raw string) ScopeResult {
	requested, ok := splitRequested(raw)
	if !ok {
		return ScopeResult{Invalid: []string{raw}, Description: "scope parameter is malformed"}
	}
	if len(requested) == 0 {
		return ScopeResult{}
	}

	allowed := allowedSet(client.AllowedScopes)

	var notAllowed []string
	for _, sc := range requested {
		if _, ok := allowed[sc]; !ok {
			notAllowed = append(notAllowed, sc)
		}
	}
	if len(notAllowed) > 0 {
		return ScopeResult{
			Invalid:     notAllowed,
			Description: "scope(s) not allowed for this client: " + strings.Join(notAllowed, " "),
		}
	}

	var inactive []string
	var nonPublic []string
	for _, sc := range requested {
		reg, err := v.scopes.GetByName(ctx, sc)
		if err != nil || reg == nil || !reg.Active {
			inactive = append(inactive, sc)
			continue
		}
		if client.Type == repository.ClientTypePublic && !reg.Public {
			nonPublic = append(nonPublic, sc)
		}
	}
	if len(inactive) > 0 {
		return ScopeResult{
			Invalid:     inactive,
			Description: "invalid or inactive scope(s): " + strings.Join(inactive, " "),
		}
	}
	if len(nonPublic) > 0 {
		return ScopeResult{
			Invalid:     nonPublic,
			Description: "requested non-public scope(s): " + strings.Join(nonPublic, " "),
		}
	}

	return ScopeResult{Granted: requested}
}

// ValidateAgainstList validates a raw scope string against a bare allowed-scope
// list. Used by the client_credentials path, where the registry lookup already
// happened at client provisioning time.
func (v *ScopeValidator) ValidateAgainstList(allowedScopes []string, raw string) ScopeResult {
	requested, ok := splitRequested(raw)
	if !ok {
		return ScopeResult{Invalid: []string{raw}, Description: "scope parameter is malformed"}
	}
	if len(requested) == 0 {
		return ScopeResult{}
	}

	allowed := allowedSet(allowedScopes)
	var invalid []string
	for _, sc := range requested {
		if _, ok := allowed[sc]; !ok {
			invalid = append(invalid, sc)
		}
	}
	if len(invalid) > 0 {
		return ScopeResult{
			Invalid:     invalid,
			Description: "scope(s) not allowed for this client: " + strings.Join(invalid, " "),
		}
	}
	return ScopeResult{Granted: requested}
}

// IsSubset reports whether every scope in want is present in have.
// Used for refresh-token scope narrowing.
func IsSubset(want, have []string) bool {
	set := allowedSet(have)
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// allowedSet builds a lookup set, skipping entries that are not valid scope
// names. Garbage in a stored allowed list means "nothing allowed" for the
// garbage entries rather than an error.
func allowedSet(scopes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(scopes))
	for _, sc := range scopes {
		if !ValidScopeName(sc) {
			continue
		}
		set[sc] = struct{}{}
	}
	return set
}
