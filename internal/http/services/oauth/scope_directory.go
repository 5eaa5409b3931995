package oauth

import (
	"context"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
)

// ScopeDirectory lists the public, active scope names for discovery.
type ScopeDirectory struct {
	scopes repository.ScopeRepository
}

func NewScopeDirectory(scopes repository.ScopeRepository) *ScopeDirectory {
	return &ScopeDirectory{scopes: scopes}
}

func (d *ScopeDirectory) ListPublicScopeNames(ctx context.Context) []string {
	all, err := d.scopes.List(ctx)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(all))
	for _, s := range all {
		if s.Active && s.Public {
			out = append(out, s.Name)
		}
	}
	return out
}
