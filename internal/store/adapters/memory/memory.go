// Package memory implementa los repositorios en memoria.
// Mismo contrato que pg, incluyendo el CAS de MarkUsed. Para dev y tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
	"github.com/dropDatabas3/llavero/internal/store"
)

func init() {
	store.Register("memory", func(ctx context.Context, cfg store.Config) (*store.DAL, error) {
		return NewDAL(), nil
	})
}

// NewDAL arma un DAL en memoria vacío.
func NewDAL() *store.DAL {
	return &store.DAL{
		Clients:   NewClientRepo(),
		Scopes:    NewScopeRepo(),
		AuthCodes: NewAuthCodeRepo(),
		Tokens:    NewTokenRepo(),
		Blacklist: NewBlacklistRepo(),
		Consents:  NewConsentRepo(),
		Users:     NewUserRepo(),
	}
}

// ─── ClientRepository ───

type ClientRepo struct {
	mu      sync.RWMutex
	clients map[string]repository.Client // key: client_id
}

func NewClientRepo() *ClientRepo {
	return &ClientRepo{clients: make(map[string]repository.Client)}
}

// Seed inserta un client ya armado. Para tests.
func (r *ClientRepo) Seed(c repository.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.clients[c.ClientID] = c
}

func (r *ClientRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (r *ClientRepo) List(ctx context.Context) ([]repository.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repository.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ClientRepo) Create(ctx context.Context, in repository.ClientInput) (*repository.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[in.ClientID]; exists {
		return nil, repository.ErrConflict
	}
	c := repository.Client{
		ID:             uuid.NewString(),
		ClientID:       in.ClientID,
		Name:           in.Name,
		Type:           in.Type,
		SecretHash:     in.SecretHash,
		RedirectURIs:   in.RedirectURIs,
		AllowedScopes:  in.AllowedScopes,
		GrantTypes:     in.GrantTypes,
		ResponseTypes:  in.ResponseTypes,
		RequirePKCE:    in.RequirePKCE,
		RequireConsent: in.RequireConsent,
		AccessTokenTTL: in.AccessTokenTTL,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	r.clients[c.ClientID] = c
	cp := c
	return &cp, nil
}

func (r *ClientRepo) Update(ctx context.Context, in repository.ClientInput) (*repository.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[in.ClientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.Name = in.Name
	if in.SecretHash != nil {
		c.SecretHash = in.SecretHash
	}
	c.RedirectURIs = in.RedirectURIs
	c.AllowedScopes = in.AllowedScopes
	c.GrantTypes = in.GrantTypes
	c.ResponseTypes = in.ResponseTypes
	c.RequirePKCE = in.RequirePKCE
	c.RequireConsent = in.RequireConsent
	c.AccessTokenTTL = in.AccessTokenTTL
	now := time.Now().UTC()
	c.UpdatedAt = &now
	r.clients[c.ClientID] = c
	cp := c
	return &cp, nil
}

func (r *ClientRepo) Deactivate(ctx context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return repository.ErrNotFound
	}
	c.Active = false
	now := time.Now().UTC()
	c.UpdatedAt = &now
	r.clients[clientID] = c
	return nil
}

// ─── ScopeRepository ───

type ScopeRepo struct {
	mu     sync.RWMutex
	scopes map[string]repository.Scope // key: name
}

func NewScopeRepo() *ScopeRepo {
	return &ScopeRepo{scopes: make(map[string]repository.Scope)}
}

func (r *ScopeRepo) GetByName(ctx context.Context, name string) (*repository.Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := s
	return &cp, nil
}

func (r *ScopeRepo) List(ctx context.Context) ([]repository.Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repository.Scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *ScopeRepo) Upsert(ctx context.Context, in repository.ScopeInput) (*repository.Scope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	s, ok := r.scopes[in.Name]
	if !ok {
		s = repository.Scope{ID: uuid.NewString(), Name: in.Name, CreatedAt: now}
	} else {
		s.UpdatedAt = &now
	}
	s.Description = in.Description
	s.Public = in.Public
	s.Active = in.Active
	r.scopes[in.Name] = s
	cp := s
	return &cp, nil
}

func (r *ScopeRepo) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scopes[name]; !ok {
		return repository.ErrNotFound
	}
	delete(r.scopes, name)
	return nil
}

// ─── AuthCodeRepository ───

type AuthCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*repository.AuthorizationCode
}

func NewAuthCodeRepo() *AuthCodeRepo {
	return &AuthCodeRepo{codes: make(map[string]*repository.AuthorizationCode)}
}

func (r *AuthCodeRepo) Create(ctx context.Context, c *repository.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codes[c.Code]; exists {
		return repository.ErrConflict
	}
	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.codes[c.Code] = &cp
	return nil
}

func (r *AuthCodeRepo) GetByCode(ctx context.Context, code string) (*repository.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// MarkUsed hace el CAS bajo el mutex del repo: una sola llamada concurrente
// observa Used=false.
func (r *AuthCodeRepo) MarkUsed(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	return true, nil
}

func (r *AuthCodeRepo) Delete(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, code)
	return nil
}

func (r *AuthCodeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for k, c := range r.codes {
		if c.ExpiresAt.Before(now) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

// ─── TokenRepository ───

type TokenRepo struct {
	mu     sync.Mutex
	byID   map[string]*repository.TokenRecord
	byHash map[string]*repository.TokenRecord
}

func NewTokenRepo() *TokenRepo {
	return &TokenRepo{
		byID:   make(map[string]*repository.TokenRecord),
		byHash: make(map[string]*repository.TokenRecord),
	}
}

func (r *TokenRepo) Create(ctx context.Context, rec *repository.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := r.byHash[rec.TokenHash]; exists {
		return repository.ErrConflict
	}
	cp := *rec
	r.byID[cp.ID] = &cp
	r.byHash[cp.TokenHash] = &cp
	return nil
}

func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TokenRepo) Revoke(ctx context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[tokenID]
	if !ok {
		return nil
	}
	if t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
	}
	return nil
}

func (r *TokenRepo) RevokeFamily(ctx context.Context, userID, clientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var n int
	for _, t := range r.byID {
		if t.UserID == userID && t.ClientID == clientID && t.RevokedAt == nil && t.ExpiresAt.After(now) {
			ts := now
			t.RevokedAt = &ts
			n++
		}
	}
	return n, nil
}

func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for id, t := range r.byID {
		if t.ExpiresAt.Before(now) {
			delete(r.byID, id)
			delete(r.byHash, t.TokenHash)
			n++
		}
	}
	return n, nil
}

// ─── BlacklistRepository ───

type BlacklistRepo struct {
	mu      sync.RWMutex
	entries map[string]repository.BlacklistEntry
}

func NewBlacklistRepo() *BlacklistRepo {
	return &BlacklistRepo{entries: make(map[string]repository.BlacklistEntry)}
}

func (r *BlacklistRepo) Add(ctx context.Context, e *repository.BlacklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.JTI]; exists {
		return nil
	}
	cp := *e
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.entries[e.JTI] = cp
	return nil
}

func (r *BlacklistRepo) Contains(ctx context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[jti]
	if !ok {
		return false, nil
	}
	return e.ExpiresAt.After(time.Now()), nil
}

func (r *BlacklistRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for jti, e := range r.entries {
		if e.ExpiresAt.Before(now) {
			delete(r.entries, jti)
			n++
		}
	}
	return n, nil
}

// ─── ConsentRepository ───

type ConsentRepo struct {
	mu       sync.Mutex
	consents map[string]*repository.Consent // key: userID + "\x00" + clientID
}

func NewConsentRepo() *ConsentRepo {
	return &ConsentRepo{consents: make(map[string]*repository.Consent)}
}

func consentKey(userID, clientID string) string { return userID + "\x00" + clientID }

func (r *ConsentRepo) Upsert(ctx context.Context, userID, clientID string, scopes []string, expiresAt *time.Time) (*repository.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	key := consentKey(userID, clientID)
	c, ok := r.consents[key]
	if !ok {
		c = &repository.Consent{ID: uuid.NewString(), UserID: userID, ClientID: clientID, GrantedAt: now}
		r.consents[key] = c
	}
	c.Scopes = append([]string(nil), scopes...)
	c.UpdatedAt = now
	c.ExpiresAt = expiresAt
	c.RevokedAt = nil
	cp := *c
	return &cp, nil
}

func (r *ConsentRepo) Get(ctx context.Context, userID, clientID string) (*repository.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consents[consentKey(userID, clientID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *ConsentRepo) Revoke(ctx context.Context, userID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consents[consentKey(userID, clientID)]
	if !ok || c.RevokedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	c.RevokedAt = &now
	c.UpdatedAt = now
	return nil
}

func (r *ConsentRepo) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]repository.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Consent
	for _, c := range r.consents {
		if c.UserID != userID {
			continue
		}
		if activeOnly && c.RevokedAt != nil {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

// ─── UserRepository ───

type UserRepo struct {
	mu    sync.RWMutex
	users map[string]repository.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]repository.User)}
}

// Seed inserta un usuario. Para tests.
func (r *UserRepo) Seed(u repository.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	r.users[u.ID] = u
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := u
	return &cp, nil
}
