package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
)

func TestAuthCodeRepo_MarkUsed_SingleWinner(t *testing.T) {
	repo := NewAuthCodeRepo()
	ctx := context.Background()

	err := repo.Create(ctx, &repository.AuthorizationCode{
		Code:      "code-1",
		ClientID:  "web-app",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const redeemers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, redeemers)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.MarkUsed(ctx, "code-1")
			if err != nil {
				t.Errorf("mark used: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for w := range wins {
		if w {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
}

func TestAuthCodeRepo_MarkUsed_UnknownCode(t *testing.T) {
	repo := NewAuthCodeRepo()
	won, err := repo.MarkUsed(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if won {
		t.Fatal("unknown code must not win")
	}
}

func TestTokenRepo_RevokeFamily(t *testing.T) {
	repo := NewTokenRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(id, user, client string, exp time.Time) *repository.TokenRecord {
		return &repository.TokenRecord{
			ID: id, JTI: "jti-" + id, TokenType: repository.TokenTypeRefresh,
			TokenHash: "hash-" + id, ClientID: client, UserID: user,
			IssuedAt: now, ExpiresAt: exp,
		}
	}

	for _, rec := range []*repository.TokenRecord{
		mk("a", "user-1", "web-app", now.Add(time.Hour)),
		mk("b", "user-1", "web-app", now.Add(time.Hour)),
		mk("c", "user-1", "web-app", now.Add(-time.Hour)), // vencido: fuera de alcance
		mk("d", "user-2", "web-app", now.Add(time.Hour)),  // otro usuario
		mk("e", "user-1", "other", now.Add(time.Hour)),    // otro client
	} {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", rec.ID, err)
		}
	}

	n, err := repo.RevokeFamily(ctx, "user-1", "web-app")
	if err != nil {
		t.Fatalf("revoke family: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}

	for id, wantRevoked := range map[string]bool{"a": true, "b": true, "d": false, "e": false} {
		rec, err := repo.GetByHash(ctx, "hash-"+id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if (rec.RevokedAt != nil) != wantRevoked {
			t.Fatalf("token %s: revoked=%v, want %v", id, rec.RevokedAt != nil, wantRevoked)
		}
	}
}

func TestTokenRepo_RevokeIdempotent(t *testing.T) {
	repo := NewTokenRepo()
	ctx := context.Background()

	rec := &repository.TokenRecord{
		ID: "t1", JTI: "jti-1", TokenType: repository.TokenTypeAccess,
		TokenHash: "h1", ClientID: "web-app", UserID: "user-1",
		IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Revoke(ctx, "t1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, _ := repo.GetByHash(ctx, "h1")
	first := *got.RevokedAt

	time.Sleep(time.Millisecond)
	if err := repo.Revoke(ctx, "t1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	got, _ = repo.GetByHash(ctx, "h1")
	if !got.RevokedAt.Equal(first) {
		t.Fatal("second revoke must not move RevokedAt")
	}
}

func TestBlacklistRepo_ContainsHonorsExpiry(t *testing.T) {
	repo := NewBlacklistRepo()
	ctx := context.Background()

	_ = repo.Add(ctx, &repository.BlacklistEntry{JTI: "live", ExpiresAt: time.Now().Add(time.Hour)})
	_ = repo.Add(ctx, &repository.BlacklistEntry{JTI: "dead", ExpiresAt: time.Now().Add(-time.Hour)})

	if ok, _ := repo.Contains(ctx, "live"); !ok {
		t.Fatal("live jti must be listed")
	}
	if ok, _ := repo.Contains(ctx, "dead"); ok {
		t.Fatal("expired jti must not be listed")
	}
	if ok, _ := repo.Contains(ctx, "ghost"); ok {
		t.Fatal("unknown jti must not be listed")
	}
}

func TestConsentRepo_UpsertClearsRevocation(t *testing.T) {
	repo := NewConsentRepo()
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, "user-1", "web-app", []string{"openid"}, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Revoke(ctx, "user-1", "web-app"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	c, err := repo.Upsert(ctx, "user-1", "web-app", []string{"openid", "email"}, nil)
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if c.RevokedAt != nil {
		t.Fatal("re-granting consent must clear revocation")
	}
	if len(c.Scopes) != 2 {
		t.Fatalf("scopes = %v", c.Scopes)
	}
}
