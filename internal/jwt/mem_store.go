package jwt

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemorySigningKeyStore guarda las keys en memoria. Útil para dev y tests.
type MemorySigningKeyStore struct {
	mu   sync.RWMutex
	list []SigningKey
}

func NewMemorySigningKeyStore() *MemorySigningKeyStore { return &MemorySigningKeyStore{} }

func (m *MemorySigningKeyStore) GetActiveSigningKey(ctx context.Context) (*SigningKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now().UTC()
	var act *SigningKey
	for i := range m.list {
		k := &m.list[i]
		if k.Status == KeyActive && !k.NotBefore.After(now) {
			if act == nil || k.NotBefore.After(act.NotBefore) {
				act = k
			}
		}
	}
	if act == nil {
		return nil, ErrNoActiveKey
	}
	cp := *act
	return &cp, nil
}

func (m *MemorySigningKeyStore) ListPublicSigningKeys(ctx context.Context) ([]SigningKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SigningKey, 0, len(m.list))
	for _, k := range m.list {
		if k.Status == KeyActive || k.Status == KeyRetiring {
			cp := k
			// nunca exponemos la privada
			cp.PrivateKey = nil
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status == KeyActive
		}
		return out[i].NotBefore.After(out[j].NotBefore)
	})
	return out, nil
}

func (m *MemorySigningKeyStore) InsertSigningKey(ctx context.Context, k *SigningKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, *k)
	return nil
}

func (m *MemorySigningKeyStore) UpdateKeyStatus(ctx context.Context, kid string, status KeyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.list {
		if m.list[i].KID == kid {
			m.list[i].Status = status
			return nil
		}
	}
	return errors.New("kid_not_found")
}
