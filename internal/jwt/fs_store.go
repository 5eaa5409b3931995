package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FSSigningKeyStore persiste las keys en un archivo JSON. Sirve para
// instancias single-node donde no hay Postgres; la rotación via CLI
// opera sobre el mismo archivo.
type FSSigningKeyStore struct {
	path string
	mu   sync.Mutex
}

func NewFSSigningKeyStore(path string) *FSSigningKeyStore {
	return &FSSigningKeyStore{path: path}
}

func (f *FSSigningKeyStore) load() ([]SigningKey, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var list []SigningKey
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// save escribe a un tmp y renombra para no dejar el archivo a medias.
func (f *FSSigningKeyStore) save(list []SigningKey) error {
	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FSSigningKeyStore) GetActiveSigningKey(ctx context.Context) (*SigningKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, err := f.load()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var act *SigningKey
	for i := range list {
		k := &list[i]
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

func (f *FSSigningKeyStore) ListPublicSigningKeys(ctx context.Context) ([]SigningKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make([]SigningKey, 0, len(list))
	for _, k := range list {
		if k.Status == KeyActive || k.Status == KeyRetiring {
			cp := k
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

func (f *FSSigningKeyStore) InsertSigningKey(ctx context.Context, k *SigningKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, err := f.load()
	if err != nil {
		return err
	}
	list = append(list, *k)
	return f.save(list)
}

func (f *FSSigningKeyStore) UpdateKeyStatus(ctx context.Context, kid string, status KeyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, err := f.load()
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].KID == kid {
			list[i].Status = status
			return f.save(list)
		}
	}
	return errors.New("kid_not_found")
}
