package storage

import (
	"fmt"

	"lensfeed/internal/lens"
)

// Sealer encrypts values before they reach disk.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// SealedStore wraps a lens.Store and seals every value it writes.
type SealedStore struct {
	inner  lens.Store
	sealer Sealer
}

var _ lens.Store = (*SealedStore)(nil)

// NewSealedStore wraps inner with sealer.
func NewSealedStore(inner lens.Store, sealer Sealer) *SealedStore {
	return &SealedStore{inner: inner, sealer: sealer}
}

func (s *SealedStore) Get(key string) (string, bool, error) {
	sealed, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	value, err := s.sealer.Open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("opening sealed value for %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SealedStore) Set(key, value string) error {
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("sealing value for %s: %w", key, err)
	}
	return s.inner.Set(key, sealed)
}

func (s *SealedStore) Delete(keys ...string) error { return s.inner.Delete(keys...) }

func (s *SealedStore) Close() error { return s.inner.Close() }
