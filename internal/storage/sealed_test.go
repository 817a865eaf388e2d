package storage

import (
	"errors"
	"strings"
	"testing"
)

// reverseSealer is a reversible, obviously-not-plaintext sealer for tests.
type reverseSealer struct{}

func (reverseSealer) Seal(p string) (string, error) { return "sealed:" + reverse(p), nil }

func (reverseSealer) Open(s string) (string, error) {
	if !strings.HasPrefix(s, "sealed:") {
		return "", errors.New("not sealed")
	}
	return reverse(strings.TrimPrefix(s, "sealed:")), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func TestSealedStore(t *testing.T) {
	inner := newTestStore(t)
	s := NewSealedStore(inner, reverseSealer{})

	if err := s.Set("auth_token", "abc"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, _, _ := inner.Get("auth_token")
	if raw != "sealed:cba" {
		t.Errorf("inner value = %q, want sealed form", raw)
	}

	got, ok, err := s.Get("auth_token")
	if err != nil || !ok || got != "abc" {
		t.Errorf("Get() = (%q, %v, %v), want (\"abc\", true, nil)", got, ok, err)
	}

	if _, ok, err := s.Get("missing"); ok || err != nil {
		t.Errorf("Get(missing) = (%v, %v), want (false, nil)", ok, err)
	}

	inner.Set("photo_share_current_user", "plain")
	if _, _, err := s.Get("photo_share_current_user"); err == nil {
		t.Error("Get() expected error for unsealed value")
	}

	if err := s.Delete("auth_token"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := inner.Get("auth_token"); ok {
		t.Error("Delete() did not reach inner store")
	}
}
