package lens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errIncompleteAuth = errors.New("response did not include both token and user")

// Session is a point-in-time copy of the session pair.
type Session struct {
	Token string
	User  *User
}

// SessionStore owns the authentication token and the current user. It is the
// only writer of the session pair and of the persisted session keys; every
// other component reads through its accessors.
type SessionStore struct {
	auth   AuthGateway
	store  Store
	logger Logger

	mu    sync.RWMutex
	token string
	user  *User
	// provisional is the persisted token adopted while Restore verifies it.
	// It is never part of the committed pair.
	provisional string

	resolveOnce sync.Once
	resolved    chan struct{}
}

// NewSessionStore creates an empty, unresolved SessionStore.
func NewSessionStore(auth AuthGateway, store Store, logger Logger) *SessionStore {
	return &SessionStore{
		auth:     auth,
		store:    store,
		logger:   logger,
		resolved: make(chan struct{}),
	}
}

// Restore adopts a persisted token, if any, and verifies it with the backend.
// On success the session becomes authenticated; on any failure the token is
// discarded and the session stays empty. Resolution is marked complete in all
// cases. Only the first call does any work.
func (s *SessionStore) Restore(ctx context.Context) error {
	if !s.Resolving() {
		return nil
	}
	defer s.markResolved()

	token, ok, err := s.store.Get(TokenKey)
	if err != nil {
		return fmt.Errorf("reading persisted token: %w", err)
	}
	if !ok || token == "" {
		s.logger.Debug("no persisted session")
		return nil
	}

	s.mu.Lock()
	s.provisional = token
	s.mu.Unlock()

	user, err := s.auth.Me(ctx)
	if err == nil && user == nil {
		err = errors.New("backend returned no user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A concurrent Login or Logout supersedes the restore.
	if s.provisional != token {
		return nil
	}
	s.provisional = ""

	if err != nil {
		if s.token == "" {
			if delErr := s.store.Delete(TokenKey); delErr != nil {
				s.logger.Warn("failed to discard persisted token", "error", delErr)
			}
		}
		s.logger.Warn("session restore failed", "error", err)
		return fmt.Errorf("restoring session: %w", err)
	}

	u := *user
	s.token, s.user = token, &u
	s.logger.Info("session restored", "user", u.Username)
	return nil
}

// Resolving reports whether startup restoration is still in progress. It
// starts true and flips to false exactly once.
func (s *SessionStore) Resolving() bool {
	select {
	case <-s.resolved:
		return false
	default:
		return true
	}
}

// Resolved returns a channel that is closed once restoration completes.
func (s *SessionStore) Resolved() <-chan struct{} {
	return s.resolved
}

func (s *SessionStore) markResolved() {
	s.resolveOnce.Do(func() { close(s.resolved) })
}

// Login authenticates with email and password. On failure the session is
// unchanged and the error is an *AuthenticationError.
func (s *SessionStore) Login(ctx context.Context, email, password string) (*User, error) {
	res, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, &AuthenticationError{Op: "login", Err: err}
	}
	return s.install("login", res)
}

// Signup creates an account and signs in with it. Same contract as Login.
func (s *SessionStore) Signup(ctx context.Context, username, email, password string) (*User, error) {
	res, err := s.auth.Signup(ctx, username, email, password)
	if err != nil {
		return nil, &AuthenticationError{Op: "signup", Err: err}
	}
	return s.install("signup", res)
}

// install persists and then commits token and user together.
func (s *SessionStore) install(op string, res *AuthResult) (*User, error) {
	if res == nil || res.Token == "" || res.User == nil {
		return nil, &AuthenticationError{Op: op, Err: errIncompleteAuth}
	}
	u := *res.User

	snapshot, err := json.Marshal(u)
	if err != nil {
		return nil, &AuthenticationError{Op: op, Err: fmt.Errorf("encoding user: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(TokenKey, res.Token); err != nil {
		return nil, &AuthenticationError{Op: op, Err: fmt.Errorf("persisting token: %w", err)}
	}
	if err := s.store.Set(CurrentUserKey, string(snapshot)); err != nil {
		s.logger.Warn("failed to persist user snapshot", "error", err)
	}

	s.token, s.user = res.Token, &u
	s.provisional = ""

	s.logger.Info("signed in", "op", op, "user", u.Username, "role", string(u.Role))
	ret := u
	return &ret, nil
}

// Logout clears the session and every persisted session key. It is safe to
// call when already logged out. In-memory state is cleared even if the
// persisted keys could not be removed.
func (s *SessionStore) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasSignedIn := s.user != nil
	s.token, s.user, s.provisional = "", nil, ""

	if err := s.store.Delete(TokenKey, CurrentUserKey); err != nil {
		return fmt.Errorf("removing persisted session: %w", err)
	}
	if wasSignedIn {
		s.logger.Info("signed out")
	}
	return nil
}

// IsAuthenticated reports whether both token and user are present.
func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}

// Token returns the bearer token to send: the committed token, or the
// provisional one while Restore is verifying it. Implements TokenSource.
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token != "" {
		return s.token
	}
	return s.provisional
}

// CurrentUser returns a copy of the signed-in user.
func (s *SessionStore) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Snapshot returns a copy of the committed session pair.
func (s *SessionStore) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := Session{Token: s.token}
	if s.user != nil {
		u := *s.user
		sess.User = &u
	}
	return sess
}

// ExpiresAt returns the exp claim of the committed token if it is a JWT.
// The signature is not verified; the value is informational.
func (s *SessionStore) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
