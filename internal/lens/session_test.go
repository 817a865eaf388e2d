package lens_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lensfeed/internal/lens"
	"lensfeed/internal/testutil"
)

func loginAs(user lens.User, token string) func(context.Context, string, string) (*lens.AuthResult, error) {
	return func(context.Context, string, string) (*lens.AuthResult, error) {
		u := user
		return &lens.AuthResult{Token: token, User: &u}, nil
	}
}

func TestSessionStore_Restore(t *testing.T) {
	t.Run("no persisted token makes no network call", func(t *testing.T) {
		gw := newStubGateway()
		sess := lens.NewSessionStore(gw, testutil.NewMapStore(), lens.NewNopLogger())

		if !sess.Resolving() {
			t.Fatal("new session should be resolving")
		}
		if err := sess.Restore(context.Background()); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if sess.Resolving() {
			t.Error("still resolving after Restore")
		}
		if sess.IsAuthenticated() {
			t.Error("authenticated without a token")
		}
		if gw.Total() != 0 {
			t.Errorf("made %d backend calls, want 0", gw.Total())
		}
		select {
		case <-sess.Resolved():
		default:
			t.Error("Resolved() channel not closed")
		}
	})

	t.Run("valid token restores the session", func(t *testing.T) {
		store := testutil.NewMapStore()
		store.Values[lens.TokenKey] = "t1"
		gw := newStubGateway()
		var sess *lens.SessionStore
		var sentToken string
		gw.me = func(context.Context) (*lens.User, error) {
			sentToken = sess.Token()
			u := alex
			return &u, nil
		}
		sess = lens.NewSessionStore(gw, store, lens.NewNopLogger())

		if err := sess.Restore(context.Background()); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if sentToken != "t1" {
			t.Errorf("token during verification = %q, want t1", sentToken)
		}
		if !sess.IsAuthenticated() {
			t.Fatal("not authenticated after restore")
		}
		user, _ := sess.CurrentUser()
		if user.Username != "alex_shots" {
			t.Errorf("user = %q, want alex_shots", user.Username)
		}
		if got := sess.Snapshot(); got.Token != "t1" || got.User == nil {
			t.Errorf("Snapshot() = %+v", got)
		}
	})

	t.Run("provisional token is not authenticated", func(t *testing.T) {
		store := testutil.NewMapStore()
		store.Values[lens.TokenKey] = "t1"
		gw := newStubGateway()
		var sess *lens.SessionStore
		var authDuring bool
		gw.me = func(context.Context) (*lens.User, error) {
			authDuring = sess.IsAuthenticated()
			return nil, lens.ErrUnauthorized
		}
		sess = lens.NewSessionStore(gw, store, lens.NewNopLogger())

		sess.Restore(context.Background())
		if authDuring {
			t.Error("session reported authenticated with only a provisional token")
		}
	})

	t.Run("rejected token is discarded", func(t *testing.T) {
		store := testutil.NewMapStore()
		store.Values[lens.TokenKey] = "expired"
		gw := newStubGateway()
		gw.me = func(context.Context) (*lens.User, error) {
			return nil, &lens.SessionExpiredError{Path: "/auth/me"}
		}
		sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())

		err := sess.Restore(context.Background())
		if !errors.Is(err, lens.ErrUnauthorized) {
			t.Errorf("Restore() error = %v, want wrapped ErrUnauthorized", err)
		}
		if sess.IsAuthenticated() || sess.Token() != "" {
			t.Error("session not empty after failed restore")
		}
		if store.Has(lens.TokenKey) {
			t.Error("persisted token was not removed")
		}
		if sess.Resolving() {
			t.Error("still resolving after failed restore")
		}
	})

	t.Run("only the first call does work", func(t *testing.T) {
		store := testutil.NewMapStore()
		store.Values[lens.TokenKey] = "t1"
		gw := newStubGateway()
		gw.me = func(context.Context) (*lens.User, error) { u := alex; return &u, nil }
		sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())

		sess.Restore(context.Background())
		sess.Restore(context.Background())
		if gw.Calls("me") != 1 {
			t.Errorf("me called %d times, want 1", gw.Calls("me"))
		}
	})

	t.Run("login during restore wins", func(t *testing.T) {
		store := testutil.NewMapStore()
		store.Values[lens.TokenKey] = "old"
		gw := newStubGateway()
		entered := make(chan struct{})
		release := make(chan struct{})
		gw.me = func(context.Context) (*lens.User, error) {
			close(entered)
			<-release
			return nil, errBackendDown
		}
		gw.login = loginAs(alex, "fresh")
		sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())

		done := make(chan error)
		go func() { done <- sess.Restore(context.Background()) }()
		<-entered

		if _, err := sess.Login(context.Background(), "u@x.com", "secret"); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		close(release)
		if err := <-done; err != nil {
			t.Errorf("superseded Restore() error = %v, want nil", err)
		}

		if sess.Token() != "fresh" || !sess.IsAuthenticated() {
			t.Errorf("session = %+v, want fresh login", sess.Snapshot())
		}
		if store.Value(lens.TokenKey) != "fresh" {
			t.Errorf("persisted token = %q, want fresh", store.Value(lens.TokenKey))
		}
	})
}

func TestSessionStore_Login(t *testing.T) {
	t.Run("success persists token and user", func(t *testing.T) {
		store := testutil.NewMapStore()
		gw := newStubGateway()
		gw.login = loginAs(alex, "t1")
		sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())

		user, err := sess.Login(context.Background(), "u@x.com", "secret")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if user.Username != "alex_shots" {
			t.Errorf("user = %q", user.Username)
		}
		if !sess.IsAuthenticated() || sess.Token() != "t1" {
			t.Errorf("session = %+v", sess.Snapshot())
		}
		if store.Value(lens.TokenKey) != "t1" {
			t.Errorf("persisted token = %q, want t1", store.Value(lens.TokenKey))
		}

		var snap lens.User
		if err := json.Unmarshal([]byte(store.Value(lens.CurrentUserKey)), &snap); err != nil {
			t.Fatalf("user snapshot is not JSON: %v", err)
		}
		if snap.Username != "alex_shots" || snap.Role != lens.RoleConsumer {
			t.Errorf("snapshot = %+v", snap)
		}
	})

	t.Run("failure leaves the session untouched", func(t *testing.T) {
		store := testutil.NewMapStore()
		gw := newStubGateway()
		gw.login = loginAs(alex, "t1")
		sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())
		sess.Login(context.Background(), "u@x.com", "secret")

		gw.login = func(context.Context, string, string) (*lens.AuthResult, error) {
			return nil, &lens.StatusError{Code: 401, Message: "Invalid credentials"}
		}
		_, err := sess.Login(context.Background(), "u@x.com", "wrong")

		var ae *lens.AuthenticationError
		if !errors.As(err, &ae) || ae.Op != "login" {
			t.Fatalf("Login() error = %v, want *AuthenticationError", err)
		}
		if sess.Token() != "t1" || !sess.IsAuthenticated() {
			t.Error("failed login changed the session")
		}
		if store.Value(lens.TokenKey) != "t1" {
			t.Error("failed login changed the persisted token")
		}
	})

	t.Run("incomplete response is rejected", func(t *testing.T) {
		tests := []struct {
			name string
			res  *lens.AuthResult
		}{
			{"no token", &lens.AuthResult{User: &alex}},
			{"no user", &lens.AuthResult{Token: "t1"}},
			{"nil", nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := testutil.NewMapStore()
				gw := newStubGateway()
				gw.login = func(context.Context, string, string) (*lens.AuthResult, error) { return tt.res, nil }
				sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())

				_, err := sess.Login(context.Background(), "u@x.com", "secret")
				var ae *lens.AuthenticationError
				if !errors.As(err, &ae) {
					t.Fatalf("Login() error = %v, want *AuthenticationError", err)
				}
				if sess.IsAuthenticated() || sess.Token() != "" {
					t.Error("partial session installed")
				}
				if store.Has(lens.TokenKey) {
					t.Error("token persisted for incomplete response")
				}
			})
		}
	})

	t.Run("persist failure keeps session empty", func(t *testing.T) {
		store := testutil.NewMapStore()
		store.FailSet = errors.New("disk full")
		gw := newStubGateway()
		gw.login = loginAs(alex, "t1")
		sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())

		if _, err := sess.Login(context.Background(), "u@x.com", "secret"); err == nil {
			t.Fatal("Login() succeeded with failing store")
		}
		if sess.IsAuthenticated() {
			t.Error("session installed without persisted token")
		}
	})
}

func TestSessionStore_Signup(t *testing.T) {
	gw := newStubGateway()
	gw.signup = func(_ context.Context, username, email, _ string) (*lens.AuthResult, error) {
		return &lens.AuthResult{Token: "t2", User: &lens.User{ID: "9", Username: username, Email: email, Role: lens.RoleConsumer}}, nil
	}
	sess := lens.NewSessionStore(gw, testutil.NewMapStore(), lens.NewNopLogger())

	user, err := sess.Signup(context.Background(), "newbie", "n@x.com", "pw")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if user.Username != "newbie" || sess.Token() != "t2" {
		t.Errorf("user = %+v token = %q", user, sess.Token())
	}

	gw.signup = nil
	_, err = sess.Signup(context.Background(), "other", "o@x.com", "pw")
	var ae *lens.AuthenticationError
	if !errors.As(err, &ae) || ae.Op != "signup" {
		t.Errorf("Signup() error = %v, want signup AuthenticationError", err)
	}
}

func TestSessionStore_Logout(t *testing.T) {
	store := testutil.NewMapStore()
	gw := newStubGateway()
	gw.login = loginAs(alex, "t1")
	sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())
	sess.Login(context.Background(), "u@x.com", "secret")
	store.Values["unrelated"] = "keep"

	if err := sess.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if sess.IsAuthenticated() || sess.Token() != "" {
		t.Error("session not cleared")
	}
	if _, ok := sess.CurrentUser(); ok {
		t.Error("CurrentUser() still set")
	}
	if store.Has(lens.TokenKey) || store.Has(lens.CurrentUserKey) {
		t.Error("persisted session keys remain")
	}
	if !store.Has("unrelated") {
		t.Error("Logout removed an unrelated key")
	}

	if err := sess.Logout(); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}

	// A later start finds nothing to restore and makes no calls.
	before := gw.Total()
	next := lens.NewSessionStore(gw, store, lens.NewNopLogger())
	next.Restore(context.Background())
	if next.IsAuthenticated() || gw.Total() != before {
		t.Error("restore after logout was not a no-op")
	}
}

func TestSessionStore_Logout_StoreFailure(t *testing.T) {
	store := testutil.NewMapStore()
	gw := newStubGateway()
	gw.login = loginAs(alex, "t1")
	sess := lens.NewSessionStore(gw, store, lens.NewNopLogger())
	sess.Login(context.Background(), "u@x.com", "secret")

	store.FailDelete = errors.New("locked")
	if err := sess.Logout(); err == nil {
		t.Error("Logout() error = nil, want store error")
	}
	if sess.IsAuthenticated() {
		t.Error("in-memory session kept after failed delete")
	}
}

func TestSessionStore_ExpiresAt(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "2",
		"exp": exp.Unix(),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"jwt", signed, true},
		{"opaque", "not-a-jwt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newStubGateway()
			gw.login = loginAs(alex, tt.token)
			sess := lens.NewSessionStore(gw, testutil.NewMapStore(), lens.NewNopLogger())
			sess.Login(context.Background(), "u@x.com", "secret")

			got, ok := sess.ExpiresAt()
			if ok != tt.ok {
				t.Fatalf("ExpiresAt() ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(exp) {
				t.Errorf("ExpiresAt() = %v, want %v", got, exp)
			}
		})
	}
}
