package lens

import (
	"context"
	"io"
)

// AuthGateway is the part of the Gateway the SessionStore depends on.
type AuthGateway interface {
	// Login and Signup are public endpoints; a 401 from them is a credential
	// rejection, not a session expiry.
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Signup(ctx context.Context, username, email, password string) (*AuthResult, error)

	// Me returns the user the current token belongs to.
	Me(ctx context.Context) (*User, error)
}

// Gateway is the single point of contact with the backend. Implementations
// attach the current token to every authenticated call and, on a 401, run the
// SessionExpiredHandler before returning a *SessionExpiredError.
type Gateway interface {
	AuthGateway

	// Feed returns one page of posts in server order.
	Feed(ctx context.Context, page int, filters *FeedFilters) ([]Post, error)

	// ToggleLike flips the current user's like on a post. The response body
	// is not reconciled.
	ToggleLike(ctx context.Context, postID string) error

	// AddComment posts a comment. The returned comment is nil when the
	// server did not include one.
	AddComment(ctx context.Context, postID, text string) (*Comment, error)

	// UploadMedia sends file content as a multipart upload.
	UploadMedia(ctx context.Context, req UploadRequest, file io.Reader) (*Post, error)

	// CreateCreator creates a creator account using the admin secret.
	CreateCreator(ctx context.Context, account CreatorAccount, adminSecret string) (*User, error)
}

// TokenSource yields the bearer token at call time. An empty string means
// no credential is sent.
type TokenSource interface {
	Token() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

func (f TokenSourceFunc) Token() string { return f() }

// SessionExpiredHandler is invoked by the Gateway when an authenticated call
// receives a 401. It must log the session out and route the user to login.
type SessionExpiredHandler func(ctx context.Context)
