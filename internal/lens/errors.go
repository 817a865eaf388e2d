package lens

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is the cause carried by a 401 response.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotSignedIn is returned by interactions that need a signed-in user.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrEmptyComment is returned when a comment draft is blank after trimming.
	ErrEmptyComment = errors.New("comment is empty")

	// ErrInteractionPending is returned when an interaction of the same kind
	// is already in flight for the post.
	ErrInteractionPending = errors.New("interaction already pending for post")

	// ErrNotRendered is returned for interactions on a post that is not
	// currently rendered.
	ErrNotRendered = errors.New("post is not rendered")

	// ErrCreatorOnly is returned when a non-creator reaches a creator feature.
	ErrCreatorOnly = errors.New("creator account required")

	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("search query is empty")
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Message)
}

// Unwrap maps a 401 to ErrUnauthorized.
func (e *StatusError) Unwrap() error {
	if e.Code == 401 {
		return ErrUnauthorized
	}
	return nil
}

// AuthenticationError is returned when login or signup fails. The session is
// left untouched.
type AuthenticationError struct {
	Op  string // "login" or "signup"
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// SessionExpiredError is returned when an authenticated call was rejected
// with 401. By the time a caller sees it the session has been cleared.
type SessionExpiredError struct {
	Path string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired (%s)", e.Path)
}

func (e *SessionExpiredError) Unwrap() error { return ErrUnauthorized }

// TransientFetchError is returned alongside fallback feed content.
type TransientFetchError struct {
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("failed to load feed: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// InteractionKind names the interaction an InteractionFailure belongs to.
type InteractionKind string

const (
	KindLikeToggle InteractionKind = "like-toggle"
	KindCommentAdd InteractionKind = "comment-add"
)

// InteractionFailure is returned when a like or comment call failed. Local
// state has been rolled back (like) or left unmutated (comment).
type InteractionFailure struct {
	Kind   InteractionKind
	PostID string
	Err    error
}

func (e *InteractionFailure) Error() string {
	return fmt.Sprintf("%s on post %s failed: %v", e.Kind, e.PostID, e.Err)
}

func (e *InteractionFailure) Unwrap() error { return e.Err }

// IsSessionExpired reports whether err carries a SessionExpiredError.
func IsSessionExpired(err error) bool {
	var se *SessionExpiredError
	return errors.As(err, &se)
}
