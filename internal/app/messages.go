package app

import (
	"errors"
	"fmt"
	"net/http"

	"lensfeed/internal/lens"
)

// Describe turns an error from a LensApp operation into the message shown to
// the user. Each error kind gets its own wording.
func Describe(err error) string {
	var (
		authErr *lens.AuthenticationError
		fetch   *lens.TransientFetchError
		fail    *lens.InteractionFailure
		status  *lens.StatusError
	)

	switch {
	case err == nil:
		return ""
	case lens.IsSessionExpired(err):
		return "Your session has expired. Run `lensfeed login` to sign in again."
	case errors.As(err, &authErr):
		if errors.Is(err, lens.ErrUnauthorized) {
			return fmt.Sprintf("%s failed: invalid email or password.", title(authErr.Op))
		}
		return fmt.Sprintf("%s failed: %s", title(authErr.Op), reason(authErr.Err))
	case errors.As(err, &fetch):
		return "Could not load the feed. Showing sample posts instead."
	case errors.As(err, &fail):
		if fail.Kind == lens.KindLikeToggle {
			return fmt.Sprintf("Could not update the like on post %s. The change was reverted.", fail.PostID)
		}
		return fmt.Sprintf("Could not post your comment on post %s. Your draft was kept.", fail.PostID)
	case errors.Is(err, lens.ErrNotSignedIn):
		return "You need to log in first. Run `lensfeed login`."
	case errors.Is(err, lens.ErrCreatorOnly):
		return "Uploading is only available to creator accounts."
	case errors.Is(err, lens.ErrEmptyComment):
		return "Comment is empty."
	case errors.Is(err, lens.ErrEmptyQuery):
		return "Enter something to search for."
	case errors.Is(err, lens.ErrInteractionPending):
		return "Still waiting on the previous action for that post."
	case errors.Is(err, lens.ErrNotRendered):
		return "That post is not in the current feed."
	case errors.As(err, &status):
		return reason(status)
	default:
		return err.Error()
	}
}

func reason(err error) string {
	var status *lens.StatusError
	if errors.As(err, &status) {
		if status.Message != "" {
			return status.Message
		}
		return fmt.Sprintf("server returned %d %s", status.Code, http.StatusText(status.Code))
	}
	return err.Error()
}

func title(op string) string {
	switch op {
	case "login":
		return "Login"
	case "signup":
		return "Signup"
	default:
		return op
	}
}

// FeedHeading returns the line shown above a feed result, or "" for none.
func FeedHeading(res *lens.FeedResult) string {
	if res == nil {
		return ""
	}
	q := ""
	if res.Filters != nil {
		q = res.Filters.Q
	}
	switch res.State {
	case lens.FeedEmpty:
		return "No posts yet."
	case lens.FeedEmptySearch:
		if q != "" {
			return fmt.Sprintf("No results for %q.", q)
		}
		return "No posts match these filters."
	case lens.FeedLoaded:
		if q != "" {
			return fmt.Sprintf("Results for %q", q)
		}
	}
	return ""
}
