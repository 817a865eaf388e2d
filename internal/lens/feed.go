package lens

import (
	"context"
	"strings"
)

// FeedState distinguishes the terminal states of a feed fetch.
type FeedState int

const (
	// FeedLoaded means the backend returned at least one post.
	FeedLoaded FeedState = iota
	// FeedEmpty means an unfiltered request succeeded with no posts.
	FeedEmpty
	// FeedEmptySearch means a filtered request succeeded with no posts.
	FeedEmptySearch
	// FeedFallback means the request failed and placeholder posts were substituted.
	FeedFallback
)

func (s FeedState) String() string {
	switch s {
	case FeedLoaded:
		return "loaded"
	case FeedEmpty:
		return "empty"
	case FeedEmptySearch:
		return "empty-search"
	case FeedFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// FeedResult is the outcome of a feed fetch.
type FeedResult struct {
	Page    int
	Filters *FeedFilters
	Posts   []Post
	State   FeedState
}

// FeedService retrieves pages of the feed and applies the fallback policy.
type FeedService struct {
	gateway Gateway
	logger  Logger
}

// NewFeedService creates a FeedService.
func NewFeedService(gateway Gateway, logger Logger) *FeedService {
	return &FeedService{gateway: gateway, logger: logger}
}

// Fetch retrieves one page of posts. Server order is preserved.
//
// On failure Fetch returns both a FeedFallback result carrying placeholder
// posts and a *TransientFetchError; callers render the result and show the
// error as a secondary notice.
func (f *FeedService) Fetch(ctx context.Context, page int, filters *FeedFilters) (*FeedResult, error) {
	if page < 1 {
		page = 1
	}
	res := &FeedResult{Page: page, Filters: filters}

	posts, err := f.gateway.Feed(ctx, page, filters)
	if err != nil {
		f.logger.Warn("feed fetch failed, using fallback", "page", page, "error", err)
		res.Posts = FallbackPosts()
		res.State = FeedFallback
		return res, &TransientFetchError{Err: err}
	}

	res.Posts = posts
	switch {
	case len(posts) > 0:
		res.State = FeedLoaded
	case filters.IsZero():
		res.State = FeedEmpty
	default:
		res.State = FeedEmptySearch
	}
	f.logger.Debug("feed fetched", "page", page, "count", len(posts), "state", res.State.String())
	return res, nil
}

// Search fetches the first page matching a free-text query. A blank query
// returns ErrEmptyQuery without contacting the backend.
func (f *FeedService) Search(ctx context.Context, query string) (*FeedResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	return f.Fetch(ctx, 1, &FeedFilters{Q: q})
}
