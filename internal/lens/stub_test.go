package lens_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"lensfeed/internal/lens"
)

var errBackendDown = errors.New("backend down")

// stubGateway is a lens.Gateway whose behavior is set per test. Calls are
// counted; unset funcs fail with errBackendDown.
type stubGateway struct {
	mu    sync.Mutex
	calls map[string]int

	login      func(ctx context.Context, email, password string) (*lens.AuthResult, error)
	signup     func(ctx context.Context, username, email, password string) (*lens.AuthResult, error)
	me         func(ctx context.Context) (*lens.User, error)
	feed       func(ctx context.Context, page int, filters *lens.FeedFilters) ([]lens.Post, error)
	toggleLike func(ctx context.Context, postID string) error
	addComment func(ctx context.Context, postID, text string) (*lens.Comment, error)
}

func newStubGateway() *stubGateway {
	return &stubGateway{calls: make(map[string]int)}
}

func (g *stubGateway) count(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[name]++
}

func (g *stubGateway) Calls(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *stubGateway) Total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *stubGateway) Login(ctx context.Context, email, password string) (*lens.AuthResult, error) {
	g.count("login")
	if g.login == nil {
		return nil, errBackendDown
	}
	return g.login(ctx, email, password)
}

func (g *stubGateway) Signup(ctx context.Context, username, email, password string) (*lens.AuthResult, error) {
	g.count("signup")
	if g.signup == nil {
		return nil, errBackendDown
	}
	return g.signup(ctx, username, email, password)
}

func (g *stubGateway) Me(ctx context.Context) (*lens.User, error) {
	g.count("me")
	if g.me == nil {
		return nil, errBackendDown
	}
	return g.me(ctx)
}

func (g *stubGateway) Feed(ctx context.Context, page int, filters *lens.FeedFilters) ([]lens.Post, error) {
	g.count("feed")
	if g.feed == nil {
		return nil, errBackendDown
	}
	return g.feed(ctx, page, filters)
}

func (g *stubGateway) ToggleLike(ctx context.Context, postID string) error {
	g.count("like")
	if g.toggleLike == nil {
		return errBackendDown
	}
	return g.toggleLike(ctx, postID)
}

func (g *stubGateway) AddComment(ctx context.Context, postID, text string) (*lens.Comment, error) {
	g.count("comment")
	if g.addComment == nil {
		return nil, errBackendDown
	}
	return g.addComment(ctx, postID, text)
}

func (g *stubGateway) UploadMedia(context.Context, lens.UploadRequest, io.Reader) (*lens.Post, error) {
	g.count("upload")
	return nil, errBackendDown
}

func (g *stubGateway) CreateCreator(context.Context, lens.CreatorAccount, string) (*lens.User, error) {
	g.count("create-creator")
	return nil, errBackendDown
}

// fixedUser is a CurrentUserSource with a settable user.
type fixedUser struct {
	mu   sync.Mutex
	user *lens.User
}

func (f *fixedUser) CurrentUser() (lens.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return lens.User{}, false
	}
	return *f.user, true
}

var alex = lens.User{ID: "2", Username: "alex_shots", Email: "u@x.com", Role: lens.RoleConsumer}
