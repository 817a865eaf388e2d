package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"lensfeed/internal/config"
	"lensfeed/internal/encryption"
	"lensfeed/internal/gateway"
	"lensfeed/internal/lens"
	"lensfeed/internal/media"
	"lensfeed/internal/storage"
)

// LensApp is the application layer between the CLI and the lens core.
// It constructs all dependencies from config, exposes high-level operations
// for the commands, and records mutating commands in the operation history.
type LensApp struct {
	cfg        *config.Config
	store      *storage.SQLiteStore
	gateway    *gateway.Client
	session    *lens.SessionStore
	feed       *lens.FeedService
	reconciler *lens.Reconciler
	media      *media.Opener
	logger     lens.Logger
	clock      lens.Clock
	op         *Operation
	logFile    *os.File

	loginRequired atomic.Bool
}

// NewLensApp creates a fully wired LensApp from the given config.
// operation identifies the CLI command being run (e.g. "Login", "Like").
// The caller must call Start before using the session and Close when done.
func NewLensApp(cfg *config.Config, operation string) (*LensApp, error) {
	opID := lens.UUIDGenerator{}.New()
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store, err := storage.NewStoreFromConfig(cfg.Storage)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("store schema out of date: %w", err)
	}

	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating sealer: %w", err)
	}
	var kv lens.Store = store
	if sealer != nil {
		kv = storage.NewSealedStore(store, sealer)
	}

	a := &LensApp{
		cfg:     cfg,
		store:   store,
		media:   media.NewOpener(cfg.Media, logger),
		logger:  logger,
		clock:   lens.RealClock{},
		op:      NewOperation(operation, ""),
		logFile: logFile,
	}

	// The gateway reads the token from the session at call time; the session
	// is assigned below, before any call can be made.
	tokens := lens.TokenSourceFunc(func() string { return a.session.Token() })
	gw, err := gateway.NewClientFromConfig(cfg.API, tokens, a.handleSessionExpired, logger)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating gateway: %w", err)
	}

	a.gateway = gw
	a.session = lens.NewSessionStore(gw, kv, logger)
	a.feed = lens.NewFeedService(gw, logger)
	a.reconciler = lens.NewReconciler(gw, a.session, logger, a.clock, lens.UUIDGenerator{})

	return a, nil
}

// Start restores a persisted session. A failed restore leaves the app
// signed out; the error is returned so the CLI can mention it.
func (a *LensApp) Start(ctx context.Context) error {
	return a.session.Restore(ctx)
}

// handleSessionExpired is the single response to a 401 on an authenticated
// call: sign out and ask the user to log in again.
func (a *LensApp) handleSessionExpired(context.Context) {
	if err := a.session.Logout(); err != nil {
		a.logger.Error("clearing expired session", "error", err)
	}
	a.loginRequired.Store(true)
	a.logger.Warn("session expired, login required")
}

// LoginRequired reports whether the session expired during this run.
func (a *LensApp) LoginRequired() bool {
	return a.loginRequired.Load()
}

// Session exposes the session store for read access.
func (a *LensApp) Session() *lens.SessionStore { return a.session }

// Reconciler exposes the reconciler for interactive front ends.
func (a *LensApp) Reconciler() *lens.Reconciler { return a.reconciler }

// persistOperation saves the operation to the store, giving it an auto-increment ID.
// This should only be called for state-mutating commands.
func (a *LensApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	id, err := a.store.CreateOperation(a.op.Operation, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// track marks the operation failed when err is non-nil.
func (a *LensApp) track(err error) error {
	if err != nil {
		a.op.Status = StatusError
	}
	return err
}

// Login signs in with email and password.
func (a *LensApp) Login(ctx context.Context, email, password string) (*lens.User, error) {
	if err := a.persistOperation(email); err != nil {
		return nil, err
	}
	user, err := a.session.Login(ctx, email, password)
	if err != nil {
		return nil, a.track(err)
	}
	a.loginRequired.Store(false)
	return user, nil
}

// Signup creates a consumer account and signs in with it.
func (a *LensApp) Signup(ctx context.Context, username, email, password string) (*lens.User, error) {
	if err := a.persistOperation(username + " " + email); err != nil {
		return nil, err
	}
	user, err := a.session.Signup(ctx, username, email, password)
	if err != nil {
		return nil, a.track(err)
	}
	a.loginRequired.Store(false)
	return user, nil
}

// Logout clears the session and its persisted keys.
func (a *LensApp) Logout() error {
	if err := a.persistOperation(""); err != nil {
		return err
	}
	return a.track(a.session.Logout())
}

// Identity describes the signed-in user for whoami.
type Identity struct {
	User      lens.User
	ExpiresAt time.Time // zero if the token carries no expiry
}

// WhoAmI returns the signed-in identity. ok is false when signed out.
func (a *LensApp) WhoAmI() (Identity, bool) {
	user, ok := a.session.CurrentUser()
	if !ok {
		return Identity{}, false
	}
	id := Identity{User: user}
	if exp, ok := a.session.ExpiresAt(); ok {
		id.ExpiresAt = exp
	}
	return id, true
}

// Feed fetches a page and renders it. On failure both the fallback result
// and the error are returned.
func (a *LensApp) Feed(ctx context.Context, page int, filters *lens.FeedFilters) (*lens.FeedResult, error) {
	res, err := a.feed.Fetch(ctx, page, filters)
	if res != nil {
		a.reconciler.Render(res.Posts)
	}
	return res, err
}

// Search fetches the first page for a free-text query and renders it.
func (a *LensApp) Search(ctx context.Context, query string) (*lens.FeedResult, error) {
	res, err := a.feed.Search(ctx, query)
	if res != nil {
		a.reconciler.Render(res.Posts)
	}
	return res, err
}

// ensureRendered loads page when postID is not rendered yet.
func (a *LensApp) ensureRendered(ctx context.Context, postID string, page int) error {
	if _, ok := a.reconciler.View(postID); ok {
		return nil
	}
	if _, err := a.Feed(ctx, page, nil); err != nil {
		return err
	}
	if _, ok := a.reconciler.View(postID); !ok {
		return fmt.Errorf("post %s not on page %d: %w", postID, page, lens.ErrNotRendered)
	}
	return nil
}

// Like toggles the like on a post, loading its feed page first if needed.
func (a *LensApp) Like(ctx context.Context, postID string, page int) (lens.PostView, error) {
	if _, ok := a.session.CurrentUser(); !ok {
		return lens.PostView{}, lens.ErrNotSignedIn
	}
	if err := a.persistOperation(postID); err != nil {
		return lens.PostView{}, err
	}
	if err := a.ensureRendered(ctx, postID, page); err != nil {
		return lens.PostView{}, a.track(err)
	}
	err := a.reconciler.ToggleLike(ctx, postID)
	view, _ := a.reconciler.View(postID)
	return view, a.track(err)
}

// Comment adds a comment to a post, loading its feed page first if needed.
func (a *LensApp) Comment(ctx context.Context, postID, text string, page int) (*lens.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, lens.ErrEmptyComment
	}
	if _, ok := a.session.CurrentUser(); !ok {
		return nil, lens.ErrNotSignedIn
	}
	if err := a.persistOperation(postID); err != nil {
		return nil, err
	}
	if err := a.ensureRendered(ctx, postID, page); err != nil {
		return nil, a.track(err)
	}
	if err := a.reconciler.SetDraft(postID, text); err != nil {
		return nil, a.track(err)
	}
	c, err := a.reconciler.SubmitComment(ctx, postID)
	return c, a.track(err)
}

// Upload sends a local file or s3:// object as a new post. Only creators
// reach this; the backend enforces it independently.
func (a *LensApp) Upload(ctx context.Context, ref string, req lens.UploadRequest) (*lens.Post, error) {
	user, ok := a.session.CurrentUser()
	if !ok {
		return nil, lens.ErrNotSignedIn
	}
	if !user.IsCreator() {
		return nil, lens.ErrCreatorOnly
	}
	if err := a.persistOperation(ref); err != nil {
		return nil, err
	}

	f, err := a.media.Open(ctx, ref)
	if err != nil {
		return nil, a.track(err)
	}
	defer f.Close()

	req.FileName = f.Name
	req.Size = f.Size
	a.logger.Info("uploading media", "file", f.Name, "size", f.Size)
	post, err := a.gateway.UploadMedia(ctx, req, f)
	if err != nil {
		return nil, a.track(err)
	}
	if post == nil {
		return nil, a.track(errors.New("upload response has no post"))
	}
	return post, nil
}

// CreateCreator creates a creator account with the admin secret.
func (a *LensApp) CreateCreator(ctx context.Context, account lens.CreatorAccount, adminSecret string) (*lens.User, error) {
	if err := a.persistOperation(account.Username + " " + account.Email); err != nil {
		return nil, err
	}
	user, err := a.gateway.CreateCreator(ctx, account, adminSecret)
	if err != nil {
		return nil, a.track(err)
	}
	if user == nil {
		// Acknowledged without the object.
		user = &lens.User{Username: account.Username, Email: account.Email, Role: lens.RoleCreator}
	}
	return user, nil
}

// History returns the most recent recorded operations.
func (a *LensApp) History(limit int) ([]*storage.OperationRecord, error) {
	return a.store.ListOperations(limit)
}

// Close finalizes the operation and closes all resources.
func (a *LensApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.store.FinishOperation(a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
