package lens

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InteractionStatus is the per-post, per-kind interaction state.
type InteractionStatus int

const (
	StatusIdle InteractionStatus = iota
	StatusPending
)

func (s InteractionStatus) String() string {
	if s == StatusPending {
		return "pending"
	}
	return "idle"
}

// Outcome records how the last interaction of a kind settled.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCommitted
	OutcomeRolledBack
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeRolledBack:
		return "rolled-back"
	default:
		return "none"
	}
}

// LikeSnapshot is the pre-mutation like state captured for rollback.
type LikeSnapshot struct {
	HasLiked bool
	Likes    int
}

// InteractionState tracks one interaction kind on one post.
type InteractionState struct {
	Status      InteractionStatus
	LastOutcome Outcome
	// Snapshot is held only while a like-toggle is pending.
	Snapshot *LikeSnapshot
	// Err is the last failure, cleared when the next attempt starts.
	Err error
}

// Composer is the comment input attached to a rendered post.
type Composer struct {
	Draft string
	InteractionState
}

// PostView is a copy of a rendered post and its interaction state.
type PostView struct {
	Post     Post
	Like     InteractionState
	Composer Composer
}

type renderedPost struct {
	post     Post
	like     InteractionState
	composer Composer
}

func (r *renderedPost) view() PostView {
	v := PostView{Post: r.post.Clone(), Like: r.like, Composer: r.composer}
	if r.like.Snapshot != nil {
		snap := *r.like.Snapshot
		v.Like.Snapshot = &snap
	}
	return v
}

// CurrentUserSource exposes the signed-in user to the Reconciler.
type CurrentUserSource interface {
	CurrentUser() (User, bool)
}

// Reconciler applies local mutations for likes and comments on the rendered
// posts and reconciles them with the backend. Likes are optimistic and rolled
// back to their snapshot on failure. Comments are appended only after the
// backend acknowledges them.
//
// At most one interaction of each kind is in flight per post; a second one
// is rejected with ErrInteractionPending.
type Reconciler struct {
	gateway Gateway
	session CurrentUserSource
	logger  Logger
	clock   Clock
	idgen   IDGenerator

	mu    sync.Mutex
	posts map[string]*renderedPost
	order []string
}

// NewReconciler creates a Reconciler with nothing rendered.
func NewReconciler(gateway Gateway, session CurrentUserSource, logger Logger, clock Clock, idgen IDGenerator) *Reconciler {
	return &Reconciler{
		gateway: gateway,
		session: session,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		posts:   make(map[string]*renderedPost),
	}
}

// Render replaces the rendered set with the given posts. Interactions still
// in flight for replaced instances settle without touching the new ones.
func (r *Reconciler) Render(posts []Post) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.posts = make(map[string]*renderedPost, len(posts))
	r.order = r.order[:0]
	for _, p := range posts {
		if _, dup := r.posts[p.ID]; dup {
			continue
		}
		r.posts[p.ID] = &renderedPost{post: p.Clone()}
		r.order = append(r.order, p.ID)
	}
}

// Release unmounts a post. A pending interaction on it resolves as a no-op.
func (r *Reconciler) Release(postID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.posts, postID)
	for i, id := range r.order {
		if id == postID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// View returns a copy of a rendered post and its interaction state.
func (r *Reconciler) View(postID string) (PostView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rp, ok := r.posts[postID]
	if !ok {
		return PostView{}, false
	}
	return rp.view(), true
}

// Views returns copies of all rendered posts in render order.
func (r *Reconciler) Views() []PostView {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PostView, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.posts[id].view())
	}
	return out
}

// ToggleLike flips the like state of a rendered post immediately and then
// asks the backend to do the same. If the backend call fails, the exact
// pre-toggle state is restored and an *InteractionFailure is returned.
func (r *Reconciler) ToggleLike(ctx context.Context, postID string) error {
	if _, ok := r.session.CurrentUser(); !ok {
		return ErrNotSignedIn
	}

	r.mu.Lock()
	rp, ok := r.posts[postID]
	if !ok {
		r.mu.Unlock()
		return ErrNotRendered
	}
	if rp.like.Status == StatusPending {
		r.mu.Unlock()
		return ErrInteractionPending
	}

	snap := LikeSnapshot{HasLiked: rp.post.Stats.HasLiked, Likes: rp.post.Stats.Likes}
	rp.like = InteractionState{Status: StatusPending, LastOutcome: rp.like.LastOutcome, Snapshot: &snap}
	rp.post.Stats.HasLiked = !snap.HasLiked
	if rp.post.Stats.HasLiked {
		rp.post.Stats.Likes = snap.Likes + 1
	} else if snap.Likes > 0 {
		rp.post.Stats.Likes = snap.Likes - 1
	}
	r.mu.Unlock()

	err := r.gateway.ToggleLike(ctx, postID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.posts[postID] != rp {
		r.logger.Debug("like settled for released post", "post", postID)
		if err != nil {
			return &InteractionFailure{Kind: KindLikeToggle, PostID: postID, Err: err}
		}
		return nil
	}

	rp.like.Status = StatusIdle
	rp.like.Snapshot = nil
	if err != nil {
		rp.post.Stats.HasLiked = snap.HasLiked
		rp.post.Stats.Likes = snap.Likes
		fail := &InteractionFailure{Kind: KindLikeToggle, PostID: postID, Err: err}
		rp.like.LastOutcome = OutcomeRolledBack
		rp.like.Err = fail
		r.logger.Warn("like rolled back", "post", postID, "error", err)
		return fail
	}

	rp.like.LastOutcome = OutcomeCommitted
	r.logger.Debug("like committed", "post", postID, "liked", rp.post.Stats.HasLiked)
	return nil
}

// SetDraft replaces the comment draft of a rendered post and clears any
// previous composer error.
func (r *Reconciler) SetDraft(postID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rp, ok := r.posts[postID]
	if !ok {
		return ErrNotRendered
	}
	rp.composer.Draft = text
	rp.composer.Err = nil
	return nil
}

// SubmitComment sends the post's draft as a comment. The comment is appended
// only after the backend acknowledges it, and the draft is cleared only then.
// On failure nothing is appended, the draft is kept for retry and the
// composer records the error.
//
// A blank draft returns ErrEmptyComment and no user returns ErrNotSignedIn;
// neither changes any state.
func (r *Reconciler) SubmitComment(ctx context.Context, postID string) (*Comment, error) {
	r.mu.Lock()
	rp, ok := r.posts[postID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotRendered
	}
	text := strings.TrimSpace(rp.composer.Draft)
	if text == "" {
		r.mu.Unlock()
		return nil, ErrEmptyComment
	}
	user, signedIn := r.session.CurrentUser()
	if !signedIn {
		r.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	if rp.composer.Status == StatusPending {
		r.mu.Unlock()
		return nil, ErrInteractionPending
	}
	rp.composer.Status = StatusPending
	rp.composer.Err = nil
	r.mu.Unlock()

	remote, err := r.gateway.AddComment(ctx, postID, text)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		fail := &InteractionFailure{Kind: KindCommentAdd, PostID: postID, Err: err}
		if r.posts[postID] == rp {
			rp.composer.Status = StatusIdle
			rp.composer.LastOutcome = OutcomeRolledBack
			rp.composer.Err = fail
		}
		r.logger.Warn("comment failed", "post", postID, "error", err)
		return nil, fail
	}

	comment := r.acknowledgedComment(remote, user, text)
	if r.posts[postID] != rp {
		r.logger.Debug("comment settled for released post", "post", postID)
		return &comment, nil
	}

	rp.post.Comments = append(rp.post.Comments, comment)
	rp.composer.Status = StatusIdle
	rp.composer.LastOutcome = OutcomeCommitted
	rp.composer.Draft = ""
	return &comment, nil
}

// acknowledgedComment prefers the server's comment. When the server omitted
// it, a local comment is synthesized and marked as such.
func (r *Reconciler) acknowledgedComment(remote *Comment, user User, text string) Comment {
	if remote != nil && remote.ID != "" {
		return *remote
	}
	id := "local-" + r.idgen.New()
	r.logger.Warn("server omitted comment object, synthesized locally", "id", id)
	return Comment{
		ID:        id,
		User:      user.Username,
		Text:      text,
		Timestamp: r.clock.Now().UTC().Format(time.RFC3339),
		Local:     true,
	}
}
