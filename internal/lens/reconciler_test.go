package lens_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"lensfeed/internal/lens"
	"lensfeed/internal/testutil"
)

type reconcilerFixture struct {
	gw    *stubGateway
	user  *fixedUser
	clock *testutil.StubClock
	rec   *lens.Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		gw:    newStubGateway(),
		user:  &fixedUser{user: &alex},
		clock: testutil.FixedClock(),
	}
	f.rec = lens.NewReconciler(f.gw, f.user, lens.NewNopLogger(), f.clock, testutil.NewStubIDGenerator())
	f.rec.Render(lens.FallbackPosts())
	return f
}

func (f *reconcilerFixture) view(t *testing.T, id string) lens.PostView {
	t.Helper()
	v, ok := f.rec.View(id)
	if !ok {
		t.Fatalf("post %s not rendered", id)
	}
	return v
}

// blockingLike makes ToggleLike wait until the returned func is called with
// the result to return.
func blockingLike(gw *stubGateway) (entered chan struct{}, finish func(error)) {
	entered = make(chan struct{}, 1)
	result := make(chan error)
	gw.toggleLike = func(ctx context.Context, _ string) error {
		entered <- struct{}{}
		return <-result
	}
	return entered, func(err error) { result <- err }
}

func TestReconciler_ToggleLike(t *testing.T) {
	t.Run("optimistic then committed", func(t *testing.T) {
		f := newReconcilerFixture(t)
		entered, finish := blockingLike(f.gw)

		done := make(chan error)
		go func() { done <- f.rec.ToggleLike(context.Background(), "101") }()
		<-entered

		v := f.view(t, "101")
		if v.Post.Stats.HasLiked || v.Post.Stats.Likes != 119 {
			t.Errorf("optimistic stats = %+v, want unliked 119", v.Post.Stats)
		}
		if v.Like.Status != lens.StatusPending {
			t.Errorf("status = %v, want pending", v.Like.Status)
		}
		if v.Like.Snapshot == nil || *v.Like.Snapshot != (lens.LikeSnapshot{HasLiked: true, Likes: 120}) {
			t.Errorf("snapshot = %+v", v.Like.Snapshot)
		}

		finish(nil)
		if err := <-done; err != nil {
			t.Fatalf("ToggleLike() error = %v", err)
		}

		v = f.view(t, "101")
		if v.Post.Stats.HasLiked || v.Post.Stats.Likes != 119 {
			t.Errorf("committed stats = %+v, want unliked 119", v.Post.Stats)
		}
		if v.Like.Status != lens.StatusIdle || v.Like.LastOutcome != lens.OutcomeCommitted || v.Like.Snapshot != nil {
			t.Errorf("like state = %+v", v.Like)
		}
	})

	t.Run("failure restores snapshot", func(t *testing.T) {
		f := newReconcilerFixture(t)
		entered, finish := blockingLike(f.gw)

		done := make(chan error)
		go func() { done <- f.rec.ToggleLike(context.Background(), "101") }()
		<-entered
		finish(errBackendDown)

		err := <-done
		var fail *lens.InteractionFailure
		if !errors.As(err, &fail) || fail.Kind != lens.KindLikeToggle || fail.PostID != "101" {
			t.Fatalf("ToggleLike() error = %v, want like InteractionFailure", err)
		}
		if !errors.Is(err, errBackendDown) {
			t.Error("failure does not wrap cause")
		}

		v := f.view(t, "101")
		if !v.Post.Stats.HasLiked || v.Post.Stats.Likes != 120 {
			t.Errorf("rolled back stats = %+v, want liked 120", v.Post.Stats)
		}
		if v.Like.LastOutcome != lens.OutcomeRolledBack || v.Like.Err == nil {
			t.Errorf("like state = %+v", v.Like)
		}
	})

	t.Run("like then unlike round trip", func(t *testing.T) {
		f := newReconcilerFixture(t)
		f.gw.toggleLike = func(context.Context, string) error { return nil }

		f.rec.ToggleLike(context.Background(), "102")
		if v := f.view(t, "102"); !v.Post.Stats.HasLiked || v.Post.Stats.Likes != 351 {
			t.Errorf("after like = %+v", v.Post.Stats)
		}
		f.rec.ToggleLike(context.Background(), "102")
		if v := f.view(t, "102"); v.Post.Stats.HasLiked || v.Post.Stats.Likes != 350 {
			t.Errorf("after unlike = %+v", v.Post.Stats)
		}
	})

	t.Run("decrement clamps at zero", func(t *testing.T) {
		f := newReconcilerFixture(t)
		f.gw.toggleLike = func(context.Context, string) error { return nil }
		f.rec.Render([]lens.Post{{ID: "z", Stats: lens.PostStats{Likes: 0, HasLiked: true}}})

		if err := f.rec.ToggleLike(context.Background(), "z"); err != nil {
			t.Fatal(err)
		}
		if v := f.view(t, "z"); v.Post.Stats.Likes != 0 || v.Post.Stats.HasLiked {
			t.Errorf("stats = %+v, want 0 unliked", v.Post.Stats)
		}
	})

	t.Run("overlapping toggle is rejected", func(t *testing.T) {
		f := newReconcilerFixture(t)
		entered, finish := blockingLike(f.gw)

		done := make(chan error)
		go func() { done <- f.rec.ToggleLike(context.Background(), "101") }()
		<-entered

		if err := f.rec.ToggleLike(context.Background(), "101"); !errors.Is(err, lens.ErrInteractionPending) {
			t.Errorf("second ToggleLike() error = %v, want ErrInteractionPending", err)
		}
		if f.gw.Calls("like") != 1 {
			t.Errorf("like calls = %d, want 1", f.gw.Calls("like"))
		}

		finish(errBackendDown)
		<-done
		if v := f.view(t, "101"); !v.Post.Stats.HasLiked || v.Post.Stats.Likes != 120 {
			t.Errorf("stats = %+v, want original", v.Post.Stats)
		}
	})

	t.Run("other posts are independent", func(t *testing.T) {
		f := newReconcilerFixture(t)
		entered, finish := blockingLike(f.gw)

		done := make(chan error)
		go func() { done <- f.rec.ToggleLike(context.Background(), "101") }()
		<-entered

		v := f.view(t, "102")
		if v.Post.Stats.Likes != 350 || v.Like.Status != lens.StatusIdle {
			t.Errorf("unrelated post changed: %+v", v)
		}
		finish(nil)
		<-done
	})

	t.Run("released post settles as no-op", func(t *testing.T) {
		f := newReconcilerFixture(t)
		entered, finish := blockingLike(f.gw)

		done := make(chan error)
		go func() { done <- f.rec.ToggleLike(context.Background(), "101") }()
		<-entered

		f.rec.Release("101")
		finish(errBackendDown)
		if err := <-done; err == nil {
			t.Error("ToggleLike() error = nil, want failure reported")
		}
		if _, ok := f.rec.View("101"); ok {
			t.Error("released post reappeared")
		}
	})

	t.Run("re-render is not touched by stale settle", func(t *testing.T) {
		f := newReconcilerFixture(t)
		entered, finish := blockingLike(f.gw)

		done := make(chan error)
		go func() { done <- f.rec.ToggleLike(context.Background(), "101") }()
		<-entered

		fresh := lens.FallbackPosts()
		fresh[0].Stats = lens.PostStats{Likes: 500}
		f.rec.Render(fresh)
		finish(errBackendDown)
		<-done

		v := f.view(t, "101")
		if v.Post.Stats.Likes != 500 || v.Post.Stats.HasLiked || v.Like.Status != lens.StatusIdle {
			t.Errorf("fresh instance modified: %+v", v)
		}
	})

	t.Run("requires signed-in user", func(t *testing.T) {
		f := newReconcilerFixture(t)
		f.user.user = nil

		if err := f.rec.ToggleLike(context.Background(), "101"); !errors.Is(err, lens.ErrNotSignedIn) {
			t.Errorf("error = %v, want ErrNotSignedIn", err)
		}
		if f.gw.Calls("like") != 0 {
			t.Error("backend called without user")
		}
	})

	t.Run("unknown post", func(t *testing.T) {
		f := newReconcilerFixture(t)
		if err := f.rec.ToggleLike(context.Background(), "nope"); !errors.Is(err, lens.ErrNotRendered) {
			t.Errorf("error = %v, want ErrNotRendered", err)
		}
	})
}

func TestReconciler_SubmitComment(t *testing.T) {
	t.Run("appends acknowledged comment and clears draft", func(t *testing.T) {
		f := newReconcilerFixture(t)
		var sent string
		f.gw.addComment = func(_ context.Context, _ string, text string) (*lens.Comment, error) {
			sent = text
			return &lens.Comment{ID: "c9", User: "alex_shots", Text: text, Timestamp: "2025-12-20T00:00:00Z"}, nil
		}

		f.rec.SetDraft("101", "  great shot  ")
		c, err := f.rec.SubmitComment(context.Background(), "101")
		if err != nil {
			t.Fatalf("SubmitComment() error = %v", err)
		}
		if sent != "great shot" {
			t.Errorf("sent %q, want trimmed text", sent)
		}
		if c.ID != "c9" || c.Local {
			t.Errorf("comment = %+v", c)
		}

		v := f.view(t, "101")
		if n := len(v.Post.Comments); n != 3 || v.Post.Comments[2].ID != "c9" {
			t.Errorf("comments = %+v", v.Post.Comments)
		}
		if v.Composer.Draft != "" || v.Composer.LastOutcome != lens.OutcomeCommitted {
			t.Errorf("composer = %+v", v.Composer)
		}
	})

	t.Run("nothing appended while pending", func(t *testing.T) {
		f := newReconcilerFixture(t)
		entered := make(chan struct{})
		release := make(chan struct{})
		f.gw.addComment = func(context.Context, string, string) (*lens.Comment, error) {
			close(entered)
			<-release
			return &lens.Comment{ID: "c9", Text: "hi"}, nil
		}
		f.rec.SetDraft("101", "hi")

		done := make(chan error)
		go func() { _, err := f.rec.SubmitComment(context.Background(), "101"); done <- err }()
		<-entered

		v := f.view(t, "101")
		if len(v.Post.Comments) != 2 {
			t.Errorf("comment appended before acknowledgement")
		}
		if v.Composer.Status != lens.StatusPending || v.Composer.Draft != "hi" {
			t.Errorf("composer = %+v", v.Composer)
		}
		if _, err := f.rec.SubmitComment(context.Background(), "101"); !errors.Is(err, lens.ErrInteractionPending) {
			t.Errorf("second submit error = %v, want ErrInteractionPending", err)
		}

		close(release)
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	})

	t.Run("failure keeps draft", func(t *testing.T) {
		f := newReconcilerFixture(t)
		f.rec.SetDraft("101", "hello")

		_, err := f.rec.SubmitComment(context.Background(), "101")
		var fail *lens.InteractionFailure
		if !errors.As(err, &fail) || fail.Kind != lens.KindCommentAdd {
			t.Fatalf("error = %v, want comment InteractionFailure", err)
		}

		v := f.view(t, "101")
		if len(v.Post.Comments) != 2 {
			t.Error("comment appended on failure")
		}
		if v.Composer.Draft != "hello" || v.Composer.Err == nil || v.Composer.Status != lens.StatusIdle {
			t.Errorf("composer = %+v", v.Composer)
		}

		f.rec.SetDraft("101", "hello again")
		if v := f.view(t, "101"); v.Composer.Err != nil {
			t.Error("SetDraft did not clear composer error")
		}
	})

	t.Run("blank draft is a no-op", func(t *testing.T) {
		for _, draft := range []string{"", "   ", "\n\t"} {
			f := newReconcilerFixture(t)
			f.rec.SetDraft("101", draft)

			_, err := f.rec.SubmitComment(context.Background(), "101")
			if !errors.Is(err, lens.ErrEmptyComment) {
				t.Errorf("draft %q: error = %v, want ErrEmptyComment", draft, err)
			}
			if f.gw.Calls("comment") != 0 {
				t.Errorf("draft %q: backend called", draft)
			}
			if v := f.view(t, "101"); v.Composer.Status != lens.StatusIdle || len(v.Post.Comments) != 2 {
				t.Errorf("draft %q: state changed %+v", draft, v.Composer)
			}
		}
	})

	t.Run("requires signed-in user", func(t *testing.T) {
		f := newReconcilerFixture(t)
		f.user.user = nil
		f.rec.SetDraft("101", "hi")

		if _, err := f.rec.SubmitComment(context.Background(), "101"); !errors.Is(err, lens.ErrNotSignedIn) {
			t.Errorf("error = %v, want ErrNotSignedIn", err)
		}
		if v := f.view(t, "101"); v.Composer.Draft != "hi" {
			t.Error("draft changed")
		}
	})

	t.Run("omitted comment is synthesized", func(t *testing.T) {
		f := newReconcilerFixture(t)
		f.gw.addComment = func(context.Context, string, string) (*lens.Comment, error) { return nil, nil }
		f.rec.SetDraft("102", "first!")

		c, err := f.rec.SubmitComment(context.Background(), "102")
		if err != nil {
			t.Fatal(err)
		}
		if !c.Local || !strings.HasPrefix(c.ID, "local-") {
			t.Errorf("comment = %+v, want local synthesized", c)
		}
		if c.User != "alex_shots" || c.Text != "first!" {
			t.Errorf("comment = %+v", c)
		}
		if c.Timestamp != f.clock.Now().UTC().Format(time.RFC3339) {
			t.Errorf("timestamp = %q", c.Timestamp)
		}
		if v := f.view(t, "102"); len(v.Post.Comments) != 1 || !v.Post.Comments[0].Local {
			t.Errorf("comments = %+v", v.Post.Comments)
		}
	})
}

func TestReconciler_RenderAndRelease(t *testing.T) {
	f := newReconcilerFixture(t)

	views := f.rec.Views()
	if len(views) != 5 || views[0].Post.ID != "101" || views[4].Post.ID != "105" {
		t.Fatalf("views = %d", len(views))
	}

	f.rec.Release("103")
	views = f.rec.Views()
	if len(views) != 4 {
		t.Errorf("views after release = %d, want 4", len(views))
	}
	for _, v := range views {
		if v.Post.ID == "103" {
			t.Error("released post still listed")
		}
	}

	if err := f.rec.SetDraft("103", "x"); !errors.Is(err, lens.ErrNotRendered) {
		t.Errorf("SetDraft on released post error = %v", err)
	}

	// Views are copies.
	v := f.view(t, "101")
	v.Post.Comments[0].Text = "mutated"
	if f.view(t, "101").Post.Comments[0].Text == "mutated" {
		t.Error("view aliases reconciler state")
	}
}
