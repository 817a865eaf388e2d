package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"lensfeed/internal/app"
	"lensfeed/internal/lens"
)

const browseHelp = `Commands:
  feed [PAGE]          load a feed page
  search QUERY         search posts
  show ID              show a post with comments
  like ID              like or unlike a post
  comment ID TEXT      comment on a post
  login | logout | whoami
  help | quit`

// browser is an interactive session. Likes and comments run on their own
// goroutines so the prompt stays responsive; results are printed as they
// settle.
type browser struct {
	app  *app.LensApp
	page int

	out sync.Mutex
	wg  sync.WaitGroup
}

func (b *browser) printf(format string, args ...any) {
	b.out.Lock()
	defer b.out.Unlock()
	fmt.Printf(format, args...)
}

func (b *browser) report(err error) {
	b.out.Lock()
	defer b.out.Unlock()
	errorf("%s\n", app.Describe(err))
	if b.app.LoginRequired() {
		noticef("Type `login` to sign in again.\n")
	}
}

func (b *browser) show(res *lens.FeedResult, err error) {
	b.out.Lock()
	defer b.out.Unlock()
	if err := showFeed(b.app, res, err, false); err != nil {
		errorf("%s\n", app.Describe(err))
	}
}

func (b *browser) like(ctx context.Context, id string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.app.Reconciler().ToggleLike(ctx, id); err != nil {
			b.report(err)
			return
		}
		if v, ok := b.app.Reconciler().View(id); ok {
			b.printf("post %s: %d likes\n", id, v.Post.Stats.Likes)
		}
	}()
	// The optimistic state is already applied.
	if v, ok := b.app.Reconciler().View(id); ok && v.Like.Status == lens.StatusPending {
		b.printf("post %s: %d likes ...\n", id, v.Post.Stats.Likes)
	}
}

func (b *browser) comment(ctx context.Context, id, text string) {
	if err := b.app.Reconciler().SetDraft(id, text); err != nil {
		b.report(err)
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		c, err := b.app.Reconciler().SubmitComment(ctx, id)
		if err != nil {
			b.report(err)
			return
		}
		b.printf("commented on post %s as @%s\n", id, c.User)
	}()
}

func (b *browser) login(ctx context.Context) {
	email, err := prompt("Email: ")
	if err != nil {
		b.report(err)
		return
	}
	password, err := readPassword("Password: ")
	if err != nil {
		b.report(err)
		return
	}
	user, err := b.app.Login(ctx, email, password)
	if err != nil {
		b.report(err)
		return
	}
	b.printf("Signed in as @%s\n", user.Username)
}

// exec runs one command line. It returns false when the session should end.
func (b *browser) exec(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
	case "quit", "exit", "q":
		return false
	case "help", "?":
		b.printf("%s\n", browseHelp)
	case "feed", "f":
		if rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil {
				b.printf("page must be a number\n")
				return true
			}
			b.page = n
		}
		b.show(b.app.Feed(ctx, b.page, nil))
	case "search", "s":
		res, err := b.app.Search(ctx, rest)
		if errors.Is(err, lens.ErrEmptyQuery) {
			b.report(err)
			return true
		}
		b.show(res, err)
	case "show":
		v, ok := b.app.Reconciler().View(rest)
		if !ok {
			b.report(lens.ErrNotRendered)
			return true
		}
		b.out.Lock()
		printPost(os.Stdout, v, true)
		b.out.Unlock()
	case "like", "l":
		b.like(ctx, rest)
	case "comment", "c":
		id, text, _ := strings.Cut(rest, " ")
		b.comment(ctx, id, text)
	case "login":
		b.login(ctx)
	case "logout":
		if err := b.app.Logout(); err != nil {
			b.report(err)
			return true
		}
		b.printf("Signed out.\n")
	case "whoami":
		if id, ok := b.app.WhoAmI(); ok {
			b.printf("@%s (%s)\n", id.User.Username, id.User.Role)
		} else {
			b.printf("Not signed in.\n")
		}
	default:
		b.printf("unknown command %q; type help\n", cmd)
	}
	return true
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the feed interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		ctx := cmd.Context()

		a, err := newApp(ctx, "Browse")
		if err != nil {
			return err
		}
		defer closeApp(a)

		b := &browser{app: a, page: page}
		if id, ok := a.WhoAmI(); ok {
			noticef("Signed in as @%s. Type help for commands.\n\n", id.User.Username)
		} else {
			noticef("Browsing signed out. Type login to sign in, help for commands.\n\n")
		}
		b.show(a.Feed(ctx, page, nil))

		// Lines are read from the same reader the login prompts use.
		var readErr error
		for {
			b.printf("> ")
			line, err := stdin.ReadString('\n')
			if line != "" && !b.exec(ctx, line) {
				break
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = err
				}
				break
			}
		}
		b.wg.Wait()
		return readErr
	},
}

func init() {
	browseCmd.Flags().IntP("page", "p", 1, "Starting page")
	rootCmd.AddCommand(browseCmd)
}
