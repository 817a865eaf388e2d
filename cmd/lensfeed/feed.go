package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lensfeed/internal/app"
	"lensfeed/internal/lens"
)

var (
	bold  = color.New(color.Bold)
	faint = color.New(color.Faint)
	liked = color.New(color.FgRed)
)

// printPost writes one post in the feed listing format.
func printPost(w io.Writer, v lens.PostView, withComments bool) {
	p := v.Post
	title := p.Title
	if title == "" {
		title = "(untitled)"
	}
	bold.Fprintf(w, "[%s] %s", p.ID, title)
	fmt.Fprintf(w, "  by @%s", p.Creator.Username)
	if p.MediaType == lens.MediaVideo {
		fmt.Fprint(w, "  [video]")
	}
	fmt.Fprintln(w)

	if p.Caption != "" {
		fmt.Fprintf(w, "    %s\n", p.Caption)
	}
	var meta []string
	if p.Location != "" {
		meta = append(meta, p.Location)
	}
	for _, tag := range p.Tags {
		meta = append(meta, "#"+tag)
	}
	if len(meta) > 0 {
		faint.Fprintf(w, "    %s\n", strings.Join(meta, "  "))
	}

	likes := fmt.Sprintf("%d likes", p.Stats.Likes)
	if p.Stats.HasLiked {
		likes = liked.Sprintf("%d likes (liked)", p.Stats.Likes)
	}
	if v.Like.Status == lens.StatusPending {
		likes += faint.Sprint(" ...")
	}
	fmt.Fprintf(w, "    %s  %d comments\n", likes, len(p.Comments))

	if withComments {
		for _, c := range p.Comments {
			local := ""
			if c.Local {
				local = faint.Sprint(" (unconfirmed)")
			}
			fmt.Fprintf(w, "      @%s: %s%s\n", c.User, c.Text, local)
		}
	}
	fmt.Fprintln(w)
}

// showFeed prints a feed result. A fetch error is shown as a notice above
// the fallback content rather than returned.
func showFeed(a *app.LensApp, res *lens.FeedResult, err error, withComments bool) error {
	var fetchErr *lens.TransientFetchError
	if err != nil && !errors.As(err, &fetchErr) {
		return err
	}
	if err != nil {
		warnf("%s\n\n", app.Describe(err))
	}
	if h := app.FeedHeading(res); h != "" {
		noticef("%s\n\n", h)
	}
	for _, v := range a.Reconciler().Views() {
		printPost(os.Stdout, v, withComments)
	}
	return nil
}

func feedFilters(cmd *cobra.Command) *lens.FeedFilters {
	f := &lens.FeedFilters{}
	f.Q, _ = cmd.Flags().GetString("query")
	f.Location, _ = cmd.Flags().GetString("location")
	f.Tag, _ = cmd.Flags().GetString("tag")
	f.Username, _ = cmd.Flags().GetString("user")
	mt, _ := cmd.Flags().GetString("type")
	f.Type = lens.MediaType(mt)
	if f.IsZero() {
		return nil
	}
	return f
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show a page of the feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		comments, _ := cmd.Flags().GetBool("comments")

		a, err := newApp(cmd.Context(), "Feed")
		if err != nil {
			return err
		}
		defer closeApp(a)

		res, err := a.Feed(cmd.Context(), page, feedFilters(cmd))
		return showFeed(a, res, err, comments)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search posts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Search")
		if err != nil {
			return err
		}
		defer closeApp(a)

		res, err := a.Search(cmd.Context(), strings.Join(args, " "))
		if errors.Is(err, lens.ErrEmptyQuery) {
			return err
		}
		return showFeed(a, res, err, false)
	},
}

var likeCmd = &cobra.Command{
	Use:   "like POST_ID",
	Short: "Like or unlike a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		a, err := newApp(cmd.Context(), "Like")
		if err != nil {
			return err
		}
		defer closeApp(a)

		view, err := a.Like(cmd.Context(), args[0], page)
		if err != nil {
			return err
		}
		if view.Post.Stats.HasLiked {
			fmt.Printf("Liked post %s (%d likes)\n", view.Post.ID, view.Post.Stats.Likes)
		} else {
			fmt.Printf("Unliked post %s (%d likes)\n", view.Post.ID, view.Post.Stats.Likes)
		}
		return nil
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment POST_ID TEXT...",
	Short: "Comment on a post",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		a, err := newApp(cmd.Context(), "Comment")
		if err != nil {
			return err
		}
		defer closeApp(a)

		c, err := a.Comment(cmd.Context(), args[0], strings.Join(args[1:], " "), page)
		if err != nil {
			return err
		}
		fmt.Printf("Commented on post %s as @%s\n", args[0], c.User)
		if c.Local {
			warnf("The server did not return the comment; it is shown locally until the next refresh.\n")
		}
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload FILE|s3://BUCKET/KEY",
	Short: "Upload media as a new post (creators only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req lens.UploadRequest
		req.Title, _ = cmd.Flags().GetString("title")
		req.Caption, _ = cmd.Flags().GetString("caption")
		req.Location, _ = cmd.Flags().GetString("location")
		req.Tags, _ = cmd.Flags().GetString("tags")

		a, err := newApp(cmd.Context(), "Upload")
		if err != nil {
			return err
		}
		defer closeApp(a)

		post, err := a.Upload(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded post %s\n", post.ID)
		printPost(os.Stdout, lens.PostView{Post: *post}, false)
		return nil
	},
}

// admin command
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative actions",
}

var adminCreateCreatorCmd = &cobra.Command{
	Use:   "create-creator",
	Short: "Create a creator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		var account lens.CreatorAccount
		var err error
		if account.Username, err = flagOrPrompt(cmd, "username", "Username: "); err != nil {
			return err
		}
		if account.Email, err = flagOrPrompt(cmd, "email", "Email: "); err != nil {
			return err
		}
		if account.Password, err = readPassword("Password for new account: "); err != nil {
			return err
		}
		secret := os.Getenv("LENSFEED_ADMIN_SECRET")
		if secret == "" {
			if secret, err = readHidden("Admin secret: "); err != nil {
				return err
			}
		}

		a, err := newApp(cmd.Context(), "CreateCreator")
		if err != nil {
			return err
		}
		defer closeApp(a)

		user, err := a.CreateCreator(cmd.Context(), account, secret)
		if err != nil {
			return err
		}
		fmt.Printf("Created creator account @%s <%s>\n", user.Username, user.Email)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer closeApp(a)

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-14s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().IntP("page", "p", 1, "Page number")
	feedCmd.Flags().BoolP("comments", "c", false, "Show comments")
	feedCmd.Flags().StringP("query", "q", "", "Free-text query")
	feedCmd.Flags().String("location", "", "Filter by location")
	feedCmd.Flags().String("tag", "", "Filter by tag")
	feedCmd.Flags().String("type", "", "Filter by media type (image or video)")
	feedCmd.Flags().String("user", "", "Filter by creator username")

	likeCmd.Flags().IntP("page", "p", 1, "Feed page the post is on")
	commentCmd.Flags().IntP("page", "p", 1, "Feed page the post is on")

	uploadCmd.Flags().String("title", "", "Post title")
	uploadCmd.Flags().String("caption", "", "Post caption")
	uploadCmd.Flags().String("location", "", "Where it was taken")
	uploadCmd.Flags().String("tags", "", "Comma-separated tags")

	adminCreateCreatorCmd.Flags().StringP("username", "u", "", "Username")
	adminCreateCreatorCmd.Flags().StringP("email", "e", "", "Account email")
	adminCmd.AddCommand(adminCreateCreatorCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(historyCmd)
}
