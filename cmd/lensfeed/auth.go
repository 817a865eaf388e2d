package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lensfeed/internal/app"
)

var stdin = bufio.NewReader(os.Stdin)

// prompt reads one line from stdin.
func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ":")), err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword returns LENSFEED_PASSWORD if set, otherwise reads a password
// from the terminal without echo.
func readPassword(label string) (string, error) {
	if p, ok := app.PasswordFromEnv(); ok {
		return p, nil
	}
	return readHidden(label)
}

// readHidden reads a secret without echo when stdin is a terminal.
func readHidden(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}

	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return string(b), nil
}

// flagOrPrompt returns the flag value, prompting when it is empty.
func flagOrPrompt(cmd *cobra.Command, name, label string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if v != "" {
		return v, nil
	}
	return prompt(label)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := flagOrPrompt(cmd, "email", "Email: ")
		if err != nil {
			return err
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "Login")
		if err != nil {
			return err
		}
		defer closeApp(a)

		user, err := a.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as @%s (%s)\n", user.Username, user.Role)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, err := flagOrPrompt(cmd, "username", "Username: ")
		if err != nil {
			return err
		}
		email, err := flagOrPrompt(cmd, "email", "Email: ")
		if err != nil {
			return err
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "Signup")
		if err != nil {
			return err
		}
		defer closeApp(a)

		user, err := a.Signup(cmd.Context(), username, email, password)
		if err != nil {
			return err
		}
		fmt.Printf("Welcome, @%s. You are signed in.\n", user.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Logout")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.Logout(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "WhoAmI")
		if err != nil {
			return err
		}
		defer closeApp(a)

		id, ok := a.WhoAmI()
		if !ok {
			fmt.Println("Not signed in.")
			return nil
		}
		fmt.Printf("@%s <%s>\n", id.User.Username, id.User.Email)
		fmt.Printf("Role:    %s\n", id.User.Role)
		if !id.ExpiresAt.IsZero() {
			fmt.Printf("Expires: %s (%s)\n", id.ExpiresAt.Local().Format("2006-01-02 15:04"), time.Until(id.ExpiresAt).Truncate(time.Minute))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "Account email")
	signupCmd.Flags().StringP("username", "u", "", "Username")
	signupCmd.Flags().StringP("email", "e", "", "Account email")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
