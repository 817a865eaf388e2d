package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lensfeed/internal/app"
	"lensfeed/internal/config"
	"lensfeed/internal/encryption"
)

func main() {
	// A .env file in the working directory may supply LENSFEED_* variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		warnf("ignoring .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		errorf("%s\n", app.Describe(err))
		os.Exit(1)
	}
}

var (
	warnf   = color.New(color.FgYellow).PrintfFunc()
	noticef = color.New(color.FgCyan).PrintfFunc()
	red     = color.New(color.FgRed)
)

func errorf(format string, a ...any) {
	red.Fprintf(os.Stderr, format, a...)
}

// newApp reads the config, creates a LensApp and restores the saved session.
// The caller must defer closeApp(a).
// operation identifies the CLI command being run (e.g. "Login", "Like").
func newApp(ctx context.Context, operation string) (*app.LensApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config (run `lensfeed config init` first): %w", err)
	}

	a, err := app.NewLensApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	if err := a.Start(ctx); err != nil {
		warnf("Saved session could not be restored; you are signed out.\n")
	}
	return a, nil
}

// closeApp closes a and tells the user to log in again if the session
// expired during the command.
func closeApp(a *app.LensApp) {
	if a.LoginRequired() {
		noticef("Session expired. Run `lensfeed login` to sign in again.\n")
	}
	if err := a.Close(); err != nil {
		warnf("closing: %v\n", err)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lensfeed",
	Short:         "Browse and interact with a photo-sharing feed",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		baseURL, _ := cmd.Flags().GetString("api")
		if baseURL == "" {
			baseURL = defaults.BaseURL
		}
		cfg := config.NewConfig(defaults.BaseDir, baseURL)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		if cfg.Encryption.Type == "age" {
			sealer := encryption.NewAgeSealer(cfg.Encryption)
			if !sealer.IsConfigured() {
				if err := sealer.Setup(); err != nil {
					return fmt.Errorf("failed to create session key: %w", err)
				}
			}
			fmt.Printf("Session key: %s\n", cfg.Encryption.IdentityPath)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("API:      %s\n", cfg.API.BaseURL)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("API:        %s (timeout %s)\n", cfg.API.BaseURL, cfg.API.Timeout())
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Storage:    %s %s\n", cfg.Storage.Type, cfg.Storage.DataDir)
		fmt.Printf("Encryption: %s %s\n", cfg.Encryption.Type, cfg.Encryption.IdentityPath)
		if cfg.Media.S3Region != "" || cfg.Media.S3Endpoint != "" {
			fmt.Printf("S3:         region=%s endpoint=%s\n", cfg.Media.S3Region, cfg.Media.S3Endpoint)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("api", "", "Backend base URL (default $LENSFEED_API_URL or "+config.DefaultBaseURL+")")

	rootCmd.AddCommand(configCmd)
}
