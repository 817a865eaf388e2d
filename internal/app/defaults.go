package app

import (
	"fmt"
	"os"
	"path/filepath"

	"lensfeed/internal/config"
)

// Environment variables read by the CLI. Any of them may come from a .env file.
const (
	EnvConfigPath = "LENSFEED_CONFIG_PATH" // config file location
	EnvHome       = "LENSFEED_HOME"        // base directory for lensfeed data
	EnvAPIURL     = "LENSFEED_API_URL"     // backend base URL used by config init
	EnvPassword   = "LENSFEED_PASSWORD"    // non-interactive password
)

// Defaults holds the paths and endpoint used when no config exists yet.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	BaseURL    string
}

// GetDefaults returns application defaults, checking environment variables
// first and falling back to ~/.config/lensfeed.toml and
// ~/.local/share/lensfeed.
func GetDefaults() (Defaults, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil && (os.Getenv(EnvConfigPath) == "" || os.Getenv(EnvHome) == "") {
		return Defaults{}, fmt.Errorf("cannot determine home directory: %w", err)
	}

	d := Defaults{
		ConfigPath: envOr(EnvConfigPath, filepath.Join(homeDir, ".config", "lensfeed.toml")),
		BaseDir:    envOr(EnvHome, filepath.Join(homeDir, ".local", "share", "lensfeed")),
		BaseURL:    envOr(EnvAPIURL, config.DefaultBaseURL),
	}
	d.LogDir = filepath.Join(d.BaseDir, "log")
	return d, nil
}

// PasswordFromEnv returns LENSFEED_PASSWORD if set.
func PasswordFromEnv() (string, bool) {
	p := os.Getenv(EnvPassword)
	return p, p != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
