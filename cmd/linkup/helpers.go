package main

import (
	"fmt"
	"os"

	linkup "github.com/linkup-chat/linkup-go"
	"github.com/rs/zerolog"
)

// readConfigFile returns the raw config file contents, or "" if absent.
func readConfigFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("cannot read config file: %w", err)
	}
	return string(data), nil
}

// cliLogger writes human-readable log lines to stderr.
func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// getClient creates a LinkUp API client from the stored configuration.
func getClient() (*linkup.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.AccessToken == "" {
		fmt.Fprintln(os.Stderr, "No access token. Run 'linkup init <access-token> --user-id <id>' first.")
		os.Exit(1)
	}

	var opts []linkup.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, linkup.WithBaseURL(cfg.Default.BaseURL))
	}
	opts = append(opts, linkup.WithLogger(cliLogger()))

	return linkup.NewClient(cfg.Auth.AccessToken, opts...), cfg
}

// getSession creates a session (no realtime channel attached).
func getSession() (*linkup.Session, *Config) {
	client, cfg := getClient()

	var opts []linkup.SessionOption
	if cfg.Default.PageSize > 0 {
		opts = append(opts, linkup.WithPageSize(cfg.Default.PageSize))
	}
	opts = append(opts, linkup.WithSessionLogger(cliLogger()))

	return linkup.NewSession(client, opts...), cfg
}

// exitIfUnauthenticated turns a 401 into a clear message, matching the
// app's "return to login" behavior.
func exitIfUnauthenticated(err error) {
	if linkup.IsUnauthenticated(err) {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'linkup init <access-token> --user-id <id>' again.")
		os.Exit(1)
	}
}
