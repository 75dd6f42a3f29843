package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"csgate/internal/auth"
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show the current authentication status for the Cybershuttle catalog.

Displays whether a cached token exists, when it expires, and whether a
refresh token is available. Exits with code 2 when no valid token is cached,
so scripts can gate on it.

Examples:
  csgate auth status
  csgate auth status --quiet && echo authenticated`,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadAuthConfig()
	if err != nil {
		return err
	}

	store, err := buildTokenStore(cfg)
	if err != nil {
		return err
	}

	authPrintln("Cybershuttle Catalog")
	authPrint("  Endpoint:  %s\n", cfg.API.BaseURL)
	authPrint("  Realm:     %s (%s)\n", cfg.Auth.Realm, cfg.Auth.ServerURL)

	if override := os.Getenv(auth.EnvAccessToken); override != "" {
		authPrint("  Status:    %s\n", text.FgGreen.Sprintf("Token provided via %s", auth.EnvAccessToken))
		return nil
	}

	record, ok := store.Load()
	if !ok {
		authPrint("  Status:    %s\n", text.FgYellow.Sprint("Not authenticated"))
		authPrintln("\nRun 'csgate auth login' to authenticate.")
		return fmt.Errorf("no cached token: %w", auth.ErrNoToken)
	}

	now := time.Now()
	if record.Usable(now) {
		authPrint("  Status:    %s\n", text.FgGreen.Sprint("Authenticated"))
		authPrint("  Expires:   %s (%s)\n",
			record.Expiry().Local().Format(time.RFC1123),
			formatRemaining(record.Expiry().Sub(now)))
	} else {
		authPrint("  Status:    %s\n", text.FgYellow.Sprint(expiredLabel(record, now)))
	}

	if record.RefreshToken != "" {
		authPrint("  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
	} else {
		authPrint("  Refresh:   %s\n", text.FgYellow.Sprint("Not available (re-login required on expiry)"))
	}
	authPrint("  Cache:     %s\n", store.Path())

	if !record.Usable(now) && record.RefreshToken == "" {
		return fmt.Errorf("token expired: %w", auth.ErrNoToken)
	}
	return nil
}

func expiredLabel(record auth.Record, now time.Time) string {
	expiry := record.Expiry()
	if expiry.Before(now) {
		return fmt.Sprintf("Expired %s ago", formatRemaining(now.Sub(expiry)))
	}
	// Inside the safety margin: nominally valid but not used for new calls.
	return fmt.Sprintf("Expiring (%s left, below safety margin)", formatRemaining(expiry.Sub(now)))
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
