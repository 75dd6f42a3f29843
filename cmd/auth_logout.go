package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the cached token",
	Long: `Remove the cached Cybershuttle token from disk and the environment.

Logout is local only: it does not revoke the token at the authorization
server. Running gateways pick up the removal through the token file watcher.`,
	RunE: runAuthLogout,
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadAuthConfig()
	if err != nil {
		return err
	}

	store, err := buildTokenStore(cfg)
	if err != nil {
		return err
	}

	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to remove cached token: %w", err)
	}

	authPrint("%s Logged out.\n", text.FgGreen.Sprint("✓"))
	return nil
}
