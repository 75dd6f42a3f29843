package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"csgate/internal/auth"
	"csgate/internal/config"
)

// Shared auth flags
var (
	authConfigPath string
	authQuiet      bool
)

// authCmd groups the authentication subcommands.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication to the Cybershuttle catalog",
	Long: `Manage OAuth2 device-flow authentication for the Cybershuttle catalog.

Tokens are cached on disk and reused across commands and the gateway, so a
single login covers every csgate process on this machine.

Examples:
  csgate auth login        # Run the device flow and cache the token
  csgate auth status       # Show the current token state
  csgate auth logout       # Remove the cached token`,
}

func init() {
	authCmd.PersistentFlags().StringVar(&authConfigPath, "config-path", "", "Configuration directory (default: ~/.cybershuttle)")
	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress informational output")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)

	rootCmd.AddCommand(authCmd)
}

// authPrintln prints a line unless quiet mode is enabled.
func authPrintln(a ...interface{}) {
	if !authQuiet {
		fmt.Println(a...)
	}
}

// authPrint prints formatted output unless quiet mode is enabled.
func authPrint(format string, a ...interface{}) {
	if !authQuiet {
		fmt.Printf(format, a...)
	}
}

// loadAuthConfig loads the configuration for auth commands, falling back to
// the default directory when --config-path is not given.
func loadAuthConfig() (config.Config, error) {
	path := authConfigPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}
	return config.LoadConfig(path)
}

// buildTokenStore creates the token store from configuration.
func buildTokenStore(cfg config.Config) (*auth.TokenStore, error) {
	store, err := auth.NewTokenStore(cfg.Auth.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}
	return store, nil
}
