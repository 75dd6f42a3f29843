package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"csgate/internal/auth"
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to the Cybershuttle catalog",
	Long: `Authenticate to the Cybershuttle catalog using the OAuth2 device flow.

The command prints a verification URL and a short user code. Open the URL on
any browser (it does not have to be on this machine), enter the code, and
approve the request. The command waits until the approval completes or the
code expires, then caches the token for all csgate commands and the gateway.

Examples:
  csgate auth login             # Interactive device-flow login
  csgate auth login --quiet     # Only print the URL and code`,
	RunE: runAuthLogin,
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadAuthConfig()
	if err != nil {
		return err
	}

	store, err := buildTokenStore(cfg)
	if err != nil {
		return err
	}

	var s *spinner.Spinner

	flow := auth.NewDeviceFlowClient(auth.DeviceFlowConfig{
		DeviceEndpoint: cfg.Auth.DeviceEndpoint(),
		TokenEndpoint:  cfg.Auth.TokenEndpoint(),
		ClientID:       cfg.Auth.ClientID,
		Scope:          cfg.Auth.Scope,
		Prompt: func(p auth.UserPrompt) {
			printUserPrompt(p)
			if !authQuiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = " Waiting for authorization..."
				s.Start()
			}
		},
	})

	token, err := flow.Authorize(ctx)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	record := auth.NewRecord(token)
	if err := store.Save(record); err != nil {
		return fmt.Errorf("authenticated, but failed to cache token: %w", err)
	}

	authPrint("%s Logged in. Token expires at %s.\n",
		text.FgGreen.Sprint("✓"),
		record.Expiry().Local().Format(time.RFC1123))
	return nil
}

// printUserPrompt shows the out-of-band authorization instructions. This is
// printed even in quiet mode since the login cannot proceed without it.
func printUserPrompt(p auth.UserPrompt) {
	fmt.Println()
	if p.VerificationURIComplete != "" {
		fmt.Printf("Open %s\n", text.Bold.Sprint(p.VerificationURIComplete))
		fmt.Printf("or go to %s and enter code %s\n", p.VerificationURI, text.Bold.Sprint(p.UserCode))
	} else {
		fmt.Printf("Go to %s and enter code %s\n", text.Bold.Sprint(p.VerificationURI), text.Bold.Sprint(p.UserCode))
	}
	fmt.Printf("The code expires in %s.\n\n", p.ExpiresIn.Round(time.Second))
}
