package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"csgate/internal/auth"
)

// Exit codes for CLI commands. These follow common conventions so scripts can
// distinguish auth problems from general failures.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth device flow failed.
	ExitCodeAuthFailed = 3
)

// rootCmd represents the base command for the csgate application.
var rootCmd = &cobra.Command{
	Use:   "csgate",
	Short: "Connect AI agents to the Cybershuttle research catalog",
	Long: `csgate bridges AI agents and the Cybershuttle research catalog.
It runs an MCP gateway that exposes catalog resources, projects, and
sessions as tools, handling OAuth2 device-flow authentication so agents
never touch credentials.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application, called by
// main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "csgate version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes for scripting.
func getExitCode(err error) int {
	if errors.Is(err, auth.ErrNoToken) {
		return ExitCodeAuthRequired
	}

	if errors.Is(err, auth.ErrAccessDenied) || errors.Is(err, auth.ErrDeviceCodeExpired) {
		return ExitCodeAuthFailed
	}

	var flowErr *auth.DeviceFlowError
	if errors.As(err, &flowErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}
