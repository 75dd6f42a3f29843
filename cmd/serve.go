package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"csgate/internal/auth"
	"csgate/internal/catalog"
	"csgate/internal/config"
	"csgate/internal/gateway"
	"csgate/pkg/logging"
)

// Serve flags
var (
	serveConfigPath string
	serveTransport  string
	serveHost       string
	servePort       int
	serveDebug      bool
)

// serveCmd defines the serve command structure. This is the main command of
// csgate: it starts the MCP gateway that AI agents connect to.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP gateway for the Cybershuttle catalog",
	Long: `Starts the MCP gateway that exposes the Cybershuttle research catalog
as tools for AI agents.

The gateway authenticates on the agent's behalf. If no cached token exists
when the first tool call arrives, the gateway starts a device-flow login and
logs the verification URL and user code; approve it in a browser and the
pending call completes. Logins performed externally with 'csgate auth login'
are picked up automatically through the token file watcher.

Transports:
  stdio            MCP over stdin/stdout, for direct agent integration (default)
  sse              HTTP with Server-Sent Events on the configured host/port
  streamable-http  Streamable HTTP on the configured host/port

Configuration is read from <config-path>/config.yaml (default ~/.cybershuttle),
with flags overriding file values.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Configuration directory (default: ~/.cybershuttle)")
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "MCP transport: stdio, sse, or streamable-http")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind HTTP transports to")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port for HTTP transports")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	// Logs go to stderr: stdout belongs to the MCP protocol on the stdio
	// transport.
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	configPath := serveConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Flags override file configuration.
	if serveTransport != "" {
		cfg.Gateway.Transport = serveTransport
	}
	if serveHost != "" {
		cfg.Gateway.Host = serveHost
	}
	if servePort != 0 {
		cfg.Gateway.Port = servePort
	}

	store, err := auth.NewTokenStore(cfg.Auth.TokenFile)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}

	flow := auth.NewDeviceFlowClient(auth.DeviceFlowConfig{
		DeviceEndpoint: cfg.Auth.DeviceEndpoint(),
		TokenEndpoint:  cfg.Auth.TokenEndpoint(),
		ClientID:       cfg.Auth.ClientID,
		Scope:          cfg.Auth.Scope,
	})

	manager := auth.NewManager(store, flow)

	// React to logins and logouts performed by other csgate processes.
	watcher, err := auth.NewTokenWatcher(store.Path(), manager.Reload)
	if err != nil {
		logging.Warn("Serve", "Token file watching unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	client := catalog.NewClient(cfg.API.BaseURL, manager, timeout)

	srv := gateway.NewServer(client, manager, cfg.Gateway)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Warn("Serve", "systemd notify failed: %v", err)
	} else if sent {
		logging.Debug("Serve", "Notified systemd of readiness")
	}

	logging.Info("Serve", "Gateway ready (transport: %s)", cfg.Gateway.Transport)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logging.Info("Serve", "Received signal %s, shutting down", sig)
	case <-ctx.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}
