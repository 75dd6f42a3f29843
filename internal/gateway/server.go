package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"csgate/internal/auth"
	"csgate/internal/catalog"
	"csgate/internal/config"
	"csgate/pkg/logging"
)

// serverName identifies this gateway to MCP clients.
const serverName = "csgate-gateway"

// AuthStatus reports the authentication state for the auth_status tool.
// Implemented by auth.Manager.
type AuthStatus interface {
	State() auth.State
	HasValidToken() bool
	CurrentRecord() (auth.Record, bool)
}

// Server exposes the research catalog as MCP tools for AI agents. Every tool
// call is proxied to the catalog client, which injects credentials; agents
// never see tokens.
type Server struct {
	catalog *catalog.Client
	status  AuthStatus
	cfg     config.GatewayConfig

	mu                   sync.Mutex
	mcpServer            *server.MCPServer
	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	stdioServer          *server.StdioServer
	cancelFunc           context.CancelFunc
}

// NewServer creates the gateway with all catalog tools registered.
func NewServer(client *catalog.Client, status AuthStatus, cfg config.GatewayConfig) *Server {
	mcpServer := server.NewMCPServer(
		serverName,
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s := &Server{
		catalog:   client,
		status:    status,
		cfg:       cfg,
		mcpServer: mcpServer,
	}
	s.registerTools()
	return s
}

// Start starts the configured transport. HTTP-based transports return
// immediately and serve in the background; stdio blocks callers via the
// returned listener goroutine the same way.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelFunc != nil {
		return fmt.Errorf("gateway server already started")
	}

	ctx, s.cancelFunc = context.WithCancel(ctx)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	switch s.cfg.Transport {
	case config.MCPTransportSSE:
		logging.Info("Gateway", "Starting MCP gateway with SSE transport on %s", addr)
		baseURL := fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
		s.sseServer = server.NewSSEServer(
			s.mcpServer,
			server.WithBaseURL(baseURL),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		sseServer := s.sseServer
		go func() {
			if err := sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Gateway", err, "SSE server error")
			}
		}()

	case config.MCPTransportStdio:
		logging.Info("Gateway", "Starting MCP gateway with stdio transport")
		s.stdioServer = server.NewStdioServer(s.mcpServer)
		stdioServer := s.stdioServer
		go func() {
			if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
				logging.Error("Gateway", err, "Stdio server error")
			}
		}()

	case config.MCPTransportStreamableHTTP:
		fallthrough
	default:
		logging.Info("Gateway", "Starting MCP gateway with streamable-http transport on %s", addr)
		s.streamableHTTPServer = server.NewStreamableHTTPServer(s.mcpServer)
		streamableServer := s.streamableHTTPServer
		go func() {
			if err := streamableServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Gateway", err, "Streamable HTTP server error")
			}
		}()
	}

	return nil
}

// Stop shuts down whichever transport is running.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancelFunc := s.cancelFunc
	sseServer := s.sseServer
	streamableServer := s.streamableHTTPServer
	s.cancelFunc = nil
	s.mu.Unlock()

	if cancelFunc == nil {
		return fmt.Errorf("gateway server not started")
	}

	logging.Info("Gateway", "Stopping MCP gateway")
	cancelFunc()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if sseServer != nil {
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Gateway", err, "Error shutting down SSE server")
		}
	}
	if streamableServer != nil {
		if err := streamableServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Gateway", err, "Error shutting down streamable HTTP server")
		}
	}
	// Stdio listener stops on context cancellation.

	return nil
}

// registerTools registers the catalog, project, session, and status tools.
func (s *Server) registerTools() {
	// === resources ===

	listResourcesTool := mcp.NewTool("list_resources",
		mcp.WithDescription("List resources from the research catalog with optional filtering by type, tags, or name"),
		mcp.WithString("resource_type",
			mcp.Description("Filter by resource type (DATASET, NOTEBOOK, REPOSITORY, MODEL)"),
		),
		mcp.WithString("tags",
			mcp.Description("Filter by comma-separated tags"),
		),
		mcp.WithString("name",
			mcp.Description("Filter by resource name (substring match)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of results to skip for pagination"),
		),
	)
	s.mcpServer.AddTool(listResourcesTool, s.handleListResources)

	getResourceTool := mcp.NewTool("get_resource",
		mcp.WithDescription("Get detailed information about a specific catalog resource"),
		mcp.WithString("resource_id",
			mcp.Required(),
			mcp.Description("ID of the resource to retrieve"),
		),
	)
	s.mcpServer.AddTool(getResourceTool, s.handleGetResource)

	searchResourcesTool := mcp.NewTool("search_resources",
		mcp.WithDescription("Search catalog resources by type and name"),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("Resource type to search within (DATASET, NOTEBOOK, REPOSITORY, MODEL)"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name to search for"),
		),
	)
	s.mcpServer.AddTool(searchResourcesTool, s.handleSearchResources)

	getAllTagsTool := mcp.NewTool("get_all_tags",
		mcp.WithDescription("Get all available tags from the catalog for filtering and organization"),
	)
	s.mcpServer.AddTool(getAllTagsTool, s.handleGetAllTags)

	createDatasetTool := mcp.NewTool("create_dataset",
		mcp.WithDescription("Create a new dataset resource in the catalog"),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Dataset metadata (name, description, tags, and storage details)"),
		),
	)
	s.mcpServer.AddTool(createDatasetTool, s.handleCreateDataset)

	createNotebookTool := mcp.NewTool("create_notebook",
		mcp.WithDescription("Create a new notebook resource in the catalog"),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Notebook metadata (name, description, tags, and source details)"),
		),
	)
	s.mcpServer.AddTool(createNotebookTool, s.handleCreateNotebook)

	createModelTool := mcp.NewTool("create_model",
		mcp.WithDescription("Create a new model resource in the catalog"),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Model metadata (name, description, tags, and artifact details)"),
		),
	)
	s.mcpServer.AddTool(createModelTool, s.handleCreateModel)

	createRepositoryTool := mcp.NewTool("create_repository",
		mcp.WithDescription("Create a repository resource in the catalog from a GitHub URL"),
		mcp.WithString("github_url",
			mcp.Required(),
			mcp.Description("URL of the GitHub repository to register"),
		),
	)
	s.mcpServer.AddTool(createRepositoryTool, s.handleCreateRepository)

	// === projects ===

	listProjectsTool := mcp.NewTool("list_projects",
		mcp.WithDescription("List all projects for the current user"),
	)
	s.mcpServer.AddTool(listProjectsTool, s.handleListProjects)

	createProjectTool := mcp.NewTool("create_project",
		mcp.WithDescription("Create a new project that groups catalog resources for experiments"),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Project metadata (name, description, resource IDs)"),
		),
	)
	s.mcpServer.AddTool(createProjectTool, s.handleCreateProject)

	getProjectsByOwnerTool := mcp.NewTool("get_projects_by_owner",
		mcp.WithDescription("List projects owned by a specific user"),
		mcp.WithString("owner_id",
			mcp.Required(),
			mcp.Description("ID of the owner whose projects to list"),
		),
	)
	s.mcpServer.AddTool(getProjectsByOwnerTool, s.handleGetProjectsByOwner)

	deleteProjectTool := mcp.NewTool("delete_project",
		mcp.WithDescription("Delete a project by ID"),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("ID of the project to delete"),
		),
	)
	s.mcpServer.AddTool(deleteProjectTool, s.handleDeleteProject)

	// === sessions ===

	startSessionTool := mcp.NewTool("start_project_session",
		mcp.WithDescription("Start an interactive session for a project on the research hub"),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("ID of the project to start a session for"),
		),
		mcp.WithString("session_name",
			mcp.Description("Name for the session (generated when omitted)"),
		),
	)
	s.mcpServer.AddTool(startSessionTool, s.handleStartProjectSession)

	resumeSessionTool := mcp.NewTool("resume_session",
		mcp.WithDescription("Resume a previously started session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("ID of the session to resume"),
		),
	)
	s.mcpServer.AddTool(resumeSessionTool, s.handleResumeSession)

	listSessionsTool := mcp.NewTool("list_sessions",
		mcp.WithDescription("List sessions, optionally filtered by status"),
		mcp.WithString("status",
			mcp.Description("Filter by session status (e.g. RUNNING, PAUSED, STOPPED)"),
		),
	)
	s.mcpServer.AddTool(listSessionsTool, s.handleListSessions)

	updateSessionStatusTool := mcp.NewTool("update_session_status",
		mcp.WithDescription("Update the status of a session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("ID of the session to update"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status for the session"),
		),
	)
	s.mcpServer.AddTool(updateSessionStatusTool, s.handleUpdateSessionStatus)

	deleteSessionTool := mcp.NewTool("delete_session",
		mcp.WithDescription("Delete a session by ID"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("ID of the session to delete"),
		),
	)
	s.mcpServer.AddTool(deleteSessionTool, s.handleDeleteSession)

	// === status ===

	authStatusTool := mcp.NewTool("auth_status",
		mcp.WithDescription("Report the gateway's authentication state without triggering a login"),
	)
	s.mcpServer.AddTool(authStatusTool, s.handleAuthStatus)

	healthTool := mcp.NewTool("health",
		mcp.WithDescription("Check gateway health and catalog API connectivity"),
	)
	s.mcpServer.AddTool(healthTool, s.handleHealth)
}
