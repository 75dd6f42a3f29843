package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"csgate/internal/catalog"
)

// toolResult marshals v as indented JSON for the MCP text result.
func toolResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rawResult passes an upstream payload through unchanged.
func rawResult(raw json.RawMessage, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// requireObject extracts a required object argument.
func requireObject(request mcp.CallToolRequest, key string) (map[string]interface{}, error) {
	raw := request.GetArguments()[key]
	if raw == nil {
		return nil, fmt.Errorf("missing required argument: %s", key)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("argument %s must be an object", key)
	}
	return obj, nil
}

// optionalString extracts an optional string argument, empty when absent.
func optionalString(request mcp.CallToolRequest, key string) string {
	if v, ok := request.GetArguments()[key].(string); ok {
		return v
	}
	return ""
}

// optionalInt extracts an optional numeric argument. JSON numbers arrive as
// float64.
func optionalInt(request mcp.CallToolRequest, key string) int {
	if v, ok := request.GetArguments()[key].(float64); ok {
		return int(v)
	}
	return 0
}

func (s *Server) handleListResources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := catalog.ResourceFilter{
		Type:   optionalString(request, "resource_type"),
		Tags:   optionalString(request, "tags"),
		Name:   optionalString(request, "name"),
		Limit:  optionalInt(request, "limit"),
		Offset: optionalInt(request, "offset"),
	}

	resources, err := s.catalog.ListResources(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(resources)
}

func (s *Server) handleGetResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceID, err := request.RequireString("resource_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resource, err := s.catalog.GetResource(ctx, resourceID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(resource)
}

func (s *Server) handleSearchResources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceType, err := request.RequireString("resource_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return rawResult(s.catalog.SearchResources(ctx, resourceType, name))
}

func (s *Server) handleGetAllTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return rawResult(s.catalog.GetAllTags(ctx))
}

func (s *Server) handleCreateDataset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := requireObject(request, "data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.CreateDataset(ctx, data))
}

func (s *Server) handleCreateNotebook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := requireObject(request, "data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.CreateNotebook(ctx, data))
}

func (s *Server) handleCreateModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := requireObject(request, "data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.CreateModel(ctx, data))
}

func (s *Server) handleCreateRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	githubURL, err := request.RequireString("github_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.CreateRepository(ctx, githubURL))
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.catalog.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(projects)
}

func (s *Server) handleCreateProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := requireObject(request, "data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.CreateProject(ctx, data))
}

func (s *Server) handleGetProjectsByOwner(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.GetProjectsByOwner(ctx, ownerID))
}

func (s *Server) handleDeleteProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.DeleteProject(ctx, projectID))
}

func (s *Server) handleStartProjectSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sessionName := optionalString(request, "session_name")
	if sessionName == "" {
		sessionName = "session-" + uuid.NewString()[:8]
	}

	return rawResult(s.catalog.StartProjectSession(ctx, projectID, sessionName))
}

func (s *Server) handleResumeSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.ResumeSession(ctx, sessionID))
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.catalog.ListSessions(ctx, optionalString(request, "status"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(sessions)
}

func (s *Server) handleUpdateSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.UpdateSessionStatus(ctx, sessionID, status))
}

func (s *Server) handleDeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(s.catalog.DeleteSession(ctx, sessionID))
}

func (s *Server) handleAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := map[string]interface{}{
		"state":         s.status.State().String(),
		"authenticated": s.status.HasValidToken(),
	}
	if record, ok := s.status.CurrentRecord(); ok {
		status["expires_at"] = record.Expiry().UTC().Format(time.RFC3339)
	}
	return toolResult(status)
}

func (s *Server) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health := map[string]interface{}{
		"service":       serverName,
		"authenticated": s.status.HasValidToken(),
	}

	// The tags endpoint is cheap and exercises auth plus upstream reachability.
	if _, err := s.catalog.GetAllTags(ctx); err != nil {
		health["status"] = "degraded"
		health["error"] = err.Error()
	} else {
		health["status"] = "healthy"
	}
	return toolResult(health)
}
