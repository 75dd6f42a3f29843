package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"csgate/pkg/logging"
)

// TokenSource supplies bearer tokens for upstream calls and accepts
// invalidation when upstream rejects one. Implemented by auth.Manager.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
	Invalidate(accessToken string)
}

// APIError is a non-2xx response from the catalog API. Status and body are
// preserved verbatim so the gateway can pass them through.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("catalog API error: status %d: %s", e.Status, e.Body)
}

const defaultRequestTimeout = 30 * time.Second

// Client talks to the research-catalog REST API. It is stateless apart from
// the injected token source; every call resolves a bearer token, and a 401
// invalidates the token and retries the resolution exactly once.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a catalog client. A zero timeout gets the default.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do performs one authenticated request, retrying once after invalidating a
// token upstream rejected with 401.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	data, status, token, err := c.doOnce(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		logging.Warn("Catalog", "Upstream rejected token (401), re-resolving and retrying once")
		c.tokens.Invalidate(token)
		data, status, _, err = c.doOnce(ctx, method, path, query, body)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status > 299 {
		return nil, &APIError{Status: status, Body: string(data)}
	}
	return data, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, int, string, error) {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, 0, "", fmt.Errorf("authentication required: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to read catalog response: %w", err)
	}

	return data, resp.StatusCode, token, nil
}

// === resource controller ===

// ListResources lists public catalog resources with optional filtering.
func (c *Client) ListResources(ctx context.Context, filter ResourceFilter) ([]Resource, error) {
	query := url.Values{}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(filter.Offset))
	if filter.Type != "" {
		query.Set("type", filter.Type)
	}
	if filter.Tags != "" {
		query.Set("tags", filter.Tags)
	}
	if filter.Name != "" {
		query.Set("name", filter.Name)
	}

	data, err := c.do(ctx, http.MethodGet, "/api/v1/rf/resources/public", query, nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		Content []upstreamResource `json:"content"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse resource listing: %w", err)
	}

	resources := make([]Resource, 0, len(page.Content))
	for _, item := range page.Content {
		resources = append(resources, item.simplified())
	}
	return resources, nil
}

// GetResource fetches a single resource by ID.
func (c *Client) GetResource(ctx context.Context, resourceID string) (Resource, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/rf/resources/public/"+url.PathEscape(resourceID), nil, nil)
	if err != nil {
		return Resource{}, err
	}

	var item upstreamResource
	if err := json.Unmarshal(data, &item); err != nil {
		return Resource{}, fmt.Errorf("failed to parse resource: %w", err)
	}
	return item.simplified(), nil
}

// SearchResources searches by type and name. The upstream payload is passed
// through untouched.
func (c *Client) SearchResources(ctx context.Context, resourceType, name string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("type", resourceType)
	query.Set("name", name)
	return c.do(ctx, http.MethodGet, "/api/v1/rf/resources/public/search", query, nil)
}

// GetAllTags returns every tag known to the catalog.
func (c *Client) GetAllTags(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/rf/resources/public/tags/all", nil, nil)
}

// CreateDataset registers a new dataset resource.
func (c *Client) CreateDataset(ctx context.Context, data map[string]interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/rf/resources/dataset", nil, data)
}

// CreateNotebook registers a new notebook resource.
func (c *Client) CreateNotebook(ctx context.Context, data map[string]interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/rf/resources/notebook", nil, data)
}

// CreateModel registers a new model resource.
func (c *Client) CreateModel(ctx context.Context, data map[string]interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/rf/resources/model", nil, data)
}

// CreateRepository registers a repository resource from a GitHub URL. The
// upstream endpoint takes the URL as a query parameter, not a body.
func (c *Client) CreateRepository(ctx context.Context, githubURL string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("githubUrl", githubURL)
	return c.do(ctx, http.MethodPost, "/api/v1/rf/resources/repository", query, nil)
}

// === project controller ===

// ListProjects lists the user's projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/rf/projects/", nil, nil)
	if err != nil {
		return nil, err
	}

	var items []upstreamProject
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse project listing: %w", err)
	}

	projects := make([]Project, 0, len(items))
	for _, item := range items {
		projects = append(projects, item.simplified())
	}
	return projects, nil
}

// CreateProject creates a new project.
func (c *Client) CreateProject(ctx context.Context, data map[string]interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/rf/projects/", nil, data)
}

// GetProjectsByOwner lists projects owned by the given user.
func (c *Client) GetProjectsByOwner(ctx context.Context, ownerID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/rf/projects/"+url.PathEscape(ownerID), nil, nil)
}

// DeleteProject deletes a project by ID.
func (c *Client) DeleteProject(ctx context.Context, projectID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/api/v1/rf/projects/"+url.PathEscape(projectID), nil, nil)
}

// === research hub controller ===

// StartProjectSession spawns an interactive session for a project.
func (c *Client) StartProjectSession(ctx context.Context, projectID, sessionName string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("sessionName", sessionName)
	return c.do(ctx, http.MethodGet, "/api/v1/rf/hub/start/project/"+url.PathEscape(projectID), query, nil)
}

// ResumeSession resumes an existing session.
func (c *Client) ResumeSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/rf/hub/resume/session/"+url.PathEscape(sessionID), nil, nil)
}

// === session controller ===

// ListSessions lists sessions, optionally filtered by status.
func (c *Client) ListSessions(ctx context.Context, status string) ([]Session, error) {
	var query url.Values
	if status != "" {
		query = url.Values{}
		query.Set("status", status)
	}

	data, err := c.do(ctx, http.MethodGet, "/api/v1/rf/sessions/", query, nil)
	if err != nil {
		return nil, err
	}

	var items []upstreamSession
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse session listing: %w", err)
	}

	sessions := make([]Session, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, item.simplified())
	}
	return sessions, nil
}

// UpdateSessionStatus moves a session to a new status.
func (c *Client) UpdateSessionStatus(ctx context.Context, sessionID, status string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("status", status)
	return c.do(ctx, http.MethodPatch, "/api/v1/rf/sessions/"+url.PathEscape(sessionID), query, nil)
}

// DeleteSession deletes a session by ID.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/api/v1/rf/sessions/"+url.PathEscape(sessionID), nil, nil)
}
