package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokens is a scriptable TokenSource. It hands out tokens in order and
// records which tokens were invalidated.
type fakeTokens struct {
	mu          sync.Mutex
	tokens      []string
	issued      int
	invalidated []string
}

func (f *fakeTokens) GetAccessToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.issued
	if idx >= len(f.tokens) {
		idx = len(f.tokens) - 1
	}
	f.issued++
	return f.tokens[idx], nil
}

func (f *fakeTokens) Invalidate(accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, accessToken)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens ...string) (*Client, *fakeTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	source := &fakeTokens{tokens: tokens}
	return NewClient(srv.URL, source, 5*time.Second), source
}

func TestClient_SendsAuthAndRequestIDHeaders(t *testing.T) {
	var gotAuth, gotRequestID, gotContentType string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"id": 1}`))
	}, "tok-1")

	_, err := client.CreateProject(context.Background(), map[string]interface{}{"name": "demo"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "application/json", gotContentType)
}

func TestClient_RetriesOnceAfter401(t *testing.T) {
	var calls int
	var authHeaders []string
	client, source := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	}, "stale", "fresh")

	_, err := client.ListProjects(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"Bearer stale", "Bearer fresh"}, authHeaders)
	assert.Equal(t, []string{"stale"}, source.invalidated)
}

func TestClient_SecondConsecutive401ReturnsError(t *testing.T) {
	var calls int
	client, source := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid_token"}`))
	}, "stale")

	_, err := client.ListProjects(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 2, calls)
	assert.Len(t, source.invalidated, 1)
}

func TestClient_APIErrorPreservesStatusAndBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "name is required"}`))
	}, "tok-1")

	_, err := client.CreateProject(context.Background(), map[string]interface{}{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.JSONEq(t, `{"detail": "name is required"}`, apiErr.Body)
}

func TestClient_ListResourcesMapsUpstreamShape(t *testing.T) {
	var gotQuery map[string][]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rf/resources/public", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"content": [
			{"id": 42, "name": "climate-data", "type": "DATASET",
			 "description": "daily readings", "tags": ["climate"],
			 "createdAt": "2025-05-01T09:00:00Z"},
			{"id": "r-7", "name": "untagged", "type": "MODEL"}
		]}`))
	}, "tok-1")

	resources, err := client.ListResources(context.Background(), ResourceFilter{
		Type: "DATASET",
		Tags: "climate",
		Name: "data",
	})
	require.NoError(t, err)
	require.Len(t, resources, 2)

	assert.Equal(t, "42", resources[0].ID)
	assert.Equal(t, "climate-data", resources[0].Name)
	assert.Equal(t, "DATASET", resources[0].Type)
	assert.Equal(t, []string{"climate"}, resources[0].Tags)
	assert.Equal(t, "2025-05-01T09:00:00Z", resources[0].CreatedAt)

	assert.Equal(t, "r-7", resources[1].ID)
	assert.NotNil(t, resources[1].Tags, "missing tags should map to an empty slice")
	assert.Empty(t, resources[1].Tags)

	assert.Equal(t, []string{"10"}, gotQuery["limit"])
	assert.Equal(t, []string{"0"}, gotQuery["offset"])
	assert.Equal(t, []string{"DATASET"}, gotQuery["type"])
	assert.Equal(t, []string{"climate"}, gotQuery["tags"])
	assert.Equal(t, []string{"data"}, gotQuery["name"])
}

func TestClient_ListSessionsFiltersByStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rf/sessions/", r.URL.Path)
		assert.Equal(t, "RUNNING", r.URL.Query().Get("status"))
		w.Write([]byte(`[{"id": 3, "projectId": 9, "name": "exp-1",
			"status": "RUNNING", "createdAt": "2025-06-01T10:00:00Z"}]`))
	}, "tok-1")

	sessions, err := client.ListSessions(context.Background(), "RUNNING")
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	assert.Equal(t, "3", sessions[0].ID)
	assert.Equal(t, "9", sessions[0].ProjectID)
	assert.Equal(t, "exp-1", sessions[0].Name)
	assert.Equal(t, "RUNNING", sessions[0].Status)
}

func TestClient_CreateRepositoryUsesQueryParameter(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/rf/resources/repository", r.URL.Path)
		assert.Equal(t, "https://github.com/lab/toolkit", r.URL.Query().Get("githubUrl"))
		w.Write([]byte(`{"id": "repo-1"}`))
	}, "tok-1")

	raw, err := client.CreateRepository(context.Background(), "https://github.com/lab/toolkit")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "repo-1"}`, string(raw))
}

func TestClient_StartProjectSessionPassesSessionName(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rf/hub/start/project/p-1", r.URL.Path)
		assert.Equal(t, "session-abc123", r.URL.Query().Get("sessionName"))
		w.Write([]byte(`{"sessionId": "s-1"}`))
	}, "tok-1")

	_, err := client.StartProjectSession(context.Background(), "p-1", "session-abc123")
	require.NoError(t, err)
}

func TestClient_UpdateSessionStatusUsesPatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/rf/sessions/s-9", r.URL.Path)
		assert.Equal(t, "PAUSED", r.URL.Query().Get("status"))
		w.Write([]byte(`{"id": "s-9", "status": "PAUSED"}`))
	}, "tok-1")

	_, err := client.UpdateSessionStatus(context.Background(), "s-9", "PAUSED")
	require.NoError(t, err)
}

func TestClient_RawPassThroughKeepsUpstreamPayload(t *testing.T) {
	payload := `{"content": [{"id": 1}], "totalElements": 1}`
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rf/resources/public/search", r.URL.Path)
		w.Write([]byte(payload))
	}, "tok-1")

	raw, err := client.SearchResources(context.Background(), "NOTEBOOK", "analysis")
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(raw))

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
}
