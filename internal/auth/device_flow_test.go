package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeAuthServer fakes the Keycloak device and token endpoints.
type fakeAuthServer struct {
	*httptest.Server

	deviceCalls int64
	tokenCalls  int64

	// tokenHandler decides the poll response given the attempt number (1-based).
	tokenHandler func(attempt int64, w http.ResponseWriter)
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()

	f := &fakeAuthServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.deviceCalls, 1)
		if err := r.ParseForm(); err != nil || r.PostFormValue("client_id") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"device_code":               "D1",
			"user_code":                 "U1",
			"verification_uri":          "https://auth.example.org/device",
			"verification_uri_complete": "https://auth.example.org/device?user_code=U1",
			"expires_in":                60,
			"interval":                  1,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt64(&f.tokenCalls, 1)
		f.tokenHandler(attempt, w)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pendingResponse(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "authorization_pending"})
}

func successResponse(w http.ResponseWriter, accessToken string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": "R1",
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func newTestFlowClient(f *fakeAuthServer, onPending func(int)) *DeviceFlowClient {
	return NewDeviceFlowClient(DeviceFlowConfig{
		DeviceEndpoint: f.URL + "/device",
		TokenEndpoint:  f.URL + "/token",
		ClientID:       "cybershuttle-agent",
		Scope:          "openid",
		Prompt:         func(UserPrompt) {},
		OnPending:      onPending,
	})
}

func TestDeviceFlow_RequestDeviceCode(t *testing.T) {
	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) { successResponse(w, "T1") }

	client := newTestFlowClient(f, nil)
	da, err := client.RequestDeviceCode(context.Background())
	if err != nil {
		t.Fatalf("RequestDeviceCode failed: %v", err)
	}

	if da.DeviceCode != "D1" || da.UserCode != "U1" {
		t.Errorf("Unexpected device auth response: %+v", da)
	}
	if da.Interval != 1 {
		t.Errorf("Expected interval 1, got %d", da.Interval)
	}
	if time.Until(da.Expiry) > 61*time.Second {
		t.Errorf("Expiry too far in the future: %v", da.Expiry)
	}
}

func TestDeviceFlow_DeviceCodeRequestRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_client"})
	}))
	defer server.Close()

	client := NewDeviceFlowClient(DeviceFlowConfig{
		DeviceEndpoint: server.URL,
		TokenEndpoint:  server.URL,
		ClientID:       "cybershuttle-agent",
		Prompt:         func(UserPrompt) {},
	})

	if _, err := client.RequestDeviceCode(context.Background()); err == nil {
		t.Fatal("Expected error for non-200 device authorization response")
	}
}

func TestDeviceFlow_PendingThenSuccess(t *testing.T) {
	const pendingCount = 2

	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) {
		if attempt <= pendingCount {
			pendingResponse(w)
			return
		}
		successResponse(w, "T1")
	}

	var pendingSeen int32
	client := newTestFlowClient(f, func(attempt int) { atomic.AddInt32(&pendingSeen, 1) })

	tok, err := client.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	if tok.AccessToken != "T1" {
		t.Errorf("Expected access token T1, got %q", tok.AccessToken)
	}
	// Exactly pendingCount pending responses, then success on attempt N+1
	if got := atomic.LoadInt64(&f.tokenCalls); got != pendingCount+1 {
		t.Errorf("Expected %d poll attempts, got %d", pendingCount+1, got)
	}
	if got := atomic.LoadInt32(&pendingSeen); got != pendingCount {
		t.Errorf("Expected %d pending callbacks, got %d", pendingCount, got)
	}
}

func TestDeviceFlow_AccessDeniedAbortsImmediately(t *testing.T) {
	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "access_denied"})
	}

	client := newTestFlowClient(f, nil)
	_, err := client.Authorize(context.Background())
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Expected ErrAccessDenied, got %v", err)
	}

	if got := atomic.LoadInt64(&f.tokenCalls); got != 1 {
		t.Errorf("Expected poll loop to abort after 1 attempt, polled %d times", got)
	}
}

func TestDeviceFlow_ExpiredTokenError(t *testing.T) {
	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "expired_token"})
	}

	client := newTestFlowClient(f, nil)
	if _, err := client.Authorize(context.Background()); !errors.Is(err, ErrDeviceCodeExpired) {
		t.Fatalf("Expected ErrDeviceCodeExpired, got %v", err)
	}
}

func TestDeviceFlow_UnknownErrorIsTyped(t *testing.T) {
	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":             "invalid_grant",
			"error_description": "device code not recognized",
		})
	}

	client := newTestFlowClient(f, nil)
	_, err := client.Authorize(context.Background())

	var dfe *DeviceFlowError
	if !errors.As(err, &dfe) {
		t.Fatalf("Expected DeviceFlowError, got %v", err)
	}
	if dfe.Code != "invalid_grant" {
		t.Errorf("Expected code invalid_grant, got %q", dfe.Code)
	}
}

func TestDeviceFlow_SlowDownStretchesInterval(t *testing.T) {
	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) {
		switch attempt {
		case 1:
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "slow_down"})
		default:
			successResponse(w, "T1")
		}
	}

	client := newTestFlowClient(f, nil)

	start := time.Now()
	tok, err := client.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if tok.AccessToken != "T1" {
		t.Errorf("Expected T1, got %q", tok.AccessToken)
	}
	// interval 1s + slow_down increment 5s between the two attempts
	if elapsed := time.Since(start); elapsed < 6*time.Second {
		t.Errorf("Expected slow_down to stretch the interval, elapsed %v", elapsed)
	}
}

func TestDeviceFlow_ContextCancelStopsPolling(t *testing.T) {
	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) { pendingResponse(w) }

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestFlowClient(f, func(attempt int) {
		if attempt == 1 {
			cancel()
		}
	})

	_, err := client.Authorize(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestDeviceFlow_Refresh(t *testing.T) {
	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "T2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}

	client := newTestFlowClient(f, nil)
	tok, err := client.Refresh(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if tok.AccessToken != "T2" {
		t.Errorf("Expected T2, got %q", tok.AccessToken)
	}
	// Server omitted the refresh token: the old one is kept
	if tok.RefreshToken != "R1" {
		t.Errorf("Expected refresh token R1 preserved, got %q", tok.RefreshToken)
	}
}

func TestDeviceFlow_RefreshRejected(t *testing.T) {
	f := newFakeAuthServer(t)
	f.tokenHandler = func(attempt int64, w http.ResponseWriter) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_grant"})
	}

	client := newTestFlowClient(f, nil)
	_, err := client.Refresh(context.Background(), "stale")

	var dfe *DeviceFlowError
	if !errors.As(err, &dfe) {
		t.Fatalf("Expected DeviceFlowError, got %v", err)
	}
}
