package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"csgate/pkg/logging"
)

const (
	// Defaults applied when the device authorization response omits them,
	// per RFC 8628.
	defaultDeviceCodeLifetime = 1800 * time.Second
	defaultPollInterval       = 5 * time.Second

	// slowDownIncrement is added to the poll interval on a slow_down error
	// (RFC 8628 section 3.5). maxPollInterval caps the backoff.
	slowDownIncrement = 5 * time.Second
	maxPollInterval   = 60 * time.Second

	// deviceHTTPTimeout bounds every individual call to the authorization
	// server. The poll loop as a whole is bounded by the device code expiry.
	deviceHTTPTimeout = 30 * time.Second

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// UserPrompt carries the out-of-band authorization instructions shown to the
// human. The device code itself is deliberately absent: it is a client-held
// secret.
type UserPrompt struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               time.Duration
}

// DeviceFlowConfig configures the device-grant client.
type DeviceFlowConfig struct {
	// DeviceEndpoint is the device authorization endpoint URL.
	DeviceEndpoint string

	// TokenEndpoint is the token endpoint URL, used for polling and for
	// refresh-token grants.
	TokenEndpoint string

	// ClientID is the OAuth2 client identifier.
	ClientID string

	// Scope is the requested scope.
	Scope string

	// Prompt is invoked once per flow with the user-facing instructions.
	// Nil prompts are logged instead.
	Prompt func(UserPrompt)

	// OnPending is invoked after each authorization_pending response with
	// the running attempt count. Optional, for progress display and tests.
	OnPending func(attempt int)

	// HTTPClient overrides the HTTP client, mainly for tests.
	HTTPClient *http.Client
}

// DeviceFlowClient executes the OAuth2 device authorization grant (RFC 8628)
// and refresh-token grants against the same token endpoint.
type DeviceFlowClient struct {
	cfg        DeviceFlowConfig
	httpClient *http.Client
}

// NewDeviceFlowClient creates a device-grant client.
func NewDeviceFlowClient(cfg DeviceFlowConfig) *DeviceFlowClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: deviceHTTPTimeout}
	}
	return &DeviceFlowClient{cfg: cfg, httpClient: httpClient}
}

// oauthError is the RFC 6749 error response body.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Authorize runs the full two-phase device flow: request a device code,
// surface the user instructions, then poll until authorized, denied, expired,
// or the context is cancelled. This blocks for the whole interactive window.
func (c *DeviceFlowClient) Authorize(ctx context.Context) (*oauth2.Token, error) {
	da, err := c.RequestDeviceCode(ctx)
	if err != nil {
		return nil, err
	}

	prompt := UserPrompt{
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		ExpiresIn:               time.Until(da.Expiry),
	}
	if c.cfg.Prompt != nil {
		c.cfg.Prompt(prompt)
	} else {
		logging.Info("Auth", "Authorization required: visit %s and enter code %s", prompt.VerificationURI, prompt.UserCode)
	}

	return c.PollToken(ctx, da)
}

// RequestDeviceCode performs phase 1: a single POST to the device
// authorization endpoint. Any non-200 response is terminal for this attempt.
func (c *DeviceFlowClient) RequestDeviceCode(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("scope", c.cfg.Scope)

	status, body, err := c.postForm(ctx, c.cfg.DeviceEndpoint, form)
	if err != nil {
		return nil, fmt.Errorf("device authorization request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("device authorization request failed with status %d: %s", status, string(body))
	}

	var resp struct {
		DeviceCode              string `json:"device_code"`
		UserCode                string `json:"user_code"`
		VerificationURI         string `json:"verification_uri"`
		VerificationURIComplete string `json:"verification_uri_complete"`
		ExpiresIn               int    `json:"expires_in"`
		Interval                int    `json:"interval"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse device authorization response: %w", err)
	}

	lifetime := time.Duration(resp.ExpiresIn) * time.Second
	if resp.ExpiresIn <= 0 {
		lifetime = defaultDeviceCodeLifetime
	}
	interval := int64(resp.Interval)
	if interval <= 0 {
		interval = int64(defaultPollInterval / time.Second)
	}

	return &oauth2.DeviceAuthResponse{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		Expiry:                  time.Now().Add(lifetime),
		Interval:                interval,
	}, nil
}

// PollToken performs phase 2: poll the token endpoint until the user
// completes authorization. authorization_pending drives the retry loop and is
// the expected steady state; slow_down stretches the interval; every other
// error aborts. The loop is bounded by the device code expiry and by ctx.
func (c *DeviceFlowClient) PollToken(ctx context.Context, da *oauth2.DeviceAuthResponse) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("grant_type", deviceGrantType)
	form.Set("device_code", da.DeviceCode)

	interval := time.Duration(da.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}

	attempt := 0
	timer := time.NewTimer(interval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		if !da.Expiry.IsZero() && time.Now().After(da.Expiry) {
			return nil, ErrDeviceCodeExpired
		}

		status, body, err := c.postForm(ctx, c.cfg.TokenEndpoint, form)
		if err != nil {
			return nil, fmt.Errorf("token poll failed: %w", err)
		}

		switch {
		case status == http.StatusOK:
			tok, err := parseTokenResponse(body)
			if err != nil {
				return nil, err
			}
			logging.Info("Auth", "Device authorization completed after %d poll attempts", attempt+1)
			return tok, nil

		case status == http.StatusBadRequest:
			var oe oauthError
			if err := json.Unmarshal(body, &oe); err != nil {
				return nil, fmt.Errorf("token endpoint returned malformed error: %s", string(body))
			}

			switch oe.Error {
			case "authorization_pending":
				attempt++
				if c.cfg.OnPending != nil {
					c.cfg.OnPending(attempt)
				}
				logging.Debug("Auth", "Waiting for authorization... (%d)", attempt)

			case "slow_down":
				interval += slowDownIncrement
				if interval > maxPollInterval {
					interval = maxPollInterval
				}
				logging.Debug("Auth", "Server requested slower polling, interval now %s", interval)

			case "expired_token":
				return nil, ErrDeviceCodeExpired

			case "access_denied":
				return nil, ErrAccessDenied

			default:
				return nil, &DeviceFlowError{Code: oe.Error, Description: oe.ErrorDescription}
			}

		default:
			return nil, fmt.Errorf("token poll failed with status %d: %s", status, string(body))
		}

		// Sleep between attempts, cancellable.
		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Refresh exchanges a refresh token for a new access token. Any failure is
// terminal for this attempt; callers fall back to the full device flow.
func (c *DeviceFlowClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	status, body, err := c.postForm(ctx, c.cfg.TokenEndpoint, form)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if status != http.StatusOK {
		var oe oauthError
		if err := json.Unmarshal(body, &oe); err == nil && oe.Error != "" {
			return nil, &DeviceFlowError{Code: oe.Error, Description: oe.ErrorDescription}
		}
		return nil, fmt.Errorf("token refresh failed with status %d: %s", status, string(body))
	}

	tok, err := parseTokenResponse(body)
	if err != nil {
		return nil, err
	}
	// Some servers omit the refresh token on refresh; keep the old one.
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

func (c *DeviceFlowClient) postForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, deviceHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func parseTokenResponse(body []byte) (*oauth2.Token, error) {
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Expiry:       time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}
