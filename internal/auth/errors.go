package auth

import (
	"errors"
	"fmt"
)

// ErrNoToken indicates that no access token could be obtained by any
// resolution step. Callers requesting headers get this instead of an empty
// or malformed header set.
var ErrNoToken = errors.New("no valid access token available")

// ErrAccessDenied indicates the user rejected the authorization request.
var ErrAccessDenied = errors.New("user denied authorization")

// ErrDeviceCodeExpired indicates the device code expired before the user
// completed authorization. The whole flow must be restarted.
var ErrDeviceCodeExpired = errors.New("device code expired")

// DeviceFlowError is a terminal OAuth error returned by the authorization
// server during the device grant.
type DeviceFlowError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *DeviceFlowError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}
