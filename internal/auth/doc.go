// Package auth implements the OAuth2 device-flow token lifecycle for the
// Cybershuttle research platform.
//
// Three pieces compose the lifecycle:
//
//   - TokenStore: file-backed persistence of the current token record
//     (~/.cybershuttle/token.json) plus a CS_ACCESS_TOKEN environment mirror
//     for co-located child processes.
//   - DeviceFlowClient: the RFC 8628 device authorization grant against a
//     Keycloak-style authorization server, plus refresh-token grants.
//   - Manager: the single "get a currently valid access token" operation,
//     resolving override -> cached -> persisted -> refresh -> device flow.
//
// The device flow is interactive and can block for minutes; Manager merges
// concurrent renewals into one in-flight flow and every blocking operation is
// context-cancellable. TokenWatcher lets a long-running process observe
// logins and logouts performed by other processes.
package auth
