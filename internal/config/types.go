package config

// Config is the top-level configuration structure for csgate.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Auth    AuthConfig    `yaml:"auth"`
	Gateway GatewayConfig `yaml:"gateway"`
}

const (
	// MCPTransportStreamableHTTP is the streamable HTTP transport.
	MCPTransportStreamableHTTP = "streamable-http"
	// MCPTransportSSE is the Server-Sent Events transport.
	MCPTransportSSE = "sse"
	// MCPTransportStdio is the standard I/O transport.
	MCPTransportStdio = "stdio"
)

// APIConfig points at the upstream research-catalog API.
type APIConfig struct {
	BaseURL        string `yaml:"baseURL,omitempty"`        // Catalog API base URL
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"` // Per-request timeout for catalog calls (default: 30)
}

// AuthConfig defines the OAuth2 device-flow client configuration.
type AuthConfig struct {
	ServerURL string `yaml:"serverURL,omitempty"` // Keycloak base URL
	Realm     string `yaml:"realm,omitempty"`     // Keycloak realm (default: "default")
	ClientID  string `yaml:"clientID,omitempty"`  // OAuth2 client ID
	Scope     string `yaml:"scope,omitempty"`     // Requested scope (default: "openid")
	TokenFile string `yaml:"tokenFile,omitempty"` // Token cache path (default: ~/.cybershuttle/token.json)
}

// GatewayConfig defines the configuration for the MCP gateway service.
type GatewayConfig struct {
	Host      string `yaml:"host,omitempty"`      // Host to bind to (default: localhost)
	Port      int    `yaml:"port,omitempty"`      // Port for HTTP-based transports (default: 8090)
	Transport string `yaml:"transport,omitempty"` // Transport to use (default: stdio)
}

// DeviceEndpoint returns the Keycloak device-authorization endpoint.
func (a AuthConfig) DeviceEndpoint() string {
	return a.ServerURL + "/realms/" + a.Realm + "/protocol/openid-connect/auth/device"
}

// TokenEndpoint returns the Keycloak token endpoint.
func (a AuthConfig) TokenEndpoint() string {
	return a.ServerURL + "/realms/" + a.Realm + "/protocol/openid-connect/token"
}
