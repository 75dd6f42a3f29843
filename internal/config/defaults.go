package config

// Default endpoints for the hosted Cybershuttle deployment. A config file
// overrides any of these.
const (
	DefaultAPIBaseURL    = "https://api.dev.cybershuttle.org:18899"
	DefaultAuthServerURL = "https://auth.cybershuttle.org"
	DefaultRealm         = "default"
	DefaultClientID      = "cybershuttle-agent"
	DefaultScope         = "openid"
)

// GetDefaultConfig returns the default configuration for csgate.
func GetDefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        DefaultAPIBaseURL,
			TimeoutSeconds: 30,
		},
		Auth: AuthConfig{
			ServerURL: DefaultAuthServerURL,
			Realm:     DefaultRealm,
			ClientID:  DefaultClientID,
			Scope:     DefaultScope,
		},
		Gateway: GatewayConfig{
			Host:      "localhost",
			Port:      8090,
			Transport: MCPTransportStdio,
		},
	}
}
