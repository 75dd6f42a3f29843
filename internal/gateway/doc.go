// Package gateway exposes the Cybershuttle research catalog as MCP tools.
//
// The gateway sits between AI agents and the catalog API: agents call tools
// over an MCP transport (stdio, SSE, or streamable HTTP) and the gateway
// performs the corresponding REST calls with credentials the agent never
// sees. Authentication is delegated to the auth package, so a tool call on a
// fresh process can transparently trigger the device-flow login.
package gateway
