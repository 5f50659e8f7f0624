// Package driving defines the inbound ports of the hexagon: the interfaces
// through which driving adapters (CLI, HTTP API, MCP server) invoke core
// services.
package driving
