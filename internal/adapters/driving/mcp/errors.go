// Package mcp provides an MCP (Model Context Protocol) server adapter for Atlas.
// It lets AI assistants search the knowledge base and query structured data directly.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
