// Package driven defines the outbound ports of the hexagon: the interfaces
// core services use to reach infrastructure (storage, embedding, completion,
// rerank). Adapters under internal/adapters/driven implement them.
package driven
