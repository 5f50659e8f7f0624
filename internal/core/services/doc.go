// Package services contains the core application logic: hybrid retrieval
// fusion, the read-only query guard, the tool-orchestration agent, the chat
// session manager and the ingestion pipeline. Services depend only on domain
// types and ports.
package services
