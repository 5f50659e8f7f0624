// Package domain defines the core business entities for Atlas.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Chunk: A bounded unit of document text used for retrieval and grounding
//   - Chat / Message: The append-only conversation log
//   - KPIRecord / DirectoryRecord: Structured reference data
//   - RetrievalResult: A scored chunk returned by hybrid search
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
