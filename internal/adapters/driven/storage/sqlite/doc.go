// Package sqlite implements the driven storage ports on SQLite via the
// pure-Go modernc.org/sqlite driver.
//
// Three databases live under the data directory:
//
//   - index.db: chunk metadata, embeddings and FTS5 keyword postings
//   - structured.db: metric catalog and employee directory
//   - chat.db: chats and their append-only message logs
//
// Each store runs its own embedded migration set on open.
package sqlite
