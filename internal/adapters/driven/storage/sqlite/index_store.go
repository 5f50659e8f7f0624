package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
)

// Ensure IndexStore implements the interface.
var _ driven.IndexStore = (*IndexStore)(nil)

// IndexStore persists chunks, their vectors and their keyword postings in
// one SQLite database. Keyword relevance comes from FTS5 with porter
// stemming; vector search is an exhaustive cosine scan over the stored
// embeddings, which is plenty for a corpus this size.
type IndexStore struct {
	db   *sql.DB
	path string
}

// NewIndexStore opens (creating if needed) the index database under dataDir.
func NewIndexStore(dataDir string) (*IndexStore, error) {
	db, path, err := openDB(dataDir, "index.db", "index")
	if err != nil {
		return nil, err
	}
	return &IndexStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *IndexStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *IndexStore) Path() string {
	return s.path
}

// ReplaceDocument atomically replaces all chunks for a document.
// Chunks, vectors and postings always change together, in one transaction.
func (s *IndexStore) ReplaceDocument(ctx context.Context, documentName string, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_fts WHERE document_name = ?`, documentName); err != nil {
		return fmt.Errorf("clearing postings for %s: %w", documentName, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_name = ?`, documentName); err != nil {
		return fmt.Errorf("clearing chunks for %s: %w", documentName, err)
	}

	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata for %s: %w", chunk.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO document_chunks
				(chunk_id, document_name, category, section_header,
				 retrieval_text, generation_text, last_updated, word_count,
				 metadata, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, chunk.ID, chunk.DocumentName, chunk.Category, chunk.SectionHeader,
			chunk.RetrievalText, chunk.GenerationText, chunk.LastUpdated,
			chunk.WordCount, string(metadataJSON), float32SliceToBytes(chunk.Embedding))
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunk_fts (chunk_id, document_name, retrieval_text)
			VALUES (?, ?, ?)
		`, chunk.ID, chunk.DocumentName, chunk.RetrievalText)
		if err != nil {
			return fmt.Errorf("inserting posting %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", documentName, err)
	}
	return nil
}

// VectorSearch returns the top-k chunks by cosine similarity.
func (s *IndexStore) VectorSearch(
	ctx context.Context, embedding []float32, limit int, category string,
) ([]driven.SearchHit, error) {
	query := `SELECT chunk_id, embedding FROM document_chunks`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scanning embeddings: %w", err)
	}
	defer rows.Close()

	var hits []driven.SearchHit
	for rows.Next() {
		var chunkID string
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		hits = append(hits, driven.SearchHit{
			ChunkID: chunkID,
			Score:   cosineSimilarity(embedding, bytesToFloat32Slice(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// KeywordSearch returns the top-k chunks by FTS5 bm25 relevance.
// Scores are negated bm25 so that higher means more relevant, matching the
// vector list convention.
func (s *IndexStore) KeywordSearch(
	ctx context.Context, query string, limit int, category string,
) ([]driven.SearchHit, error) {
	match := ftsMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := `
		SELECT f.chunk_id, bm25(chunk_fts) AS rank
		FROM chunk_fts f
		JOIN document_chunks c ON c.chunk_id = f.chunk_id
		WHERE chunk_fts MATCH ?`
	args := []any{match}
	if category != "" {
		sqlQuery += ` AND c.category = ?`
		args = append(args, category)
	}
	sqlQuery += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []driven.SearchHit
	for rows.Next() {
		var hit driven.SearchHit
		var rank float64
		if err := rows.Scan(&hit.ChunkID, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		hit.Score = -rank // bm25 reports lower-is-better
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword hits: %w", err)
	}
	return hits, nil
}

// ftsMatchQuery quotes each query term so user punctuation can never be
// parsed as FTS5 syntax. Terms are implicitly AND-ed.
func ftsMatchQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, "")
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}

// GetChunk retrieves a chunk by id.
func (s *IndexStore) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, document_name, category, section_header,
		       retrieval_text, generation_text, last_updated, word_count,
		       metadata, embedding
		FROM document_chunks WHERE chunk_id = ?
	`, chunkID)

	var chunk domain.Chunk
	var sectionHeader, lastUpdated, metadataJSON sql.NullString
	var blob []byte
	err := row.Scan(&chunk.ID, &chunk.DocumentName, &chunk.Category, &sectionHeader,
		&chunk.RetrievalText, &chunk.GenerationText, &lastUpdated, &chunk.WordCount,
		&metadataJSON, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.SectionHeader = sectionHeader.String
	chunk.LastUpdated = lastUpdated.String
	chunk.Embedding = bytesToFloat32Slice(blob)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &chunk, nil
}

// Stats returns corpus counts.
func (s *IndexStore) Stats(ctx context.Context) (*driven.IndexStats, error) {
	stats := &driven.IndexStats{ByCategory: make(map[string]int)}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT document_name) FROM document_chunks`)
	if err := row.Scan(&stats.TotalChunks, &stats.TotalDocuments); err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM document_chunks GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("counting categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		stats.ByCategory[category] = count
	}
	return stats, rows.Err()
}
