package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/anansi-ai/anansi/internal/types"
)

// SQLiteStore persists embeddings in a single SQLite file. Vectors are
// stored as little-endian float64 BLOBs; similarity is computed in Go after
// a full scan, which is fine at the corpus sizes a single-node deployment
// holds. WAL mode keeps concurrent readers from blocking the writer.
type SQLiteStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	metric    Metric
	dimension int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	chunk_id    TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	text        TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	dimension   INTEGER NOT NULL,
	norm        REAL NOT NULL,
	created_at  INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE INDEX IF NOT EXISTS idx_vectors_document ON vectors(document_id);
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) the database at path. An
// invalid metric falls back to cosine. Pass ":memory:" for an ephemeral
// store.
func NewSQLiteStore(path string, metric Metric) (*SQLiteStore, error) {
	if !metric.IsValid() {
		metric = MetricCosine
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to open sqlite database", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to initialize schema", err)
	}

	store := &SQLiteStore{db: db, metric: metric}

	// The metric is fixed at index creation. Scores written under one metric
	// are not comparable under another, so reopening with a different one is
	// a configuration error.
	var stored string
	err = db.QueryRow(`SELECT value FROM store_meta WHERE key = 'metric'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(`INSERT INTO store_meta (key, value) VALUES ('metric', ?)`, string(metric)); err != nil {
			db.Close()
			return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to record metric", err)
		}
	case err != nil:
		db.Close()
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to read store metadata", err)
	case Metric(stored) != metric:
		db.Close()
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("store at %s was created with metric %s, configured %s", path, stored, metric))
	}

	// Recover the dimension from existing rows so restarts keep enforcing
	// the original embedder's shape.
	var dim sql.NullInt64
	if err := db.QueryRow(`SELECT dimension FROM vectors LIMIT 1`).Scan(&dim); err == nil && dim.Valid {
		store.dimension = int(dim.Int64)
	}
	return store, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, record Record) error {
	return s.UpsertBatch(ctx, []Record{record})
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	established := s.dimension
	for _, rec := range records {
		if err := checkDimension(established, len(rec.Embedding)); err != nil {
			return err
		}
		if established == 0 {
			established = len(rec.Embedding)
		}
		if err := rec.ChunkID.Validate(); err != nil {
			return types.WrapError(types.VECTOR_STORE_FAILED, "invalid chunk ID", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapRetryableError(types.VECTOR_STORE_FAILED, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (chunk_id, document_id, text, embedding, dimension, norm, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			text = excluded.text,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			norm = excluded.norm
	`)
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to prepare upsert", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		norm := rec.Norm
		if norm == 0 {
			norm = Norm(rec.Embedding)
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := stmt.ExecContext(ctx,
			rec.ChunkID.String(), rec.DocumentID.String(), rec.Text,
			encodeVector(rec.Embedding), len(rec.Embedding), norm, createdAt.Unix())
		if err != nil {
			return types.WrapRetryableError(types.VECTOR_STORE_FAILED,
				fmt.Sprintf("failed to upsert vector for chunk %s", rec.ChunkID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return types.WrapRetryableError(types.VECTOR_STORE_FAILED, "failed to commit upsert", err)
	}
	s.dimension = established
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, query []float64, opts SearchOptions) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if opts.TopK <= 0 {
		return nil, nil
	}
	if err := checkDimension(s.dimension, len(query)); err != nil {
		return nil, err
	}

	sqlQuery := `SELECT chunk_id, document_id, text, embedding, norm, created_at FROM vectors`
	var args []any
	if len(opts.DocumentIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.DocumentIDs)), ",")
		sqlQuery += ` WHERE document_id IN (` + placeholders + `)`
		for _, id := range opts.DocumentIDs {
			args = append(args, id.String())
		}
	}
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, types.WrapRetryableError(types.VECTOR_SEARCH_FAILED, "failed to scan vectors", err)
	}
	defer rows.Close()

	queryNorm := Norm(query)
	var hits []Hit
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if len(rec.Embedding) != len(query) {
			continue
		}
		sc := score(s.metric, query, queryNorm, rec)
		if opts.MinScore != 0 && sc < opts.MinScore {
			continue
		}
		hits = append(hits, Hit{Record: rec, Score: sc})
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapRetryableError(types.VECTOR_SEARCH_FAILED, "row iteration failed", err)
	}

	sortHits(hits)
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

// scanRecord reads one row from a query selecting the full record column set.
func scanRecord(rows *sql.Rows) (Record, error) {
	var chunkID, documentID, text string
	var blob []byte
	var norm float64
	var createdAt int64
	if err := rows.Scan(&chunkID, &documentID, &text, &blob, &norm, &createdAt); err != nil {
		return Record{}, types.WrapError(types.VECTOR_SEARCH_FAILED, "failed to scan row", err)
	}
	return Record{
		ChunkID:    types.ID(chunkID),
		DocumentID: types.ID(documentID),
		Text:       text,
		Embedding:  decodeVector(blob),
		Norm:       norm,
		CreatedAt:  time.Unix(createdAt, 0),
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, chunkID types.ID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, text, embedding, norm, created_at
		 FROM vectors WHERE chunk_id = ?`, chunkID.String())
	if err != nil {
		return nil, types.WrapRetryableError(types.VECTOR_STORE_FAILED, "failed to fetch record", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, chunkIDs []types.ID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM vectors WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return types.WrapRetryableError(types.VECTOR_STORE_FAILED, "failed to delete vectors", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByDocument(ctx context.Context, documentID types.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM vectors WHERE document_id = ?`, documentID.String())
	if err != nil {
		return 0, types.WrapRetryableError(types.VECTOR_STORE_FAILED, "failed to delete document vectors", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Has(ctx context.Context, chunkID types.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM vectors WHERE chunk_id = ?`, chunkID.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, types.WrapRetryableError(types.VECTOR_STORE_FAILED, "existence check failed", err)
	}
	return true, nil
}

func (s *SQLiteStore) ChunkIDs(ctx context.Context) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM vectors ORDER BY chunk_id`)
	if err != nil {
		return nil, types.WrapRetryableError(types.VECTOR_STORE_FAILED, "failed to list chunk IDs", err)
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to scan chunk ID", err)
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, types.WrapRetryableError(types.VECTOR_STORE_FAILED, "count failed", err)
	}
	return n, nil
}

func (s *SQLiteStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *SQLiteStore) Health(ctx context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("sqlite ping failed: %v", err))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return types.Degraded(fmt.Sprintf("sqlite reachable but count failed: %v", err))
	}
	return types.Healthy(fmt.Sprintf("%d vectors, dimension %d", n, s.dimension))
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to close database", err)
	}
	return nil
}

// encodeVector packs float64s into a little-endian BLOB.
func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

// decodeVector unpacks a BLOB written by encodeVector.
func decodeVector(buf []byte) []float64 {
	v := make([]float64, len(buf)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return v
}
