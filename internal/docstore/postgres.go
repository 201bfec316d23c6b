package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pgGetQuery       = `SELECT id, body FROM documents WHERE collection=$1 AND id=$2`
	pgInsertQuery    = `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)`
	pgUpsertQuery    = `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3) ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`
	pgLockQuery      = `SELECT id, body FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`
	pgUpdateQuery    = `UPDATE documents SET body=$3, updated_at=NOW() WHERE collection=$1 AND id=$2`
	pgDeleteQuery    = `DELETE FROM documents WHERE collection=$1 AND id=$2`
	pgFindEqualQuery = `SELECT id, body FROM documents WHERE collection=$1 AND body @> jsonb_build_object($2::text, $3::text) ORDER BY id ASC`
	pgFindArrayQuery = `SELECT id, body FROM documents WHERE collection=$1 AND body @> jsonb_build_object($2::text, jsonb_build_array($3::text)) ORDER BY id ASC`

	pgUniqueViolation = "23505"
)

type documentRow struct {
	ID   string `db:"id"`
	Body []byte `db:"body"`
}

// PostgresStore keeps every collection in the single JSONB documents table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get fetches a document by id.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var row documentRow
	if err := s.db.GetContext(ctx, &row, pgGetQuery, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, unavailable("postgres get", err)
	}
	return Document{ID: row.ID, Data: row.Body}, nil
}

// Create inserts data under a new UUID.
func (s *PostgresStore) Create(ctx context.Context, collection string, data any) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode %s document: %w", collection, err)
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, pgInsertQuery, collection, id, body); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return "", fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
		}
		return "", unavailable("postgres create", err)
	}
	return id, nil
}

// Set creates or replaces a document.
func (s *PostgresStore) Set(ctx context.Context, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := s.db.ExecContext(ctx, pgUpsertQuery, collection, id, body); err != nil {
		return unavailable("postgres set", err)
	}
	return nil
}

// Update locks the row, applies fn and writes the result in the same transaction.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("postgres begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row documentRow
	if err := tx.GetContext(ctx, &row, pgLockQuery, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return unavailable("postgres lock", err)
	}

	doc := Document{ID: row.ID, Data: row.Body}
	if err := fn(&doc); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, pgUpdateQuery, collection, id, []byte(doc.Data)); err != nil {
		return unavailable("postgres update", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("postgres commit", err)
	}
	return nil
}

// Delete removes a document; absent documents are ignored.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, pgDeleteQuery, collection, id); err != nil {
		return unavailable("postgres delete", err)
	}
	return nil
}

// Find runs a top-level containment (@>) predicate, which the GIN index on body serves.
func (s *PostgresStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := checkQuery(q); err != nil {
		return nil, err
	}
	query := pgFindEqualQuery
	if q.Op == OpArrayContains {
		query = pgFindArrayQuery
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, collection, q.Field, q.Value); err != nil {
		return nil, unavailable("postgres find", err)
	}
	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, Document{ID: r.ID, Data: r.Body})
	}
	return docs, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
