package buckets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a bucket does not exist
var ErrNotFound = errors.New("bucket not found")

// Store handles bucket metadata persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a bucket store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a bucket row
func (s *Store) Create(ctx context.Context, bucket *Bucket) error {
	query := `
		INSERT INTO buckets (id, name, description, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $4, $5)
	`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		bucket.ID, bucket.Name, bucket.Description, now, bucket.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	bucket.CreatedAt = now
	bucket.UpdatedAt = now
	return nil
}

// GetByID retrieves one bucket
func (s *Store) GetByID(ctx context.Context, id string) (*Bucket, error) {
	query := `
		SELECT id, name, description, created_at, updated_at, created_by
		FROM buckets
		WHERE id = $1
	`

	bucket, err := scanBucket(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bucket %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return bucket, nil
}

// List returns all buckets, newest first
func (s *Store) List(ctx context.Context) ([]*Bucket, error) {
	query := `
		SELECT id, name, description, created_at, updated_at, created_by
		FROM buckets
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	defer rows.Close()

	return collectBuckets(rows)
}

// ListByIDs returns the buckets with the given ids, newest first
func (s *Store) ListByIDs(ctx context.Context, ids []string) ([]*Bucket, error) {
	if len(ids) == 0 {
		return []*Bucket{}, nil
	}

	query := `
		SELECT id, name, description, created_at, updated_at, created_by
		FROM buckets
		WHERE id = ANY($1)
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	defer rows.Close()

	return collectBuckets(rows)
}

// Delete removes a bucket row
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM buckets WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted bucket: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bucket %s: %w", id, ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBucket(row rowScanner) (*Bucket, error) {
	var bucket Bucket
	var description sql.NullString
	var createdBy sql.NullInt64

	err := row.Scan(
		&bucket.ID,
		&bucket.Name,
		&description,
		&bucket.CreatedAt,
		&bucket.UpdatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	bucket.Description = description.String
	if createdBy.Valid {
		id := createdBy.Int64
		bucket.CreatedBy = &id
	}

	return &bucket, nil
}

func collectBuckets(rows *sql.Rows) ([]*Bucket, error) {
	buckets := make([]*Bucket, 0)
	for rows.Next() {
		bucket, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}
