package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kpopdemonz-relay/internal/models"
)

// ErrNotFound is returned when a durable row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps pgxpool for the durable user and transformation tables.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertUser records an email capture. First submission inserts the row;
// later ones bump last_seen and the transform count, and fill in a name
// if one was finally provided.
func (s *Store) UpsertUser(ctx context.Context, email, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (email, name, first_seen, last_seen, transform_count)
		VALUES ($1, $2, NOW(), NOW(), 1)
		ON CONFLICT (email) DO UPDATE
		SET last_seen = NOW(),
		    transform_count = users.transform_count + 1,
		    name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name)
	`, email, name)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ListUsers returns all captured users, most recently seen first.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT email, name, first_seen, last_seen, transform_count
		FROM users ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.Email, &u.Name, &u.FirstSeen, &u.LastSeen, &u.TransformCount); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// InsertTransformation records the durable copy of a completed job.
// Re-delivered webhooks overwrite the existing row.
func (s *Store) InsertTransformation(ctx context.Context, t models.Transformation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transformations (job_id, short_id, image_url, email, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET short_id = EXCLUDED.short_id,
		    image_url = EXCLUDED.image_url,
		    email = EXCLUDED.email
	`, t.JobID, t.ShortID, t.ImageURL, t.Email)
	if err != nil {
		return fmt.Errorf("insert transformation: %w", err)
	}
	return nil
}

// GetTransformationByShortID returns the durable record behind a short link.
func (s *Store) GetTransformationByShortID(ctx context.Context, shortID string) (models.Transformation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, short_id, image_url, email, created_at
		FROM transformations WHERE short_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, shortID)

	var t models.Transformation
	if err := row.Scan(&t.JobID, &t.ShortID, &t.ImageURL, &t.Email, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transformation{}, ErrNotFound
		}
		return models.Transformation{}, fmt.Errorf("scan transformation: %w", err)
	}
	return t, nil
}

// JobKey pairs the KV identifiers stored per transformation, so cleanup
// can enumerate KV entries via the relational job list.
type JobKey struct {
	JobID   string
	ShortID string
}

// ListJobKeys returns the job/short IDs of every recorded transformation.
func (s *Store) ListJobKeys(ctx context.Context) ([]JobKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT job_id, short_id FROM transformations`)
	if err != nil {
		return nil, fmt.Errorf("list job keys: %w", err)
	}
	defer rows.Close()

	var keys []JobKey
	for rows.Next() {
		var k JobKey
		if err := rows.Scan(&k.JobID, &k.ShortID); err != nil {
			return nil, fmt.Errorf("scan job key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TruncateAll deletes every transformation and user row, returning how
// many of each were removed. Not transactional across the two tables.
func (s *Store) TruncateAll(ctx context.Context) (transformations, users int64, err error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transformations`)
	if err != nil {
		return 0, 0, fmt.Errorf("delete transformations: %w", err)
	}
	transformations = tag.RowsAffected()

	tag, err = s.pool.Exec(ctx, `DELETE FROM users`)
	if err != nil {
		return transformations, 0, fmt.Errorf("delete users: %w", err)
	}
	users = tag.RowsAffected()
	return transformations, users, nil
}
