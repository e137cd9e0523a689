package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"EntryGate/internal/domain/models"
	"EntryGate/internal/domain/repository"
)

// ConditionVersionsSchema creates the version table. Versions are append-only.
var ConditionVersionsSchema = []string{
	`CREATE TABLE IF NOT EXISTS condition_versions (
		version   BIGSERIAL PRIMARY KEY,
		saved_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		document  JSONB NOT NULL
	)`,
}

// advisory lock id for condition writes ("EGCOND" in ASCII).
const conditionsLockID int64 = 0x4547434f4e44

// PostgresConditionStore keeps every version as a JSONB row.
type PostgresConditionStore struct {
	pool *pgxpool.Pool
}

func NewPostgresConditionStore(pool *pgxpool.Pool) *PostgresConditionStore {
	return &PostgresConditionStore{pool: pool}
}

func (s *PostgresConditionStore) Current(ctx context.Context) (*models.VersionedConditions, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT version, saved_at, document FROM condition_versions ORDER BY version DESC LIMIT 1`)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return emptyVersion(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current conditions: %w", err)
	}
	return v, nil
}

// Save inserts doc as the next version. Writers serialise on a transaction
// advisory lock; a writer that cannot take it gets ErrStoreBusy.
func (s *PostgresConditionStore) Save(ctx context.Context, doc *models.TradeConditions) (*models.VersionedConditions, error) {
	b, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, conditionsLockID).Scan(&locked); err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return nil, models.ErrStoreBusy
	}

	var (
		version int64
		savedAt time.Time
	)
	if err := tx.QueryRow(ctx,
		`INSERT INTO condition_versions (document) VALUES ($1::jsonb) RETURNING version, saved_at`,
		string(b),
	).Scan(&version, &savedAt); err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}
	return &models.VersionedConditions{Version: version, SavedAt: savedAt.UTC(), Document: doc.Clone()}, nil
}

func (s *PostgresConditionStore) Get(ctx context.Context, version int64) (*models.VersionedConditions, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT version, saved_at, document FROM condition_versions WHERE version = $1`, version)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrVersionNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("read version %d: %w", version, err)
	}
	return v, nil
}

func (s *PostgresConditionStore) History(ctx context.Context, limit int) ([]models.VersionMeta, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT version, saved_at, COALESCE(document->>'mode', ''), document = '{}'::jsonb
		FROM condition_versions ORDER BY version DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.VersionMeta
	for rows.Next() {
		var m models.VersionMeta
		if err := rows.Scan(&m.Version, &m.SavedAt, &m.Mode, &m.Empty); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		m.SavedAt = m.SavedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool belongs to the postgres client.
func (s *PostgresConditionStore) Close() error { return nil }

func scanVersion(row pgx.Row) (*models.VersionedConditions, error) {
	var (
		version int64
		savedAt time.Time
		doc     []byte
	)
	if err := row.Scan(&version, &savedAt, &doc); err != nil {
		return nil, err
	}
	return toVersioned(version, savedAt, doc)
}

var _ repository.ConditionStore = (*PostgresConditionStore)(nil)
