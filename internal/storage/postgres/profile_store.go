// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	ProfilesTable   string
	CountsTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool used by the store.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ProfileStore persists profiles and follower counts in Postgres.
type ProfileStore struct {
	pool     Pool
	profiles string
	counts   string
}

// NewProfileStore connects to Postgres using cfg.
func NewProfileStore(ctx context.Context, cfg Config) (*ProfileStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewProfileStoreWithPool(pool, cfg.ProfilesTable, cfg.CountsTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewProfileStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProfileStoreWithPool(pool Pool, profilesTable, countsTable string) (*ProfileStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if profilesTable == "" {
		profilesTable = "profiles"
	}
	if countsTable == "" {
		countsTable = "follower_counts"
	}
	for _, table := range []string{profilesTable, countsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &ProfileStore{pool: pool, profiles: profilesTable, counts: countsTable}, nil
}

// Migrate creates the tables when they do not exist.
func (s *ProfileStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	profile_url TEXT NOT NULL UNIQUE,
	avatar_url TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %[2]s (
	id TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
	count BIGINT NOT NULL CHECK (count >= 0),
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[2]s_profile_recorded_idx ON %[2]s (profile_id, recorded_at DESC);`,
		s.profiles, s.counts)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ProfileStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// CreateProfile inserts a new profile row.
func (s *ProfileStore) CreateProfile(ctx context.Context, profile tracker.Profile) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, name, profile_url, avatar_url, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5)`, s.profiles)
	_, err := s.pool.Exec(ctx, query,
		profile.ID, profile.Name, profile.ProfileURL, profile.AvatarURL, profile.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("profile %s: %w", profile.ProfileURL, tracker.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfile fetches one profile.
func (s *ProfileStore) GetProfile(ctx context.Context, id string) (tracker.Profile, error) {
	query := fmt.Sprintf(`SELECT id, name, profile_url, COALESCE(avatar_url, ''), created_at
FROM %s WHERE id = $1`, s.profiles)
	var p tracker.Profile
	err := s.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.ProfileURL, &p.AvatarURL, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.Profile{}, fmt.Errorf("profile %s: %w", id, tracker.ErrNotFound)
	}
	if err != nil {
		return tracker.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns every profile joined with its latest count.
func (s *ProfileStore) ListProfiles(ctx context.Context) ([]tracker.ProfileSummary, error) {
	query := fmt.Sprintf(`SELECT p.id, p.name, p.profile_url, COALESCE(p.avatar_url, ''), p.created_at,
	COALESCE(fc.count, 0), COALESCE(fc.recorded_at, p.created_at)
FROM %s p
LEFT JOIN LATERAL (
	SELECT count, recorded_at FROM %s WHERE profile_id = p.id ORDER BY recorded_at DESC LIMIT 1
) fc ON true
ORDER BY p.created_at, p.id`, s.profiles, s.counts)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []tracker.ProfileSummary
	for rows.Next() {
		var sum tracker.ProfileSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.ProfileURL, &sum.AvatarURL, &sum.CreatedAt,
			&sum.FollowerCount, &sum.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// ListTargets returns every profile as a scrape target in creation order.
func (s *ProfileStore) ListTargets(ctx context.Context) ([]tracker.Target, error) {
	query := fmt.Sprintf(`SELECT id, name, profile_url FROM %s ORDER BY created_at, id`, s.profiles)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []tracker.Target
	for rows.Next() {
		var t tracker.Target
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.ProfileURL); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return out, nil
}

// UpdateAvatar sets the avatar URL of a profile.
func (s *ProfileStore) UpdateAvatar(ctx context.Context, id string, avatarURL string) error {
	query := fmt.Sprintf(`UPDATE %s SET avatar_url = $2 WHERE id = $1`, s.profiles)
	tag, err := s.pool.Exec(ctx, query, id, avatarURL)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", id, tracker.ErrNotFound)
	}
	return nil
}

// AppendFollowerCount inserts one observation.
func (s *ProfileStore) AppendFollowerCount(ctx context.Context, count tracker.FollowerCount) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, profile_id, count, recorded_at) VALUES ($1, $2, $3, $4)`, s.counts)
	if _, err := s.pool.Exec(ctx, query, count.ID, count.ProfileID, count.Count, count.RecordedAt); err != nil {
		return fmt.Errorf("insert follower count: %w", err)
	}
	return nil
}

// History returns up to limit observations for a profile, newest first. limit <= 0 returns all.
func (s *ProfileStore) History(ctx context.Context, profileID string, limit int) ([]tracker.FollowerCount, error) {
	query := fmt.Sprintf(`SELECT id, profile_id, count, recorded_at FROM %s
WHERE profile_id = $1 ORDER BY recorded_at DESC`, s.counts)
	args := []any{profileID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var out []tracker.FollowerCount
	for rows.Next() {
		var c tracker.FollowerCount
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.Count, &c.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan follower count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	if len(out) == 0 {
		if _, err := s.GetProfile(ctx, profileID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
