package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Postgres holds the connection pool behind the PostgreSQL repositories
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates and validates a connection pool
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Migrate applies the embedded schema files in name order
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := p.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		logrus.WithField("migration", name).Debug("Applied migration")
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable
func (p *Postgres) HealthCheck(ctx context.Context) error {
	var n int
	return p.pool.QueryRow(ctx, "SELECT 1").Scan(&n)
}

// Close releases the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// Repositories returns the repository set backed by this pool
func (p *Postgres) Repositories() *Repositories {
	return &Repositories{
		Users:    &pgUsers{pool: p.pool},
		Profiles: &pgProfiles{pool: p.pool},
		Samples:  &pgSamples{pool: p.pool},
		Alerts:   &pgAlerts{pool: p.pool},
	}
}

var (
	_ UserRepository    = (*pgUsers)(nil)
	_ ProfileRepository = (*pgProfiles)(nil)
	_ SampleRepository  = (*pgSamples)(nil)
	_ AlertRepository   = (*pgAlerts)(nil)
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Users

type pgUsers struct {
	pool *pgxpool.Pool
}

func (r *pgUsers) Create(ctx context.Context, user *models.User) error {
	ensureID(&user.ID)
	ensureTime(&user.CreatedAt)
	const q = `
INSERT INTO users (id, email, notification_address, created_at)
VALUES ($1, $2, $3, $4);`
	if _, err := r.pool.Exec(ctx, q, user.ID, user.Email, user.NotificationAddress, user.CreatedAt); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *pgUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	const q = `SELECT id, email, notification_address, created_at FROM users WHERE id = $1;`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.NotificationAddress, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Profiles

type pgProfiles struct {
	pool *pgxpool.Pool
}

const profileColumns = `id, user_id, handle, display_name, enabled, last_checked_at, created_at`

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.Handle, &p.DisplayName, &p.Enabled, &p.LastCheckedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pgProfiles) queryMany(ctx context.Context, q string, args ...any) ([]*models.Profile, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgProfiles) queryOne(ctx context.Context, q string, args ...any) (*models.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *pgProfiles) Create(ctx context.Context, profile *models.Profile) error {
	ensureID(&profile.ID)
	ensureTime(&profile.CreatedAt)
	const q = `
INSERT INTO profiles (id, user_id, handle, display_name, enabled, last_checked_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
	_, err := r.pool.Exec(ctx, q, profile.ID, profile.UserID, profile.Handle, profile.DisplayName,
		profile.Enabled, profile.LastCheckedAt, profile.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrProfileAlreadyExists
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (r *pgProfiles) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return r.queryOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1;`, id)
}

func (r *pgProfiles) GetByOwner(ctx context.Context, userID string) ([]*models.Profile, error) {
	return r.queryMany(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 ORDER BY handle;`, userID)
}

func (r *pgProfiles) GetByHandle(ctx context.Context, userID, handle string) (*models.Profile, error) {
	return r.queryOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 AND handle = $2;`, userID, handle)
}

func (r *pgProfiles) ListEnabled(ctx context.Context) ([]*models.Profile, error) {
	return r.queryMany(ctx, `SELECT `+profileColumns+` FROM profiles WHERE enabled ORDER BY handle;`)
}

func (r *pgProfiles) Update(ctx context.Context, profile *models.Profile) error {
	const q = `
UPDATE profiles SET handle = $2, display_name = $3, enabled = $4, last_checked_at = $5
 WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, profile.ID, profile.Handle, profile.DisplayName, profile.Enabled, profile.LastCheckedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrProfileAlreadyExists
		}
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

func (r *pgProfiles) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

func (r *pgProfiles) UpdateLastChecked(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET last_checked_at = $2 WHERE id = $1;`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("update last checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

// Samples

type pgSamples struct {
	pool *pgxpool.Pool
}

func (r *pgSamples) Create(ctx context.Context, sample *models.Sample) error {
	if sample.Count < 0 {
		return models.NewValidationError("count", "follower count cannot be negative")
	}
	ensureID(&sample.ID)
	ensureTime(&sample.RecordedAt)
	const q = `
INSERT INTO follower_samples (id, profile_id, count, recorded_at)
VALUES ($1, $2, $3, $4);`
	if _, err := r.pool.Exec(ctx, q, sample.ID, sample.ProfileID, sample.Count, sample.RecordedAt); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (r *pgSamples) GetLatest(ctx context.Context, profileID string) (*models.Sample, error) {
	const q = `
SELECT id, profile_id, count, recorded_at FROM follower_samples
 WHERE profile_id = $1
 ORDER BY recorded_at DESC
 LIMIT 1;`
	var s models.Sample
	err := r.pool.QueryRow(ctx, q, profileID).Scan(&s.ID, &s.ProfileID, &s.Count, &s.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest sample: %w", err)
	}
	return &s, nil
}

func (r *pgSamples) GetHistory(ctx context.Context, profileID string, days int) ([]*models.Sample, error) {
	const q = `
SELECT id, profile_id, count, recorded_at FROM follower_samples
 WHERE profile_id = $1 AND recorded_at >= now() - make_interval(days => $2::int)
 ORDER BY recorded_at DESC;`
	rows, err := r.pool.Query(ctx, q, profileID, days)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*models.Sample
	for rows.Next() {
		var s models.Sample
		if err := rows.Scan(&s.ID, &s.ProfileID, &s.Count, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *pgSamples) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM follower_samples WHERE recorded_at < $1;`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Alerts

type pgAlerts struct {
	pool *pgxpool.Pool
}

const alertColumns = `id, profile_id, threshold, enabled, triggered_at, created_at`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	if err := row.Scan(&a.ID, &a.ProfileID, &a.Threshold, &a.Enabled, &a.TriggeredAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *pgAlerts) queryMany(ctx context.Context, q string, args ...any) ([]*models.Alert, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgAlerts) Create(ctx context.Context, alert *models.Alert) error {
	ensureID(&alert.ID)
	ensureTime(&alert.CreatedAt)
	const q = `
INSERT INTO follower_alerts (id, profile_id, threshold, enabled, triggered_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`
	_, err := r.pool.Exec(ctx, q, alert.ID, alert.ProfileID, alert.Threshold, alert.Enabled, alert.TriggeredAt, alert.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return models.ErrProfileNotFound
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *pgAlerts) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM follower_alerts WHERE id = $1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAlertNotFound
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (r *pgAlerts) GetActive(ctx context.Context, profileID string) ([]*models.Alert, error) {
	return r.queryMany(ctx, `
SELECT `+alertColumns+` FROM follower_alerts
 WHERE profile_id = $1 AND enabled AND triggered_at IS NULL
 ORDER BY threshold;`, profileID)
}

func (r *pgAlerts) GetAll(ctx context.Context, profileID string) ([]*models.Alert, error) {
	return r.queryMany(ctx, `SELECT `+alertColumns+` FROM follower_alerts WHERE profile_id = $1 ORDER BY threshold;`, profileID)
}

func (r *pgAlerts) Update(ctx context.Context, alert *models.Alert) error {
	const q = `UPDATE follower_alerts SET threshold = $2, enabled = $3 WHERE id = $1 RETURNING triggered_at;`
	if err := r.pool.QueryRow(ctx, q, alert.ID, alert.Threshold, alert.Enabled).Scan(&alert.TriggeredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrAlertNotFound
		}
		return fmt.Errorf("update alert: %w", err)
	}
	return nil
}

func (r *pgAlerts) Rearm(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE follower_alerts SET triggered_at = NULL WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("rearm alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAlertNotFound
	}
	return nil
}

func (r *pgAlerts) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM follower_alerts WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAlertNotFound
	}
	return nil
}

// MarkTriggered is a conditioned update; only one concurrent caller sees a row affected
func (r *pgAlerts) MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE follower_alerts SET triggered_at = $2 WHERE id = $1 AND triggered_at IS NULL;`
	tag, err := r.pool.Exec(ctx, q, id, at.UTC())
	if err != nil {
		return false, fmt.Errorf("mark alert triggered: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "already triggered" from "no such alert"
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM follower_alerts WHERE id = $1);`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check alert: %w", err)
	}
	if !exists {
		return false, models.ErrAlertNotFound
	}
	return false, nil
}
