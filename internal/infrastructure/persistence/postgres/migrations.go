package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SQL
// Schema notes:
//   - usage_quotas and daily_stats are per-(user, day) counter rows; the
//     repositories lock them FOR UPDATE inside a transaction.
//   - step_progress and roadmap_progress carry a version column for
//     optimistic concurrency.
//   - activity_log is append-only.
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS usage_quotas (
    user_id       UUID        NOT NULL,
    usage_date    DATE        NOT NULL,
    message_count INTEGER     NOT NULL DEFAULT 0 CHECK (message_count >= 0),
    token_count   INTEGER     NOT NULL DEFAULT 0 CHECK (token_count >= 0),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),

    PRIMARY KEY (user_id, usage_date)
);

CREATE INDEX IF NOT EXISTS idx_usage_quotas_date ON usage_quotas(usage_date);
`

const migration001Down = `
DROP TABLE IF EXISTS usage_quotas;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS roadmap_progress (
    user_id               UUID         NOT NULL,
    roadmap_id            VARCHAR(100) NOT NULL,
    status                VARCHAR(20)  NOT NULL DEFAULT 'not_started',
    percentage            NUMERIC(5,2) NOT NULL DEFAULT 0 CHECK (percentage >= 0 AND percentage <= 100),
    studied_hours         NUMERIC(8,2) NOT NULL DEFAULT 0 CHECK (studied_hours >= 0),
    total_estimated_hours NUMERIC(8,2) NOT NULL DEFAULT 0,
    daily_goal_hours      NUMERIC(5,2) NOT NULL DEFAULT 1,
    started_at            TIMESTAMPTZ,
    completed_at          TIMESTAMPTZ,
    estimated_completion  TIMESTAMPTZ,
    version               BIGINT       NOT NULL DEFAULT 1,
    created_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),

    PRIMARY KEY (user_id, roadmap_id)
);

CREATE TABLE IF NOT EXISTS step_progress (
    user_id      UUID         NOT NULL,
    roadmap_id   VARCHAR(100) NOT NULL,
    step_id      VARCHAR(100) NOT NULL,
    status       VARCHAR(20)  NOT NULL DEFAULT 'not_started',
    percentage   NUMERIC(5,2) NOT NULL DEFAULT 0 CHECK (percentage >= 0 AND percentage <= 100),
    study_hours  NUMERIC(8,2) NOT NULL DEFAULT 0 CHECK (study_hours >= 0),
    notes        TEXT         NOT NULL DEFAULT '',
    completed_projects TEXT[] NOT NULL DEFAULT '{}',
    started_at   TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    version      BIGINT       NOT NULL DEFAULT 1,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),

    PRIMARY KEY (user_id, roadmap_id, step_id),
    FOREIGN KEY (user_id, roadmap_id)
        REFERENCES roadmap_progress(user_id, roadmap_id)
        ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_step_progress_status ON step_progress(user_id, roadmap_id, status);
`

const migration002Down = `
DROP TABLE IF EXISTS step_progress;
DROP TABLE IF EXISTS roadmap_progress;
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS daily_stats (
    user_id         UUID        NOT NULL,
    stat_date       DATE        NOT NULL,
    study_minutes   INTEGER     NOT NULL DEFAULT 0 CHECK (study_minutes >= 0),
    completed_steps INTEGER     NOT NULL DEFAULT 0 CHECK (completed_steps >= 0),
    ai_questions    INTEGER     NOT NULL DEFAULT 0 CHECK (ai_questions >= 0),
    searches        INTEGER     NOT NULL DEFAULT 0 CHECK (searches >= 0),
    streak_day      INTEGER     NOT NULL DEFAULT 0 CHECK (streak_day >= 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),

    PRIMARY KEY (user_id, stat_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_stats(stat_date);
CREATE INDEX IF NOT EXISTS idx_daily_stats_streak ON daily_stats(stat_date, streak_day) WHERE streak_day > 0;
`

const migration003Down = `
DROP TABLE IF EXISTS daily_stats;
`

const migration004Up = `
CREATE TABLE IF NOT EXISTS activity_log (
    id               BIGSERIAL    PRIMARY KEY,
    user_id          UUID         NOT NULL,
    activity_type    VARCHAR(30)  NOT NULL,
    target_id        VARCHAR(100) NOT NULL DEFAULT '',
    target_type      VARCHAR(30)  NOT NULL DEFAULT '',
    roadmap_id       VARCHAR(100) NOT NULL DEFAULT '',
    duration_minutes INTEGER      NOT NULL DEFAULT 0,
    token_count      INTEGER      NOT NULL DEFAULT 0,
    metadata         JSONB        NOT NULL DEFAULT '{}',
    occurred_at      TIMESTAMPTZ  NOT NULL,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activity_log_user ON activity_log(user_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_activity_log_type ON activity_log(activity_type, occurred_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS activity_log;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is a single versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

func allMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_usage_quotas", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_progress", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_daily_stats", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_activity_log", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// Migrator applies the embedded migrations in order, tracking applied
// versions in a schema_migrations table. Each migration runs in its own
// transaction together with its tracking row.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migration set.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: allMigrations()}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for version %d", ErrMigrationFailed, mig.Version)
		}

		mig := mig
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration, if any.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil || target.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for version %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, last)
		return err
	})
}

// Status returns the embedded migrations annotated with applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}
