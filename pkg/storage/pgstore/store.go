// Package pgstore is the optional durable storage backend for the
// governance runtime: sessions, grants, executions, and trace events mirror
// into PostgreSQL tables so a restart doesn't lose the audit trail the
// in-memory hot path (pkg/session, pkg/executor, pkg/bus) can't retain on
// its own. Grounded on a pkg/database/client.go-style shape: pgx registered
// through the database/sql "pgx" stdlib driver (no ORM — the ORM
// entgo.io/ent requires code generation this exercise cannot run), schema
// migrations applied from hand-written SQL via golang-migrate with
// go:embed, exactly as client.go's runMigrations does.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codeready-toolchain/governor/pkg/bus"
	"github.com/codeready-toolchain/governor/pkg/model"
	"github.com/codeready-toolchain/governor/pkg/session"
	"github.com/codeready-toolchain/governor/pkg/storage"
)

//go:embed migrations
var migrationsFS embed.FS

// Store is the pgx-backed storage.Store implementation.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to Postgres per cfg, applies pending migrations, and
// returns a ready Store. The caller owns the returned Store and must call
// Close when done.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutEvent appends ev to the trace_events table. Events are append-only;
// there is no upsert here because no event is ever mutated after emit
// (spec §4.1).
func (s *Store) PutEvent(ev bus.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("pgstore: marshal event payload: %w", err)
	}
	artifacts, err := json.Marshal(ev.Artifacts)
	if err != nil {
		return fmt.Errorf("pgstore: marshal event artifacts: %w", err)
	}
	var atlasID, atlasVersion *string
	if ev.Atlas != nil {
		atlasID, atlasVersion = &ev.Atlas.ID, &ev.Atlas.Version
	}

	_, err = s.db.Exec(
		`INSERT INTO trace_events
		 (trace_id, span_id, parent_span_id, event_type, occurred_at, session_id,
		  atlas_id, atlas_version, actor_type, actor_id, severity, payload, artifacts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		ev.Trace.TraceID, ev.Trace.SpanID, ev.Trace.ParentSpanID, ev.EventType, ev.Time, ev.SessionID,
		atlasID, atlasVersion, ev.Actor.Type, ev.Actor.ID, ev.Severity, payload, artifacts,
	)
	if err != nil {
		return fmt.Errorf("pgstore: insert trace event: %w", err)
	}
	return nil
}

// PutSession upserts a session lifecycle snapshot keyed by session_id.
func (s *Store) PutSession(sess *session.Session) error {
	scopes, err := json.Marshal(sess.Scopes)
	if err != nil {
		return fmt.Errorf("pgstore: marshal scopes: %w", err)
	}
	counters, err := json.Marshal(sess.Counters)
	if err != nil {
		return fmt.Errorf("pgstore: marshal counters: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions
		 (session_id, trace_id, principal_type, principal_id, principal_org, scopes,
		  state, created_at, expires_at, ended_at, counters)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (session_id) DO UPDATE SET
		   state = EXCLUDED.state,
		   ended_at = EXCLUDED.ended_at,
		   counters = EXCLUDED.counters`,
		sess.SessionID, sess.TraceID, sess.Principal.Type, sess.Principal.ID, sess.Principal.Org, scopes,
		sess.State, sess.CreatedAt, sess.ExpiresAt, sess.EndedAt, counters,
	)
	if err != nil {
		return fmt.Errorf("pgstore: upsert session: %w", err)
	}
	return nil
}

// PutGrant upserts a grant record keyed by grant_id.
func (s *Store) PutGrant(g model.Grant) error {
	schema, err := json.Marshal(g.Schema)
	if err != nil {
		return fmt.Errorf("pgstore: marshal grant schema: %w", err)
	}
	constraints, err := json.Marshal(g.Constraints)
	if err != nil {
		return fmt.Errorf("pgstore: marshal grant constraints: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO grants
		 (grant_id, resolution_id, action_id, kind, adapter, schema, constraints,
		  requires_approval, approved, approved_by, approved_at, timeout_ms, expires_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		 ON CONFLICT (grant_id) DO UPDATE SET
		   approved = EXCLUDED.approved,
		   approved_by = EXCLUDED.approved_by,
		   approved_at = EXCLUDED.approved_at`,
		g.GrantID, g.ResolutionID, g.ActionID, g.Kind, g.Adapter, schema, constraints,
		g.RequiresApproval, g.Approved, g.ApprovedBy, g.ApprovedAt, g.TimeoutMS, g.ExpiresAt, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pgstore: upsert grant: %w", err)
	}
	return nil
}

// PutExecution upserts an execution record keyed by execution_id.
func (s *Store) PutExecution(e model.Execution) error {
	parameters, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("pgstore: marshal execution parameters: %w", err)
	}
	var result []byte
	if e.Result != nil {
		if result, err = json.Marshal(e.Result); err != nil {
			return fmt.Errorf("pgstore: marshal execution result: %w", err)
		}
	}
	var errorType, errorMessage *string
	if e.Error != nil {
		errorType, errorMessage = &e.Error.ErrorType, &e.Error.Message
	}

	_, err = s.db.Exec(
		`INSERT INTO executions
		 (execution_id, grant_id, session_id, action_id, parameters, parameters_hash, state,
		  result, result_hash, error_type, error_message, started_at, completed_at, duration_ms,
		  trace_id, span_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 ON CONFLICT (execution_id) DO UPDATE SET
		   state = EXCLUDED.state,
		   result = EXCLUDED.result,
		   result_hash = EXCLUDED.result_hash,
		   error_type = EXCLUDED.error_type,
		   error_message = EXCLUDED.error_message,
		   completed_at = EXCLUDED.completed_at,
		   duration_ms = EXCLUDED.duration_ms`,
		e.ExecutionID, e.GrantID, e.SessionID, e.ActionID, parameters, e.ParametersHash, e.State,
		result, nullIfEmpty(e.ResultHash), errorType, errorMessage, e.StartedAt, e.CompletedAt, e.DurationMS,
		e.TraceID, e.SpanID,
	)
	if err != nil {
		return fmt.Errorf("pgstore: upsert execution: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// runMigrations applies every pending embedded migration: a postgres driver
// instance wrapping the already-open *sql.DB, with an iofs source built from
// the embedded migration FS. There is no ORM driver sharing this connection,
// so the migration source is closed without any shared-DB special-casing.
func runMigrations(db *sql.DB, databaseName string) error {
	if _, err := fs.ReadDir(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("no embedded migration files found: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return sourceDriver.Close()
}
