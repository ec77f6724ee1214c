// Package sessiondb maintains the local index of pipeline runs: one row
// per session, updated as each stage completes, backed by an embedded
// SQLite database with versioned migrations.
package sessiondb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the session index handle.
type DB struct {
	*sql.DB
}

// SessionRow is one indexed pipeline run. Stage columns are zero until
// the corresponding stage records its outcome.
type SessionRow struct {
	SessionID      string
	Root           string
	CreatedAtMS    int64
	Keyframes      int
	PoseCount      int
	GoodRatio      float64
	PointCount     int
	MeshGenerated  bool
	QualityProfile string
}

// Open opens (creating if needed) the session index at path and brings
// its schema up to date.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session index: %w", err)
	}
	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// migrateUp applies all pending embedded migrations.
func (db *DB) migrateUp() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Closing m would close the underlying connection; let it be
	// collected instead.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// RecordCapture registers a freshly captured session.
func (db *DB) RecordCapture(sessionID, root string, createdAtMS int64, keyframes int) error {
	_, err := db.Exec(`
		INSERT INTO sessions (session_id, root, created_at_ms, keyframes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			root = excluded.root,
			created_at_ms = excluded.created_at_ms,
			keyframes = excluded.keyframes
	`, sessionID, root, createdAtMS, keyframes)
	if err != nil {
		return fmt.Errorf("record capture for %s: %w", sessionID, err)
	}
	return nil
}

// RecordTracking stores the tracking stage outcome.
func (db *DB) RecordTracking(sessionID string, poseCount int, goodRatio float64) error {
	res, err := db.Exec(`
		UPDATE sessions SET pose_count = ?, good_ratio = ? WHERE session_id = ?
	`, poseCount, goodRatio, sessionID)
	if err != nil {
		return fmt.Errorf("record tracking for %s: %w", sessionID, err)
	}
	return requireRow(res, sessionID)
}

// RecordReconstruction stores the reconstruction stage outcome.
func (db *DB) RecordReconstruction(sessionID string, pointCount int, meshGenerated bool, quality string) error {
	res, err := db.Exec(`
		UPDATE sessions SET point_count = ?, mesh_generated = ?, quality_profile = ?
		WHERE session_id = ?
	`, pointCount, meshGenerated, quality, sessionID)
	if err != nil {
		return fmt.Errorf("record reconstruction for %s: %w", sessionID, err)
	}
	return requireRow(res, sessionID)
}

func requireRow(res sql.Result, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s is not indexed", sessionID)
	}
	return nil
}

// ListSessions returns every indexed run, newest first.
func (db *DB) ListSessions() ([]SessionRow, error) {
	rows, err := db.Query(`
		SELECT session_id, root, created_at_ms, keyframes,
		       pose_count, good_ratio, point_count, mesh_generated, quality_profile
		FROM sessions
		ORDER BY created_at_ms DESC, session_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.SessionID, &r.Root, &r.CreatedAtMS, &r.Keyframes,
			&r.PoseCount, &r.GoodRatio, &r.PointCount, &r.MeshGenerated, &r.QualityProfile); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSession returns one indexed run by id.
func (db *DB) GetSession(sessionID string) (SessionRow, error) {
	var r SessionRow
	err := db.QueryRow(`
		SELECT session_id, root, created_at_ms, keyframes,
		       pose_count, good_ratio, point_count, mesh_generated, quality_profile
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&r.SessionID, &r.Root, &r.CreatedAtMS, &r.Keyframes,
		&r.PoseCount, &r.GoodRatio, &r.PointCount, &r.MeshGenerated, &r.QualityProfile)
	if err != nil {
		return SessionRow{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return r, nil
}
