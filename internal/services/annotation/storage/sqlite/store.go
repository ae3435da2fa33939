package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lectureStudio/lectureStudio-sub005/internal/platform/storage/sqlitemigrate"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/storage"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed recording persistence.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.RecordingStore = (*Store)(nil)

// Open opens a recording SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Migrations lists the schema migrations applied to the database.
func (s *Store) Migrations(ctx context.Context) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return sqlitemigrate.Applied(ctx, s.sqlDB)
}

// LoadPages returns the saved pages of a recording ordered by page index.
func (s *Store) LoadPages(ctx context.Context, recordingID string) ([]domain.Page, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	recordingID = strings.TrimSpace(recordingID)
	if recordingID == "" {
		return nil, fmt.Errorf("recording id is required")
	}

	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM recordings WHERE id = ?`, recordingID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recording %s: %w", recordingID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load recording: %w", err)
	}

	pages, err := s.loadPageRows(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if err := s.loadActions(ctx, recordingID, pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (s *Store) loadPageRows(ctx context.Context, recordingID string) ([]domain.Page, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT page_index, duration_ms
FROM recording_pages
WHERE recording_id = ?
ORDER BY page_index
`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		var (
			page       domain.Page
			durationMs int64
		)
		if err := rows.Scan(&page.Index, &durationMs); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		page.DurationMs = uint64(durationMs)
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func (s *Store) loadActions(ctx context.Context, recordingID string, pages []domain.Page) error {
	positions := make(map[int]int, len(pages))
	for i, page := range pages {
		positions[page.Index] = i
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT page_index, kind, timestamp_ms, tool, x, y, pressure
FROM page_actions
WHERE recording_id = ?
ORDER BY page_index, seq
`, recordingID)
	if err != nil {
		return fmt.Errorf("load actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pageIndex   int
			kind        string
			timestampMs int64
			action      domain.Action
		)
		if err := rows.Scan(&pageIndex, &kind, &timestampMs, &action.Tool, &action.Point.X, &action.Point.Y, &action.Point.Pressure); err != nil {
			return fmt.Errorf("scan action: %w", err)
		}
		action.Kind = domain.Kind(kind)
		if !action.Kind.Valid() {
			return fmt.Errorf("page %d: unknown action kind %q", pageIndex, kind)
		}
		action.TimestampMs = uint64(timestampMs)
		i, ok := positions[pageIndex]
		if !ok {
			return fmt.Errorf("action for unknown page %d", pageIndex)
		}
		pages[i].Actions = append(pages[i].Actions, action)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate actions: %w", err)
	}
	return nil
}

// SavePages replaces every saved page of the recording in one transaction.
func (s *Store) SavePages(ctx context.Context, recordingID string, pages []domain.Page) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	recordingID = strings.TrimSpace(recordingID)
	if recordingID == "" {
		return fmt.Errorf("recording id is required")
	}
	for _, page := range pages {
		if err := domain.ValidateOrder(page.Actions); err != nil {
			return fmt.Errorf("page %d: %w", page.Index, err)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	if err := savePages(ctx, tx, recordingID, pages, time.Now().UTC().UnixMilli()); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func savePages(ctx context.Context, tx *sql.Tx, recordingID string, pages []domain.Page, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO recordings (id, created_at, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
`, recordingID, nowMs, nowMs); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM page_actions WHERE recording_id = ?`, recordingID); err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recording_pages WHERE recording_id = ?`, recordingID); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx, `
INSERT INTO recording_pages (recording_id, page_index, duration_ms) VALUES (?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare page insert: %w", err)
	}
	defer pageStmt.Close()
	actionStmt, err := tx.PrepareContext(ctx, `
INSERT INTO page_actions (recording_id, page_index, seq, kind, timestamp_ms, tool, x, y, pressure)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare action insert: %w", err)
	}
	defer actionStmt.Close()

	for _, page := range pages {
		if _, err := pageStmt.ExecContext(ctx, recordingID, page.Index, int64(page.DurationMs)); err != nil {
			return fmt.Errorf("save page %d: %w", page.Index, err)
		}
		for seq, action := range page.Actions {
			if _, err := actionStmt.ExecContext(ctx,
				recordingID,
				page.Index,
				seq,
				string(action.Kind),
				int64(action.TimestampMs),
				action.Tool,
				action.Point.X,
				action.Point.Y,
				action.Point.Pressure,
			); err != nil {
				return fmt.Errorf("save page %d action %d: %w", page.Index, seq, err)
			}
		}
	}
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}
