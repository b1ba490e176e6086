package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// ErrEventNotFound is returned when no event matches a lookup.
var ErrEventNotFound = errors.New("attendance event not found")

const eventColumns = `id, identity_code, display_name, event_type, punched_at, latitude, longitude,
	photo_ref, sync_state, synced_at, last_error, created_at`

// Store is the durable local log of attendance punches, backed by SQLite.
//
// The pool is limited to one connection, so every append and state
// transition runs in its own serialized transaction and readers always see
// committed snapshots. Event content columns are protected by a trigger;
// only sync_state, synced_at and last_error ever change.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the event log at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// WithClock overrides the time source used for created_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Append inserts a new PENDING event and returns its id.
func (s *Store) Append(ctx context.Context, event *domain.AttendanceEvent) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insert(ctx, tx, event)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}

	return id, nil
}

// AppendUnlessNear appends event unless an event for the same identity and
// type already exists within window of its timestamp. The lookup and the
// insert share one transaction. It returns the stored event and whether it
// was newly created.
func (s *Store) AppendUnlessNear(ctx context.Context, event *domain.AttendanceEvent, window time.Duration) (*domain.AttendanceEvent, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := findNear(ctx, tx, event.IdentityCode, event.Type, event.Timestamp, window, nil)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrEventNotFound) {
		return nil, false, err
	}

	if _, err := s.insert(ctx, tx, event); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit append: %w", err)
	}

	return event, true, nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, event *domain.AttendanceEvent) (int64, error) {
	if event.IdentityCode == "" {
		return 0, fmt.Errorf("append event: identity code is required")
	}
	if _, err := domain.ParseEventType(string(event.Type)); err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	event.SyncState = domain.SyncPending
	event.SyncedAt = nil
	event.LastError = ""
	event.CreatedAt = s.now().UTC()

	query := `
		INSERT INTO attendance_events
			(identity_code, display_name, event_type, punched_at, latitude, longitude, photo_ref, sync_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, query,
		event.IdentityCode,
		event.DisplayName,
		string(event.Type),
		event.Timestamp,
		nullFloat(event.Latitude),
		nullFloat(event.Longitude),
		nullString(event.PhotoRef),
		string(event.SyncState),
		event.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read event id: %w", err)
	}
	event.ID = id

	return id, nil
}

// Get returns the event with the given id.
func (s *Store) Get(ctx context.Context, id int64) (*domain.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM attendance_events WHERE id = ?`
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return event, nil
}

// ListPending returns all PENDING events in punch order.
func (s *Store) ListPending(ctx context.Context) ([]domain.AttendanceEvent, error) {
	return s.ListByState(ctx, domain.SyncPending, 0)
}

// ListByState returns events in the given state in punch order. limit <= 0 means no limit.
func (s *Store) ListByState(ctx context.Context, state domain.SyncState, limit int) ([]domain.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM attendance_events
		WHERE sync_state = ?
		ORDER BY punched_at ASC, id ASC`
	args := []any{string(state)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s events: %w", state, err)
	}
	defer func() { _ = rows.Close() }()

	var events []domain.AttendanceEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// MarkSynced transitions one event to SYNCED. An already synced event keeps its original synced_at.
func (s *Store) MarkSynced(ctx context.Context, id int64, syncedAt time.Time) error {
	return s.MarkSyncedBatch(ctx, []int64{id}, syncedAt)
}

// MarkSyncedBatch transitions all ids to SYNCED in one transaction.
// FAILED_PERMANENT events are left as they are.
func (s *Store) MarkSyncedBatch(ctx context.Context, ids []int64, syncedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark synced: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE attendance_events
		SET sync_state = 'SYNCED',
		    synced_at = COALESCE(synced_at, ?),
		    last_error = ''
		WHERE id = ? AND sync_state <> 'FAILED_PERMANENT'
	`

	at := syncedAt.UTC().UnixMilli()
	for _, id := range ids {
		result, err := tx.ExecContext(ctx, query, at, id)
		if err != nil {
			return fmt.Errorf("mark event %d synced: %w", id, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			continue
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM attendance_events WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mark event %d synced: %w", id, ErrEventNotFound)
		}
		if err != nil {
			return fmt.Errorf("mark event %d synced: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark synced: %w", err)
	}

	return nil
}

// MarkFailedPermanent moves a PENDING event to FAILED_PERMANENT with the rejection reason.
func (s *Store) MarkFailedPermanent(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE attendance_events
		SET sync_state = 'FAILED_PERMANENT',
		    last_error = ?
		WHERE id = ? AND sync_state = 'PENDING'
	`

	result, err := s.db.ExecContext(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("mark event %d failed: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("mark event %d failed: %w", id, ErrEventNotFound)
	}

	return nil
}

// RecordError stores the last sync error on PENDING events without changing their state.
func (s *Store) RecordError(ctx context.Context, ids []int64, reason string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `UPDATE attendance_events SET last_error = ?
		WHERE sync_state = 'PENDING' AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, reason)
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record sync error: %w", err)
	}
	return nil
}

// LastEventFor returns the most recent punch of an identity.
func (s *Store) LastEventFor(ctx context.Context, identityCode string) (*domain.AttendanceEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM attendance_events
		WHERE identity_code = ?
		ORDER BY punched_at DESC, id DESC
		LIMIT 1`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, identityCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last event for %s: %w", identityCode, err)
	}
	return event, nil
}

// FindNear returns the event closest to ts for the identity and type within
// window. A non-nil state restricts the search to that sync state.
func (s *Store) FindNear(ctx context.Context, identityCode string, eventType domain.EventType, ts int64, window time.Duration, state *domain.SyncState) (*domain.AttendanceEvent, error) {
	return findNear(ctx, s.db, identityCode, eventType, ts, window, state)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findNear(ctx context.Context, q querier, identityCode string, eventType domain.EventType, ts int64, window time.Duration, state *domain.SyncState) (*domain.AttendanceEvent, error) {
	w := window.Milliseconds()
	query := `SELECT ` + eventColumns + ` FROM attendance_events
		WHERE identity_code = ? AND event_type = ? AND punched_at BETWEEN ? AND ?`
	args := []any{identityCode, string(eventType), ts - w, ts + w}
	if state != nil {
		query += ` AND sync_state = ?`
		args = append(args, string(*state))
	}
	query += ` ORDER BY ABS(punched_at - ?) ASC, id ASC LIMIT 1`
	args = append(args, ts)

	event, err := scanEvent(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find near event: %w", err)
	}
	return event, nil
}

// CountByState returns the number of events in each sync state.
func (s *Store) CountByState(ctx context.Context) (map[domain.SyncState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sync_state, COUNT(*) FROM attendance_events GROUP BY sync_state`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[domain.SyncState]int{
		domain.SyncPending:         0,
		domain.SyncSynced:          0,
		domain.SyncFailedPermanent: 0,
	}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.SyncState(state)] = n
	}

	return counts, rows.Err()
}

// DeleteSyncedBefore is the retention policy: it drops SYNCED events punched before cutoff.
func (s *Store) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM attendance_events WHERE sync_state = 'SYNCED' AND punched_at < ?`
	result, err := s.db.ExecContext(ctx, query, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete synced events: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*domain.AttendanceEvent, error) {
	var (
		e         domain.AttendanceEvent
		eventType string
		state     string
		lat, lng  sql.NullFloat64
		photoRef  sql.NullString
		syncedAt  sql.NullInt64
		createdAt int64
	)

	err := row.Scan(
		&e.ID,
		&e.IdentityCode,
		&e.DisplayName,
		&eventType,
		&e.Timestamp,
		&lat,
		&lng,
		&photoRef,
		&state,
		&syncedAt,
		&e.LastError,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	e.Type = domain.EventType(eventType)
	e.SyncState = domain.SyncState(state)
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lat.Valid {
		e.Latitude = &lat.Float64
	}
	if lng.Valid {
		e.Longitude = &lng.Float64
	}
	if photoRef.Valid {
		e.PhotoRef = &photoRef.String
	}
	if syncedAt.Valid {
		t := time.UnixMilli(syncedAt.Int64).UTC()
		e.SyncedAt = &t
	}

	return &e, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
