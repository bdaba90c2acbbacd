package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/oklog/ulid/v2"

	"skygent.dev/skygent/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS store_config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
	event_seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id     TEXT UNIQUE NOT NULL,
	event_type   TEXT NOT NULL,
	post_uri     TEXT NOT NULL,
	cid          TEXT NOT NULL,
	payload_json BLOB NOT NULL,
	event_time   TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS event_log_uri_seq ON event_log(post_uri, event_seq DESC);

CREATE TABLE IF NOT EXISTS uri_index (
	post_uri   TEXT PRIMARY KEY,
	latest_seq INTEGER NOT NULL,
	latest_cid TEXT,
	tombstoned INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_checkpoint (
	source TEXT PRIMARY KEY,
	cursor TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS view_checkpoint (
	source_store    TEXT PRIMARY KEY,
	last_source_seq INTEGER NOT NULL,
	filter_hash     TEXT NOT NULL,
	evaluation_mode TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS filter_library (
	name       TEXT PRIMARY KEY,
	dsl_source TEXT NOT NULL,
	signature  TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// EventKind tags an event_log row as an upsert or a tombstone delete.
type EventKind string

const (
	EventUpsert EventKind = "upsert"
	EventDelete EventKind = "delete"
)

// Event is one append-only event_log row (or, from GetByURI, the event_log
// row backing a URI's current uri_index entry).
type Event struct {
	Seq       int64
	EventID   ulid.ULID
	URI       string
	CID       string
	Kind      EventKind
	EventTime time.Time
	Payload   []byte
	CreatedAt time.Time
}

// Store is a single SQLite-backed event store rooted at one file. Callers
// must hold the store's file lock (see Lock) before constructing a writer
// Store, enforcing the single-writer discipline; multiple read-only Stores
// may be open concurrently.
type Store struct {
	db   *sql.DB
	path string
	gen  *ulidGenerator
}

// Open opens (creating if absent) the SQLite database at path and ensures
// its schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.NewStoreIoError(path, err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; SQLite serializes anyway

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errs.NewStoreIoError(path, err)
	}
	return &Store{db: db, path: path, gen: newULIDGenerator()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the store's database file path.
func (s *Store) Path() string { return s.path }

// Name returns the store's name, derived from its directory (see Dir),
// used to key a target store's view_checkpoint rows by source store (C9).
func (s *Store) Name() string { return filepath.Base(filepath.Dir(s.path)) }

// Dir returns the directory a store of the given name lives under, beneath root.
func Dir(root, name string) string { return filepath.Join(root, name) }

// FilePath returns the SQLite database file path for a store of the given
// name beneath root.
func FilePath(root, name string) string {
	return filepath.Join(Dir(root, name), "events.db")
}

// AppendUpsert appends a new upsert event for uri to the append-only
// event_log and projects it onto uri_index as the new latest state. A prior
// row for the same uri is never overwritten: the log retains full history.
func (s *Store) AppendUpsert(ctx context.Context, uri, cid string, eventTime time.Time, payload []byte) (int64, error) {
	return s.append(ctx, uri, cid, EventUpsert, eventTime, payload, false)
}

// AppendUpsertIfMissing appends an upsert only if uri_index has no entry for
// (uri, cid) yet (I3: an edit carrying a new cid is not "already present");
// otherwise it is a no-op and returns 0, which is never a real event_seq
// since AUTOINCREMENT numbering starts at 1.
func (s *Store) AppendUpsertIfMissing(ctx context.Context, uri, cid string, eventTime time.Time, payload []byte) (int64, error) {
	return s.append(ctx, uri, cid, EventUpsert, eventTime, payload, true)
}

// AppendDelete appends a tombstone for uri.
func (s *Store) AppendDelete(ctx context.Context, uri string, eventTime time.Time) (int64, error) {
	return s.append(ctx, uri, "", EventDelete, eventTime, nil, false)
}

func (s *Store) append(ctx context.Context, uri, cid string, kind EventKind, eventTime time.Time, payload []byte, ifMissing bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.NewStoreIoError(s.path, err)
	}
	defer tx.Rollback()

	if ifMissing {
		var existingCID sql.NullString
		row := tx.QueryRowContext(ctx, `SELECT latest_cid FROM uri_index WHERE post_uri = ?`, uri)
		switch scanErr := row.Scan(&existingCID); scanErr {
		case nil:
			if existingCID.Valid && existingCID.String == cid {
				return 0, nil // (uri, cid) already projected, no-op
			}
		case sql.ErrNoRows:
		default:
			return 0, errs.NewStoreIoError(s.path, scanErr)
		}
	}

	if payload == nil {
		payload = []byte{}
	}
	id := s.gen.Next(time.Now().UTC())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO event_log (event_id, event_type, post_uri, cid, payload_json, event_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), string(kind), uri, cid, payload, eventTime.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, errs.NewStoreIoError(s.path, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, errs.NewStoreIoError(s.path, err)
	}

	tombstoned := 0
	var latestCID any = cid
	if kind == EventDelete {
		tombstoned = 1
		latestCID = nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO uri_index (post_uri, latest_seq, latest_cid, tombstoned) VALUES (?, ?, ?, ?)
		 ON CONFLICT(post_uri) DO UPDATE SET
		   latest_seq = excluded.latest_seq, latest_cid = excluded.latest_cid, tombstoned = excluded.tombstoned`,
		uri, seq, latestCID, tombstoned,
	); err != nil {
		return 0, errs.NewStoreIoError(s.path, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewStoreIoError(s.path, err)
	}
	return seq, nil
}

// GetByURI returns the event_log row backing uri's current uri_index entry,
// or nil if uri has never been appended to this store.
func (s *Store) GetByURI(ctx context.Context, uri string) (*Event, error) {
	var latestSeq int64
	err := s.db.QueryRowContext(ctx, `SELECT latest_seq FROM uri_index WHERE post_uri = ?`, uri).Scan(&latestSeq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewStoreIoError(s.path, err)
	}
	return s.getBySeq(ctx, latestSeq)
}

func (s *Store) getBySeq(ctx context.Context, seq int64) (*Event, error) {
	var (
		eventID, kind, uri, cid, eventTimeStr, createdAtStr string
		payload                                              []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT event_id, event_type, post_uri, cid, payload_json, event_time, created_at
		 FROM event_log WHERE event_seq = ?`, seq,
	).Scan(&eventID, &kind, &uri, &cid, &payload, &eventTimeStr, &createdAtStr)
	if err != nil {
		return nil, errs.NewStoreIoError(s.path, err)
	}
	id, err := ulid.Parse(eventID)
	if err != nil {
		return nil, errs.NewStoreIoError(s.path, fmt.Errorf("corrupt event_id %q: %w", eventID, err))
	}
	eventTime, _ := time.Parse(time.RFC3339Nano, eventTimeStr)
	createdAt, _ := time.Parse(time.RFC3339Nano, createdAtStr)
	return &Event{
		Seq: seq, EventID: id, URI: uri, CID: cid, Kind: EventKind(kind),
		EventTime: eventTime, Payload: payload, CreatedAt: createdAt,
	}, nil
}

// IndexPresent reports whether uri has a live (non-tombstoned) entry in this
// store's uri_index, used by the derivation engine to decide whether a
// delete must be mirrored into a target store (C9).
func (s *Store) IndexPresent(ctx context.Context, uri string) (bool, error) {
	var tombstoned int
	err := s.db.QueryRowContext(ctx, `SELECT tombstoned FROM uri_index WHERE post_uri = ?`, uri).Scan(&tombstoned)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStoreIoError(s.path, err)
	}
	return tombstoned == 0, nil
}

// ScanResult is one page of event_log rows, with Truncated set when
// scanLimit cut the page short of the requested range rather than
// signaling an error.
type ScanResult struct {
	Events    []Event
	Truncated bool
}

// ScanSince returns events with event_seq > afterSeq in ascending order,
// capped at scanLimit rows.
func (s *Store) ScanSince(ctx context.Context, afterSeq int64, scanLimit int) (*ScanResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_seq, event_id, post_uri, cid, event_type, event_time, payload_json, created_at
		 FROM event_log WHERE event_seq > ? ORDER BY event_seq ASC LIMIT ?`,
		afterSeq, scanLimit+1,
	)
	if err != nil {
		return nil, errs.NewStoreIoError(s.path, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			seq                                             int64
			eventID, uri, cid, kind, eventTimeStr, createdAtStr string
			payload                                          []byte
		)
		if err := rows.Scan(&seq, &eventID, &uri, &cid, &kind, &eventTimeStr, &payload, &createdAtStr); err != nil {
			return nil, errs.NewStoreIoError(s.path, err)
		}
		id, err := ulid.Parse(eventID)
		if err != nil {
			return nil, errs.NewStoreIoError(s.path, fmt.Errorf("corrupt event_id %q: %w", eventID, err))
		}
		eventTime, _ := time.Parse(time.RFC3339Nano, eventTimeStr)
		createdAt, _ := time.Parse(time.RFC3339Nano, createdAtStr)
		events = append(events, Event{
			Seq: seq, EventID: id, URI: uri, CID: cid, Kind: EventKind(kind),
			EventTime: eventTime, Payload: payload, CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStoreIoError(s.path, err)
	}

	truncated := len(events) > scanLimit
	if truncated {
		events = events[:scanLimit]
	}
	return &ScanResult{Events: events, Truncated: truncated}, nil
}

// SetSyncCheckpoint records the pull/push cursor for a named source.
func (s *Store) SetSyncCheckpoint(ctx context.Context, source, cursor string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_checkpoint (source, cursor, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`,
		source, cursor, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errs.NewStoreIoError(s.path, err)
	}
	return nil
}

// GetSyncCheckpoint returns the stored cursor for source, or "" if none exists.
func (s *Store) GetSyncCheckpoint(ctx context.Context, source string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM sync_checkpoint WHERE source = ?`, source).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errs.NewStoreIoError(s.path, err)
	}
	return cursor, nil
}

// ViewCheckpoint is one target store's persisted replay state for a single
// source store, keyed by that source store's name so one target can track
// several distinct sources independently (C9).
type ViewCheckpoint struct {
	SourceStore    string
	LastSourceSeq  int64
	FilterHash     string
	EvaluationMode string
}

// SetViewCheckpoint records, in this (target) store, the replay position and
// filter identity last used to derive from sourceStore.
func (s *Store) SetViewCheckpoint(ctx context.Context, sourceStore string, lastSourceSeq int64, filterHash, evaluationMode string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO view_checkpoint (source_store, last_source_seq, filter_hash, evaluation_mode, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_store) DO UPDATE SET
		   last_source_seq = excluded.last_source_seq, filter_hash = excluded.filter_hash,
		   evaluation_mode = excluded.evaluation_mode, updated_at = excluded.updated_at`,
		sourceStore, lastSourceSeq, filterHash, evaluationMode, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errs.NewStoreIoError(s.path, err)
	}
	return nil
}

// GetViewCheckpoint returns the stored checkpoint for sourceStore, or nil if
// this target has never derived from it.
func (s *Store) GetViewCheckpoint(ctx context.Context, sourceStore string) (*ViewCheckpoint, error) {
	var cp ViewCheckpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT source_store, last_source_seq, filter_hash, evaluation_mode FROM view_checkpoint WHERE source_store = ?`, sourceStore,
	).Scan(&cp.SourceStore, &cp.LastSourceSeq, &cp.FilterHash, &cp.EvaluationMode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewStoreIoError(s.path, err)
	}
	return &cp, nil
}

// DeleteViewCheckpoint removes sourceStore's checkpoint row from this
// target, used when a derive run is reset from scratch.
func (s *Store) DeleteViewCheckpoint(ctx context.Context, sourceStore string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM view_checkpoint WHERE source_store = ?`, sourceStore)
	if err != nil {
		return errs.NewStoreIoError(s.path, err)
	}
	return nil
}

// ResetProjection clears this store's event_log and uri_index, used when a
// derive run is reset from scratch. It leaves sync_checkpoint, filter_library,
// and store_config untouched.
func (s *Store) ResetProjection(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewStoreIoError(s.path, err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_log`); err != nil {
		return errs.NewStoreIoError(s.path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM uri_index`); err != nil {
		return errs.NewStoreIoError(s.path, err)
	}
	if err := tx.Commit(); err != nil {
		return errs.NewStoreIoError(s.path, err)
	}
	return nil
}

// SetConfig persists a store_config key/value pair (store lifecycle metadata).
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO store_config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return errs.NewStoreIoError(s.path, err)
	}
	return nil
}

// GetConfig reads a store_config value, or "" with ok=false if unset.
func (s *Store) GetConfig(ctx context.Context, key string) (value string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM store_config WHERE key = ?`, key)
	if scanErr := row.Scan(&value); scanErr == sql.ErrNoRows {
		return "", false, nil
	} else if scanErr != nil {
		return "", false, errs.NewStoreIoError(s.path, scanErr)
	}
	return value, true, nil
}
