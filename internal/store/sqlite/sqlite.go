package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quangtran/chatchit-server/internal/store"
)

// Schema creates the persisted state layout. The messages table is ordered by
// the (room_id, created_at) compound index; seq (the autoincrement rowid)
// breaks created_at ties in insertion order. Both messages and read_states
// serve point lookups and range scans only, never joins.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	is_private BOOLEAN NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	role      TEXT NOT NULL DEFAULT 'member',
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	room_id        TEXT NOT NULL,
	author_id      TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	text           TEXT NOT NULL DEFAULT '',
	attachment     TEXT,
	attachments    TEXT,
	correlation_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_messages_room_created
	ON messages(room_id, created_at DESC, seq DESC);

CREATE TABLE IF NOT EXISTS read_states (
	user_id      TEXT NOT NULL,
	room_id      TEXT NOT NULL,
	last_read_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, room_id)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function before
// applying the schema. Useful for tests to seed fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MessageStore implementation ====

// InsertMessage appends a message to the log.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	var attachment sql.NullString
	if msg.Attachment != nil {
		data, err := json.Marshal(msg.Attachment)
		if err != nil {
			return fmt.Errorf("marshal attachment: %w", err)
		}
		attachment = sql.NullString{String: string(data), Valid: true}
	}

	var attachments sql.NullString
	if len(msg.Attachments) > 0 {
		data, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("marshal attachments: %w", err)
		}
		attachments = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO messages (id, room_id, author_id, created_at, text, attachment, attachments, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.RoomID,
		msg.AuthorID,
		msg.CreatedAt.Millis(),
		msg.Text,
		attachment,
		attachments,
		msg.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

// PageMessages retrieves messages from a room with pagination. The scan runs
// descending over the compound index and the result is reversed to ascending.
func (s *SQLiteStore) PageMessages(ctx context.Context, roomID string, before *store.Timestamp, limit int) ([]store.Message, error) {
	var query string
	var args []interface{}

	if before != nil {
		query = `
			SELECT id, room_id, author_id, created_at, text, attachment, attachments, correlation_id
			FROM messages
			WHERE room_id = ? AND created_at < ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		`
		args = []interface{}{roomID, before.Millis(), limit}
	} else {
		query = `
			SELECT id, room_id, author_id, created_at, text, attachment, attachments, correlation_id
			FROM messages
			WHERE room_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		`
		args = []interface{}{roomID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}

func scanMessage(rows *sql.Rows) (store.Message, error) {
	var msg store.Message
	var createdAt int64
	var attachment, attachments sql.NullString

	if err := rows.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.AuthorID,
		&createdAt,
		&msg.Text,
		&attachment,
		&attachments,
		&msg.CorrelationID,
	); err != nil {
		return msg, fmt.Errorf("scan message: %w", err)
	}

	msg.CreatedAt = store.Timestamp(createdAt)
	if attachment.Valid {
		var a store.Attachment
		if err := json.Unmarshal([]byte(attachment.String), &a); err != nil {
			return msg, fmt.Errorf("unmarshal attachment: %w", err)
		}
		msg.Attachment = &a
	}
	if attachments.Valid {
		if err := json.Unmarshal([]byte(attachments.String), &msg.Attachments); err != nil {
			return msg, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}

	return msg, nil
}

// CountUnread counts foreign messages in a room after the given bound.
func (s *SQLiteStore) CountUnread(ctx context.Context, roomID, userID string, after *store.Timestamp) (int, error) {
	var query string
	var args []interface{}

	if after != nil {
		query = `
			SELECT COUNT(*) FROM messages
			WHERE room_id = ? AND author_id != ? AND created_at > ?
		`
		args = []interface{}{roomID, userID, after.Millis()}
	} else {
		query = `
			SELECT COUNT(*) FROM messages
			WHERE room_id = ? AND author_id != ?
		`
		args = []interface{}{roomID, userID}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	return count, nil
}

// ==== ReadStateStore implementation ====

// UpsertReadState raises last_read_at monotonically. The MAX in the conflict
// clause makes a stale client re-marking an old read a no-op even with
// concurrent writers.
func (s *SQLiteStore) UpsertReadState(ctx context.Context, userID, roomID string, at store.Timestamp) (store.Timestamp, error) {
	query := `
		INSERT INTO read_states (user_id, room_id, last_read_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, room_id)
		DO UPDATE SET last_read_at = MAX(last_read_at, excluded.last_read_at)
	`
	if _, err := s.db.ExecContext(ctx, query, userID, roomID, at.Millis()); err != nil {
		return 0, fmt.Errorf("upsert read state: %w", err)
	}

	var effective int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_read_at FROM read_states WHERE user_id = ? AND room_id = ?`,
		userID, roomID,
	).Scan(&effective)
	if err != nil {
		return 0, fmt.Errorf("query read state: %w", err)
	}

	return store.Timestamp(effective), nil
}

// GetReadState returns the stored position, or nil for a never-read room.
func (s *SQLiteStore) GetReadState(ctx context.Context, userID, roomID string) (*store.Timestamp, error) {
	var lastRead int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_read_at FROM read_states WHERE user_id = ? AND room_id = ?`,
		userID, roomID,
	).Scan(&lastRead)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query read state: %w", err)
	}

	ts := store.Timestamp(lastRead)
	return &ts, nil
}

// ListRoomReadStates returns every recorded read state in a room.
func (s *SQLiteStore) ListRoomReadStates(ctx context.Context, roomID string) ([]store.ReadState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, room_id, last_read_at FROM read_states WHERE room_id = ? ORDER BY last_read_at DESC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query room read states: %w", err)
	}
	defer rows.Close()

	var states []store.ReadState
	for rows.Next() {
		var state store.ReadState
		var lastRead int64
		if err := rows.Scan(&state.UserID, &state.RoomID, &lastRead); err != nil {
			return nil, fmt.Errorf("scan read state: %w", err)
		}
		state.LastReadAt = store.Timestamp(lastRead)
		states = append(states, state)
	}

	return states, rows.Err()
}

// ListUserReadStates returns roomID -> lastReadAt for one user.
func (s *SQLiteStore) ListUserReadStates(ctx context.Context, userID string) (map[string]store.Timestamp, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, last_read_at FROM read_states WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query user read states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]store.Timestamp)
	for rows.Next() {
		var roomID string
		var lastRead int64
		if err := rows.Scan(&roomID, &lastRead); err != nil {
			return nil, fmt.Errorf("scan read state: %w", err)
		}
		states[roomID] = store.Timestamp(lastRead)
	}

	return states, rows.Err()
}

// ==== RoomStore implementation ====

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	var room store.Room
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_private, created_at FROM rooms WHERE id = ?`,
		id,
	).Scan(&room.ID, &room.Name, &room.IsPrivate, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", id, store.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	room.CreatedAt = store.Timestamp(createdAt)
	return &room, nil
}

// ListRooms lists all rooms, newest first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]store.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_private, created_at FROM rooms ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []store.Room
	for rows.Next() {
		var room store.Room
		var createdAt int64
		if err := rows.Scan(&room.ID, &room.Name, &room.IsPrivate, &createdAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.CreatedAt = store.Timestamp(createdAt)
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// CountMembers returns the membership size of a room.
func (s *SQLiteStore) CountMembers(ctx context.Context, roomID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_members WHERE room_id = ?`,
		roomID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}

	return count, nil
}

// CreateRoom creates a new room with a generated ID.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, isPrivate bool) (*store.Room, error) {
	room := store.Room{
		ID:        uuid.NewString(),
		Name:      name,
		IsPrivate: isPrivate,
		CreatedAt: store.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, is_private, created_at) VALUES (?, ?, ?, ?)`,
		room.ID, room.Name, room.IsPrivate, room.CreatedAt.Millis(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	return &room, nil
}

// AddMember adds a user to a room.
func (s *SQLiteStore) AddMember(ctx context.Context, roomID, userID string, role store.MemberRole) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members (room_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		roomID, userID, string(role), store.Now().Millis(),
	)
	if err != nil {
		return fmt.Errorf("insert room member: %w", err)
	}

	return nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
