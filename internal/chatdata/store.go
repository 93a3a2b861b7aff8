// Package chatdata is the local chat store the assistant reads from and
// sends through. Uses pure-Go SQLite (modernc.org/sqlite), no cgo required.
package chatdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRoomNotFound is returned when a write targets a room the store doesn't know.
var ErrRoomNotFound = errors.New("room not found")

// Store wraps an SQLite database holding chats, contacts and messages.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at the given path.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	return newStore(db)
}

// OpenInMemory opens a private in-memory database, used by tests and the demo mode.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			room_id           TEXT PRIMARY KEY,
			title             TEXT NOT NULL DEFAULT '',
			preview           TEXT NOT NULL DEFAULT '',
			preview_sender_id TEXT NOT NULL DEFAULT '',
			protocol          TEXT NOT NULL DEFAULT '',
			unread_count      INTEGER NOT NULL DEFAULT 0,
			last_activity     INTEGER NOT NULL DEFAULT 0,
			one_to_one        INTEGER NOT NULL DEFAULT 0,
			muted             INTEGER NOT NULL DEFAULT 0,
			low_priority      INTEGER NOT NULL DEFAULT 0,
			archived          INTEGER NOT NULL DEFAULT 0,
			show_in_all_chats INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE IF NOT EXISTS contacts (
			sender_id    TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			protocol     TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS room_members (
			room_id   TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			PRIMARY KEY (room_id, sender_id)
		);
		CREATE TABLE IF NOT EXISTS messages (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			original_id  TEXT NOT NULL UNIQUE,
			room_id      TEXT NOT NULL,
			sender_id    TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			timestamp    INTEGER NOT NULL DEFAULT 0,
			sent_by_me   INTEGER NOT NULL DEFAULT 0,
			deleted      INTEGER NOT NULL DEFAULT 0,
			type         TEXT NOT NULL DEFAULT 'TEXT',
			text_content TEXT NOT NULL DEFAULT '',
			reactions    TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages (room_id, timestamp);
	`)
	return err
}

// where accumulates SQL conditions and their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	w.add(column+" IN ("+marks+")", args...)
}

func (w *where) flag(column string, v *bool) {
	if v == nil {
		return
	}
	w.add(column+" = ?", boolToInt(*v))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func chatWhere(f ChatFilter) *where {
	w := &where{}
	w.in("room_id", f.RoomIDs)
	w.flag("low_priority", f.IsLowPriority)
	w.flag("archived", f.IsArchived)
	w.flag("show_in_all_chats", f.ShowInAllChats)
	if f.IsUnread != nil {
		if *f.IsUnread {
			w.add("unread_count > 0")
		} else {
			w.add("unread_count = 0")
		}
	}
	if f.Protocol != "" {
		w.add("protocol = ?", f.Protocol)
	}
	return w
}

// Chats returns one page of chats, most recently active first.
func (s *Store) Chats(ctx context.Context, f ChatFilter) ([]Chat, error) {
	limit, offset := normalizePage(f.Limit, f.Offset)
	w := chatWhere(f)
	query := `SELECT room_id, title, preview, preview_sender_id, protocol, unread_count,
		last_activity, one_to_one, muted, low_priority, archived, show_in_all_chats
		FROM chats` + w.String() + ` ORDER BY last_activity DESC, room_id ASC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		var ts int64
		var oneToOne, muted, lowPriority, archived, showInAll int
		if err := rows.Scan(&c.RoomID, &c.Title, &c.Preview, &c.PreviewSenderID, &c.Protocol,
			&c.UnreadCount, &ts, &oneToOne, &muted, &lowPriority, &archived, &showInAll); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.LastActivity = time.UnixMilli(ts)
		c.OneToOne = oneToOne == 1
		c.Muted = muted == 1
		c.LowPriority = lowPriority == 1
		c.Archived = archived == 1
		c.ShowInAllChats = showInAll == 1
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// CountChats counts chats matching the filter, ignoring pagination.
func (s *Store) CountChats(ctx context.Context, f ChatFilter) (int, error) {
	w := chatWhere(f)
	return s.count(ctx, "SELECT COUNT(*) FROM chats"+w.String(), w.args)
}

func contactWhere(f ContactFilter) *where {
	w := &where{}
	w.in("c.sender_id", f.SenderIDs)
	if len(f.RoomIDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.RoomIDs)), ",")
		args := make([]any, len(f.RoomIDs))
		for i, v := range f.RoomIDs {
			args[i] = v
		}
		w.add("c.sender_id IN (SELECT sender_id FROM room_members WHERE room_id IN ("+marks+"))", args...)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := containsPattern(q)
		w.add(`(c.display_name LIKE ? ESCAPE '\' OR c.sender_id LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if f.Protocol != "" {
		w.add("c.protocol = ?", f.Protocol)
	}
	return w
}

// Contacts returns one page of contacts ordered by display name.
func (s *Store) Contacts(ctx context.Context, f ContactFilter) ([]Contact, error) {
	limit, offset := normalizePage(f.Limit, f.Offset)
	w := contactWhere(f)
	query := `SELECT c.sender_id, c.display_name, c.protocol,
		COALESCE((SELECT GROUP_CONCAT(m.room_id, ',') FROM room_members m WHERE m.sender_id = c.sender_id), '')
		FROM contacts c` + w.String() + ` ORDER BY c.display_name ASC, c.sender_id ASC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		var rooms string
		if err := rows.Scan(&c.SenderID, &c.DisplayName, &c.Protocol, &rooms); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if rooms != "" {
			c.RoomIDs = strings.Split(rooms, ",")
			sort.Strings(c.RoomIDs)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// CountContacts counts contacts matching the filter, ignoring pagination.
func (s *Store) CountContacts(ctx context.Context, f ContactFilter) (int, error) {
	w := contactWhere(f)
	return s.count(ctx, "SELECT COUNT(*) FROM contacts c"+w.String(), w.args)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches q literally anywhere in a column, for LIKE ... ESCAPE '\'.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func messageWhere(f MessageFilter) *where {
	w := &where{}
	w.in("room_id", f.RoomIDs)
	if f.SenderID != "" {
		w.add("sender_id = ?", f.SenderID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		w.add(`deleted = 0 AND text_content LIKE ? ESCAPE '\'`, containsPattern(q))
	}
	return w
}

const messageColumns = `id, original_id, room_id, sender_id, display_name, timestamp,
	sent_by_me, deleted, type, text_content, reactions`

func scanMessages(rows *sql.Rows, match bool) ([]Message, error) {
	defer rows.Close()
	var msgs []Message
	for rows.Next() {
		var m Message
		var ts int64
		var sentByMe, deleted int
		if err := rows.Scan(&m.ID, &m.OriginalID, &m.RoomID, &m.SenderID, &m.DisplayName, &ts,
			&sentByMe, &deleted, &m.Type, &m.Text, &m.Reactions); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts)
		m.SentByMe = sentByMe == 1
		m.Deleted = deleted == 1
		m.IsSearchMatch = match
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Messages returns one page of messages, newest first across every room in
// scope. Matches of the filter have IsSearchMatch set.
func (s *Store) Messages(ctx context.Context, f MessageFilter) ([]Message, error) {
	limit, offset := normalizePage(f.Limit, f.Offset)
	w := messageWhere(f)
	query := "SELECT " + messageColumns + " FROM messages" + w.String() +
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return scanMessages(rows, true)
}

// Surrounding returns up to before older and after newer messages around m in its room.
func (s *Store) Surrounding(ctx context.Context, m Message, before, after int) ([]Message, error) {
	var out []Message
	ts := m.Timestamp.UnixMilli()
	if before > 0 {
		rows, err := s.db.QueryContext(ctx, "SELECT "+messageColumns+` FROM messages
			WHERE room_id = ? AND (timestamp < ? OR (timestamp = ? AND id < ?))
			ORDER BY timestamp DESC, id DESC LIMIT ?`, m.RoomID, ts, ts, m.ID, before)
		if err != nil {
			return nil, fmt.Errorf("query context before: %w", err)
		}
		msgs, err := scanMessages(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	if after > 0 {
		rows, err := s.db.QueryContext(ctx, "SELECT "+messageColumns+` FROM messages
			WHERE room_id = ? AND (timestamp > ? OR (timestamp = ? AND id > ?))
			ORDER BY timestamp ASC, id ASC LIMIT ?`, m.RoomID, ts, ts, m.ID, after)
		if err != nil {
			return nil, fmt.Errorf("query context after: %w", err)
		}
		msgs, err := scanMessages(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

// CountMessages counts messages matching the filter, ignoring pagination.
func (s *Store) CountMessages(ctx context.Context, f MessageFilter) (int, error) {
	w := messageWhere(f)
	return s.count(ctx, "SELECT COUNT(*) FROM messages"+w.String(), w.args)
}

// Unread reports where the unread messages of a room begin. The offset is in
// the newest-first order used by Messages.
func (s *Store) Unread(ctx context.Context, roomID string) (UnreadMarker, error) {
	var marker UnreadMarker
	var unread int
	err := s.db.QueryRowContext(ctx, "SELECT unread_count FROM chats WHERE room_id = ?", roomID).Scan(&unread)
	if errors.Is(err, sql.ErrNoRows) {
		return marker, ErrRoomNotFound
	}
	if err != nil {
		return marker, fmt.Errorf("query unread count: %w", err)
	}
	marker.PagingOffset = unread

	err = s.db.QueryRowContext(ctx, `SELECT original_id FROM messages WHERE room_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT 1 OFFSET ?`, roomID, unread).Scan(&marker.LastRead)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return marker, fmt.Errorf("query last read: %w", err)
	}
	return marker, nil
}

// InsertMessage appends m to its room. The room's activity and preview only
// move forward in time.
func (s *Store) InsertMessage(ctx context.Context, m Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ts := m.Timestamp.UnixMilli()
	res, err := tx.ExecContext(ctx, `UPDATE chats SET
		preview = CASE WHEN ? >= last_activity THEN ? ELSE preview END,
		preview_sender_id = CASE WHEN ? >= last_activity THEN ? ELSE preview_sender_id END,
		last_activity = MAX(last_activity, ?)
		WHERE room_id = ?`, ts, m.Text, ts, m.SenderID, ts, m.RoomID)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}

	msgType := m.Type
	if msgType == "" {
		msgType = "TEXT"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO messages (original_id, room_id, sender_id, display_name,
		timestamp, sent_by_me, deleted, type, text_content, reactions) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.OriginalID, m.RoomID, m.SenderID, m.DisplayName, ts,
		boolToInt(m.SentByMe), boolToInt(m.Deleted), msgType, m.Text, m.Reactions)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit()
}

// UpsertChat inserts or replaces a chat row.
func (s *Store) UpsertChat(ctx context.Context, c Chat) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO chats (room_id, title, preview, preview_sender_id,
		protocol, unread_count, last_activity, one_to_one, muted, low_priority, archived, show_in_all_chats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RoomID, c.Title, c.Preview, c.PreviewSenderID, c.Protocol, c.UnreadCount,
		c.LastActivity.UnixMilli(), boolToInt(c.OneToOne), boolToInt(c.Muted),
		boolToInt(c.LowPriority), boolToInt(c.Archived), boolToInt(c.ShowInAllChats))
	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", c.RoomID, err)
	}
	return nil
}

// UpsertContact inserts or replaces a contact and its room memberships.
func (s *Store) UpsertContact(ctx context.Context, c Contact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO contacts (sender_id, display_name, protocol)
		VALUES (?, ?, ?)`, c.SenderID, c.DisplayName, c.Protocol); err != nil {
		return fmt.Errorf("upsert contact %s: %w", c.SenderID, err)
	}
	for _, room := range c.RoomIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO room_members (room_id, sender_id)
			VALUES (?, ?)`, room, c.SenderID); err != nil {
			return fmt.Errorf("add %s to %s: %w", c.SenderID, room, err)
		}
	}
	return tx.Commit()
}

func (s *Store) count(ctx context.Context, query string, args []any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
