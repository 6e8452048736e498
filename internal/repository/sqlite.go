package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

const (
	defaultBusyTimeout  = 5 * time.Second
	defaultWriteRetries = 5
	defaultRetryBase    = 10 * time.Millisecond
)

// Timestamp columns are selected as text so the driver does not reinterpret
// columns declared TIMESTAMP by older releases.
const (
	conversationColumns = `conversation_id, title, CAST(created_at AS TEXT), CAST(updated_at AS TEXT)`
	messageColumns      = `id, conversation_id, sender, receiver, content, CAST(timestamp AS TEXT)`
	memoryColumns       = `id, agent_name, memory_type, content, CAST(created_at AS TEXT), CAST(updated_at AS TEXT)`
)

var timestampColumns = []struct{ table, column string }{
	{"conversations", "created_at"},
	{"conversations", "updated_at"},
	{"messages", "timestamp"},
	{"memories", "created_at"},
	{"memories", "updated_at"},
}

// Option configures a SQLiteStore.
type Option func(*options)

type options struct {
	busyTimeout  time.Duration
	writeRetries uint64
	retryBase    time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

// WithBusyTimeout sets how long SQLite waits on a locked database before reporting busy.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithWriteRetries sets how many times a busy write transaction is retried.
func WithWriteRetries(n uint64) Option {
	return func(o *options) { o.writeRetries = n }
}

// WithRetryBase sets the first backoff interval between write retries.
func WithRetryBase(d time.Duration) Option {
	return func(o *options) { o.retryBase = d }
}

// WithClock overrides the time source used for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	opts options

	// writeMu serializes write transactions issued by this process.
	writeMu   sync.Mutex
	lastStamp time.Time
}

// NewSQLiteStore opens (creating if needed) the database file at path and
// ensures the schema exists. The parent directory must already exist.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	o := options{
		busyTimeout:  defaultBusyTimeout,
		writeRetries: defaultWriteRetries,
		retryBase:    defaultRetryBase,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retryBase <= 0 {
		o.retryBase = defaultRetryBase
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty database path", domain.ErrStorageUnavailable)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, o))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", domain.ErrStorageUnavailable, err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if isMemoryPath(path) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to open %s: %v", domain.ErrStorageUnavailable, path, err)
	}

	store := &SQLiteStore{db: db, opts: o}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to migrate database: %v", domain.ErrStorageUnavailable, err)
	}
	return store, nil
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// buildDSN appends driver parameters to path. Writers take the database lock
// when the transaction begins, so lock contention surfaces at BEGIN where it
// can be retried instead of midway through a transaction.
func buildDSN(path string, o options) string {
	params := []string{
		fmt.Sprintf("_busy_timeout=%d", o.busyTimeout.Milliseconds()),
		"_txlock=immediate",
	}
	if !isMemoryPath(path) {
		params = append(params, "_journal_mode=WAL", "_synchronous=NORMAL")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// migrate creates the schema. Every statement is safe to rerun.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL UNIQUE,
			title TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			sender TEXT,
			receiver TEXT,
			content TEXT,
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_name TEXT NOT NULL,
			memory_type TEXT,
			content TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}

	// Files written by older releases may lack the timestamp bookkeeping columns.
	if err := s.ensureColumn("conversations", "updated_at", `ALTER TABLE conversations ADD COLUMN updated_at TEXT`); err != nil {
		return err
	}
	if err := s.ensureColumn("memories", "updated_at", `ALTER TABLE memories ADD COLUMN updated_at TEXT`); err != nil {
		return err
	}
	for _, tc := range timestampColumns {
		if err := s.normalizeTimestamps(tc.table, tc.column); err != nil {
			return fmt.Errorf("normalize %s.%s: %w", tc.table, tc.column, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_route ON messages(sender, receiver, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_name, memory_type)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// normalizeTimestamps rewrites values of column that are not in the stored
// layout, such as zoneless local times from older releases, so that ordering
// by the column text is ordering by time. Unparseable values are left alone.
func (s *SQLiteStore) normalizeTimestamps(table, column string) error {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT rowid, CAST(%[1]s AS TEXT) FROM %[2]s WHERE %[1]s IS NOT NULL AND CAST(%[1]s AS TEXT) NOT GLOB ?`,
		column, table), timeGlob)
	if err != nil {
		return err
	}
	type rewrite struct {
		rowid int64
		value string
	}
	var rewrites []rewrite
	for rows.Next() {
		var rowid int64
		var raw string
		if err := rows.Scan(&rowid, &raw); err != nil {
			rows.Close()
			return err
		}
		if t := parseTime(raw); !t.IsZero() {
			rewrites = append(rewrites, rewrite{rowid: rowid, value: formatTime(t)})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(rewrites) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	update := fmt.Sprintf(`UPDATE %s SET %s = ? WHERE rowid = ?`, table, column)
	for _, rw := range rewrites {
		if _, err := tx.Exec(update, rw.value, rw.rowid); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	s.opts.logger.Info().Str("table", table).Str("column", column).Int("rows", len(rewrites)).Msg("normalized legacy timestamps")
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withWriteTx runs fn in a write transaction. Transactions from this process
// are serialized; contention with other processes is retried with backoff.
func (s *SQLiteStore) withWriteTx(ctx context.Context, op string, fn func(tx *sql.Tx, now time.Time) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	attempt := 0
	backoff := retry.WithMaxRetries(s.opts.writeRetries, retry.NewExponential(s.opts.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := s.runTx(ctx, fn)
		if isBusy(err) {
			s.opts.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("database busy, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(tx *sql.Tx, now time.Time) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx, s.stamp()); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// stamp returns the write timestamp. It never runs backwards within a
// process, so commit order and timestamp order agree. Caller holds writeMu.
func (s *SQLiteStore) stamp() time.Time {
	now := s.opts.now().UTC().Round(0)
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// CreateConversation inserts a conversation. The timestamps on conv are set
// on success.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv.ConversationID == "" {
		return fmt.Errorf("%w: conversation id is required", domain.ErrInvalidArgument)
	}
	var created time.Time
	err := s.withWriteTx(ctx, "create_conversation", func(tx *sql.Tx, now time.Time) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (conversation_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			conv.ConversationID, conv.Title, formatTime(now), formatTime(now))
		if isConstraint(err) {
			return fmt.Errorf("%w: conversation %s", domain.ErrAlreadyExists, conv.ConversationID)
		}
		created = now
		return err
	})
	if err != nil {
		return err
	}
	conv.CreatedAt, conv.UpdatedAt = created, created
	return nil
}

// GetConversation retrieves a conversation by its external ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ` + conversationColumns + ` FROM conversations WHERE conversation_id = ?`,
		conversationID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListRecentConversations returns conversations by most recent activity.
func (s *SQLiteStore) ListRecentConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = domain.DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ` + conversationColumns + ` FROM conversations
		ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]domain.Conversation, 0, limit)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

// CountConversations returns the number of stored conversations.
func (s *SQLiteStore) CountConversations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

// AppendMessage stores a message and bumps its conversation's activity time.
// A conversation row with the default title is created on first use. The ID
// and Timestamp on msg are set on success.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("%w: conversation id is required", domain.ErrInvalidArgument)
	}
	var (
		id      int64
		written time.Time
	)
	err := s.withWriteTx(ctx, "append_message", func(tx *sql.Tx, now time.Time) error {
		ts := formatTime(now)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (conversation_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(conversation_id) DO NOTHING`,
			msg.ConversationID, domain.DefaultConversationTitle(msg.ConversationID), ts, ts); err != nil {
			return fmt.Errorf("failed to ensure conversation: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, sender, receiver, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
			msg.ConversationID, msg.Sender, msg.Receiver, msg.Content, ts)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		// Another process may hold a later clock; activity time only moves forward.
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = MAX(COALESCE(updated_at, created_at, ''), ?) WHERE conversation_id = ?`,
			ts, msg.ConversationID); err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		written = now
		return nil
	})
	if err != nil {
		return err
	}
	msg.ID, msg.Timestamp = id, written
	return nil
}

// GetMessages returns every message of a conversation in chronological order.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// GetLastMessage returns the newest message matching filter, or nil.
func (s *SQLiteStore) GetLastMessage(ctx context.Context, filter domain.MessageFilter) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages`
	var conds []string
	var args []interface{}

	if filter.ConversationID != "" {
		conds = append(conds, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.Sender != "" {
		conds = append(conds, "sender = ?")
		args = append(args, filter.Sender)
	}
	if filter.Receiver != "" {
		conds = append(conds, "receiver = ?")
		args = append(args, filter.Receiver)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT 1`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// CreateMemory stores a memory. The ID and timestamps on mem are set on success.
func (s *SQLiteStore) CreateMemory(ctx context.Context, mem *domain.Memory) error {
	if mem.AgentName == "" {
		return fmt.Errorf("%w: agent name is required", domain.ErrInvalidArgument)
	}
	content, err := mem.Content.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	var (
		id      int64
		created time.Time
	)
	err = s.withWriteTx(ctx, "create_memory", func(tx *sql.Tx, now time.Time) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO memories (agent_name, memory_type, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			mem.AgentName, mem.MemoryType, content, formatTime(now), formatTime(now))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		created = now
		return err
	})
	if err != nil {
		return err
	}
	mem.ID, mem.CreatedAt, mem.UpdatedAt = id, created, created
	return nil
}

// GetMemory retrieves a memory by ID.
func (s *SQLiteStore) GetMemory(ctx context.Context, id int64) (*domain.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ` + memoryColumns + ` FROM memories WHERE id = ?`, id)
	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return mem, nil
}

// ListMemories returns an agent's memories in insertion order. An empty
// memoryType matches every type.
func (s *SQLiteStore) ListMemories(ctx context.Context, agentName, memoryType string) ([]domain.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE agent_name = ?`
	args := []interface{}{agentName}
	if memoryType != "" {
		query += ` AND memory_type = ?`
		args = append(args, memoryType)
	}
	query += ` ORDER BY id ASC`
	return s.queryMemories(ctx, query, args...)
}

// UpdateMemoryContent replaces a memory's content. It reports whether a row changed.
func (s *SQLiteStore) UpdateMemoryContent(ctx context.Context, id int64, content domain.Content) (bool, error) {
	encoded, err := content.Encode()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	var affected int64
	err = s.withWriteTx(ctx, "update_memory", func(tx *sql.Tx, now time.Time) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET content = ?, updated_at = MAX(COALESCE(updated_at, created_at, ''), ?) WHERE id = ?`,
			encoded, formatTime(now), id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteMemory removes a memory. It reports whether a row was deleted.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, id int64) (bool, error) {
	var affected int64
	err := s.withWriteTx(ctx, "delete_memory", func(tx *sql.Tx, _ time.Time) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SearchMemories returns every memory whose stored content contains query,
// matched case-insensitively for ASCII letters. The wildcard characters '%'
// and '_' in query match literally. An empty query matches every memory.
func (s *SQLiteStore) SearchMemories(ctx context.Context, query string) ([]domain.Memory, error) {
	return s.queryMemories(ctx,
		`SELECT ` + memoryColumns + ` FROM memories
		WHERE content LIKE ? ESCAPE '\' ORDER BY id ASC`,
		"%"+escapeLike(query)+"%")
}

// CountMemories returns the number of stored memories.
func (s *SQLiteStore) CountMemories(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) queryMemories(ctx context.Context, query string, args ...interface{}) ([]domain.Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memories := make([]domain.Memory, 0)
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, *mem)
	}
	return memories, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var title, createdAt, updatedAt sql.NullString
	if err := row.Scan(&conv.ConversationID, &title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	conv.Title = title.String
	conv.CreatedAt = parseTime(createdAt.String)
	conv.UpdatedAt = parseTime(updatedAt.String)
	if !updatedAt.Valid {
		conv.UpdatedAt = conv.CreatedAt
	}
	return &conv, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var sender, receiver, content, ts sql.NullString
	if err := row.Scan(&msg.ID, &msg.ConversationID, &sender, &receiver, &content, &ts); err != nil {
		return nil, err
	}
	msg.Sender = sender.String
	msg.Receiver = receiver.String
	msg.Content = content.String
	msg.Timestamp = parseTime(ts.String)
	return &msg, nil
}

func scanMemory(row rowScanner) (*domain.Memory, error) {
	var mem domain.Memory
	var memoryType, content, createdAt, updatedAt sql.NullString
	if err := row.Scan(&mem.ID, &mem.AgentName, &memoryType, &content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	mem.MemoryType = memoryType.String
	mem.Content = domain.DecodeContent(content.String)
	mem.CreatedAt = parseTime(createdAt.String)
	mem.UpdatedAt = parseTime(updatedAt.String)
	if !updatedAt.Valid {
		mem.UpdatedAt = mem.CreatedAt
	}
	return &mem, nil
}
