package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newFileStore(t *testing.T, path string, opts ...Option) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(path, opts...)
	if err != nil {
		t.Fatalf("failed to create store at %s: %v", path, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start.Add(-step)
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

func TestSQLiteStoreConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conv := &domain.Conversation{ConversationID: "c1", Title: "Planning"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.CreatedAt.IsZero() || !conv.UpdatedAt.Equal(conv.CreatedAt) {
		t.Fatalf("unexpected timestamps: %+v", conv)
	}

	got, err := store.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got == nil || got.Title != "Planning" || !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Fatalf("unexpected conversation: %+v", got)
	}

	err = store.CreateConversation(ctx, &domain.Conversation{ConversationID: "c1", Title: "again"})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	missing, err := store.GetConversation(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil conversation, got %+v, %v", missing, err)
	}

	if err := store.CreateConversation(ctx, &domain.Conversation{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSQLiteStoreAppendMessageCreatesConversation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := &domain.Message{ConversationID: "c1", Sender: "User", Receiver: "Planner", Content: "Hi"}
	if err := store.AppendMessage(ctx, first); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	second := &domain.Message{ConversationID: "c1", Sender: "Planner", Receiver: "User", Content: "Hello"}
	if err := store.AppendMessage(ctx, second); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("unexpected ids: %d, %d", first.ID, second.ID)
	}

	conv, err := store.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv == nil || conv.Title != "Conversation c1" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if !conv.UpdatedAt.Equal(second.Timestamp) {
		t.Fatalf("updated_at %v, want %v", conv.UpdatedAt, second.Timestamp)
	}

	messages, err := store.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "Hi" || messages[1].Content != "Hello" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
	if messages[1].Sender != "Planner" || messages[1].Receiver != "User" {
		t.Fatalf("unexpected routing: %+v", messages[1])
	}

	n, err := store.CountConversations(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 conversation, got %d, %v", n, err)
	}
}

func TestSQLiteStoreAppendMessageKeepsExplicitTitle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateConversation(ctx, &domain.Conversation{ConversationID: "demo", Title: "Demo"}); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := store.AppendMessage(ctx, &domain.Message{ConversationID: "demo", Sender: "a", Receiver: "b", Content: "x"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	conv, err := store.GetConversation(ctx, "demo")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.Title != "Demo" {
		t.Fatalf("title overwritten: %q", conv.Title)
	}
}

func TestSQLiteStoreMessagesOrderedWithEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(func() time.Time { return frozen }))

	for i := 0; i < 5; i++ {
		msg := &domain.Message{ConversationID: "c1", Sender: "a", Receiver: "b", Content: fmt.Sprintf("m%d", i)}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	for i, msg := range messages {
		if msg.Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("message %d out of order: %q", i, msg.Content)
		}
		if !msg.Timestamp.Equal(frozen) {
			t.Fatalf("unexpected timestamp: %v", msg.Timestamp)
		}
	}
}

func TestSQLiteStoreClockNeverRunsBackwards(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(fixedClock(start, -time.Minute)))

	if err := store.AppendMessage(ctx, &domain.Message{ConversationID: "c1", Content: "first"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := store.AppendMessage(ctx, &domain.Message{ConversationID: "c1", Content: "second"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	messages, err := store.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "first" || messages[1].Content != "second" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
	conv, _ := store.GetConversation(ctx, "c1")
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Fatalf("updated_at %v before created_at %v", conv.UpdatedAt, conv.CreatedAt)
	}
}

func TestSQLiteStoreGetMessagesUnknownConversation(t *testing.T) {
	store := newTestStore(t)

	messages, err := store.GetMessages(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if messages == nil || len(messages) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", messages)
	}
}

func TestSQLiteStoreRecentConversations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)))

	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("c%02d", i)
		if err := store.CreateConversation(ctx, &domain.Conversation{ConversationID: id, Title: id}); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}
	// Activity on the oldest conversation moves it to the front.
	if err := store.AppendMessage(ctx, &domain.Message{ConversationID: "c00", Content: "ping"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	recent, err := store.ListRecentConversations(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecentConversations failed: %v", err)
	}
	if len(recent) != domain.DefaultRecentLimit {
		t.Fatalf("expected %d conversations, got %d", domain.DefaultRecentLimit, len(recent))
	}
	if recent[0].ConversationID != "c00" || recent[1].ConversationID != "c11" {
		t.Fatalf("unexpected order: %s, %s", recent[0].ConversationID, recent[1].ConversationID)
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].UpdatedAt.After(recent[i-1].UpdatedAt) {
			t.Fatalf("conversations not ordered by updated_at at %d", i)
		}
	}

	two, err := store.ListRecentConversations(ctx, 2)
	if err != nil || len(two) != 2 {
		t.Fatalf("expected 2 conversations, got %d, %v", len(two), err)
	}
}

func TestSQLiteStoreGetLastMessage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	route := []struct{ conv, from, to, content string }{
		{"c1", "User", "Planner", "plan a trip"},
		{"c1", "Planner", "User", "where to?"},
		{"c2", "Planner", "Researcher", "find flights"},
		{"c1", "Planner", "User", "booked"},
	}
	for _, r := range route {
		if err := store.AppendMessage(ctx, &domain.Message{ConversationID: r.conv, Sender: r.from, Receiver: r.to, Content: r.content}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	last, err := store.GetLastMessage(ctx, domain.MessageFilter{Sender: "Planner", Receiver: "User"})
	if err != nil {
		t.Fatalf("GetLastMessage failed: %v", err)
	}
	if last == nil || last.Content != "booked" {
		t.Fatalf("unexpected last message: %+v", last)
	}

	last, err = store.GetLastMessage(ctx, domain.MessageFilter{Sender: "Planner"})
	if err != nil || last == nil || last.Content != "booked" {
		t.Fatalf("unexpected last message: %+v, %v", last, err)
	}

	last, err = store.GetLastMessage(ctx, domain.MessageFilter{ConversationID: "c2"})
	if err != nil || last == nil || last.Content != "find flights" {
		t.Fatalf("unexpected last message: %+v, %v", last, err)
	}

	last, err = store.GetLastMessage(ctx, domain.MessageFilter{Sender: "Researcher"})
	if err != nil || last != nil {
		t.Fatalf("expected no message, got %+v, %v", last, err)
	}
}

func TestSQLiteStoreMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)))

	fact := &domain.Memory{AgentName: "Researcher", MemoryType: domain.MemoryTypeFact, Content: domain.TextContent("The sky is blue")}
	if err := store.CreateMemory(ctx, fact); err != nil {
		t.Fatalf("CreateMemory failed: %v", err)
	}
	pref := &domain.Memory{
		AgentName:  "Researcher",
		MemoryType: domain.MemoryTypePreference,
		Content:    domain.MustStructured(map[string]any{"preference_type": "color", "value": "green"}),
	}
	if err := store.CreateMemory(ctx, pref); err != nil {
		t.Fatalf("CreateMemory failed: %v", err)
	}
	if fact.ID == 0 || pref.ID <= fact.ID {
		t.Fatalf("unexpected ids: %d, %d", fact.ID, pref.ID)
	}

	all, err := store.ListMemories(ctx, "Researcher", "")
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != fact.ID || all[1].ID != pref.ID {
		t.Fatalf("expected insertion order, got %+v", all)
	}
	if !all[1].Content.IsStructured() || all[1].Content.Record()["value"] != "green" {
		t.Fatalf("structured content not restored: %+v", all[1].Content)
	}

	facts, err := store.ListMemories(ctx, "Researcher", domain.MemoryTypeFact)
	if err != nil || len(facts) != 1 || facts[0].Content.Text() != "The sky is blue" {
		t.Fatalf("unexpected facts: %+v, %v", facts, err)
	}

	none, err := store.ListMemories(ctx, "Nobody", "")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty slice, got %#v, %v", none, err)
	}

	updated, err := store.UpdateMemoryContent(ctx, fact.ID, domain.TextContent("The sky is grey"))
	if err != nil || !updated {
		t.Fatalf("UpdateMemoryContent: %v, %v", updated, err)
	}
	got, err := store.GetMemory(ctx, fact.ID)
	if err != nil || got == nil {
		t.Fatalf("GetMemory: %+v, %v", got, err)
	}
	if got.Content.Text() != "The sky is grey" || !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatalf("unexpected memory after update: %+v", got)
	}

	updated, err = store.UpdateMemoryContent(ctx, 9999, domain.TextContent("x"))
	if err != nil || updated {
		t.Fatalf("expected no update for missing id, got %v, %v", updated, err)
	}

	deleted, err := store.DeleteMemory(ctx, fact.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteMemory: %v, %v", deleted, err)
	}
	deleted, err = store.DeleteMemory(ctx, fact.ID)
	if err != nil || deleted {
		t.Fatalf("expected second delete to report false, got %v, %v", deleted, err)
	}
	gone, err := store.GetMemory(ctx, fact.ID)
	if err != nil || gone != nil {
		t.Fatalf("expected deleted memory to be gone: %+v, %v", gone, err)
	}

	n, err := store.CountMemories(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 memory, got %d, %v", n, err)
	}

	if err := store.CreateMemory(ctx, &domain.Memory{Content: domain.TextContent("x")}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSQLiteStoreSearchMemories(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seed := []domain.Memory{
		{AgentName: "Researcher", MemoryType: domain.MemoryTypeFact, Content: domain.TextContent("The sky is blue")},
		{AgentName: "Planner", MemoryType: domain.MemoryTypePreference, Content: domain.MustStructured(map[string]any{"value": "Blue"})},
		{AgentName: "Planner", MemoryType: domain.MemoryTypeFact, Content: domain.TextContent("Grass is green")},
		{AgentName: "Planner", MemoryType: domain.MemoryTypeSkill, Content: domain.TextContent("100% accurate_ish")},
	}
	for i := range seed {
		if err := store.CreateMemory(ctx, &seed[i]); err != nil {
			t.Fatalf("CreateMemory failed: %v", err)
		}
	}

	tests := []struct {
		query string
		want  []int64
	}{
		{"blue", []int64{seed[0].ID, seed[1].ID}},
		{"BLUE", []int64{seed[0].ID, seed[1].ID}},
		{"green", []int64{seed[2].ID}},
		{`"value":"Blue"`, []int64{seed[1].ID}},
		{"%", []int64{seed[3].ID}},
		{"_ish", []int64{seed[3].ID}},
		{"purple", nil},
		{"", []int64{seed[0].ID, seed[1].ID, seed[2].ID, seed[3].ID}},
	}
	for _, tt := range tests {
		got, err := store.SearchMemories(ctx, tt.query)
		if err != nil {
			t.Fatalf("SearchMemories(%q) failed: %v", tt.query, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("SearchMemories(%q): expected %d results, got %d", tt.query, len(tt.want), len(got))
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Fatalf("SearchMemories(%q)[%d]: expected id %d, got %d", tt.query, i, tt.want[i], got[i].ID)
			}
		}
	}
}

func TestSQLiteStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, filepath.Join(t.TempDir(), "agent_memory.db"))

	const writers, perWriter = 4, 25
	var wg conc.WaitGroup
	for w := 0; w < writers; w++ {
		w := w
		wg.Go(func() {
			for i := 0; i < perWriter; i++ {
				msg := &domain.Message{ConversationID: "shared", Sender: fmt.Sprintf("w%d", w), Receiver: "sink", Content: fmt.Sprintf("%d", i)}
				if err := store.AppendMessage(ctx, msg); err != nil {
					t.Errorf("AppendMessage failed: %v", err)
					return
				}
			}
		})
	}
	wg.Wait()

	messages, err := store.GetMessages(ctx, "shared")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != writers*perWriter {
		t.Fatalf("expected %d messages, got %d", writers*perWriter, len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Timestamp.Before(messages[i-1].Timestamp) {
			t.Fatalf("messages out of order at %d", i)
		}
	}
	n, err := store.CountConversations(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected exactly 1 conversation, got %d, %v", n, err)
	}
}

func TestSQLiteStoreTwoHandlesShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	a := newFileStore(t, path)
	b := newFileStore(t, path)

	var wg conc.WaitGroup
	for _, s := range []*SQLiteStore{a, b} {
		s := s
		wg.Go(func() {
			for i := 0; i < 20; i++ {
				if err := s.CreateMemory(ctx, &domain.Memory{AgentName: "agent", Content: domain.TextContent("note")}); err != nil {
					t.Errorf("CreateMemory failed: %v", err)
					return
				}
			}
		})
	}
	wg.Wait()

	n, err := a.CountMemories(ctx)
	if err != nil || n != 40 {
		t.Fatalf("expected 40 memories, got %d, %v", n, err)
	}
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agent_memory.db")

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := first.CreateMemory(ctx, &domain.Memory{AgentName: "Researcher", Content: domain.TextContent("persisted")}); err != nil {
		t.Fatalf("CreateMemory failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := newFileStore(t, path)
	memories, err := second.ListMemories(ctx, "Researcher", "")
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(memories) != 1 || memories[0].Content.Text() != "persisted" {
		t.Fatalf("unexpected memories after reopen: %+v", memories)
	}
}

func TestSQLiteStoreMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "agent_memory.db")
	_, err := NewSQLiteStore(path)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	if _, err := NewSQLiteStore(""); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable for empty path, got %v", err)
	}
}

// withLocalZone runs the rest of the test with time.Local set to loc.
func withLocalZone(t *testing.T, loc *time.Location) {
	t.Helper()
	orig := time.Local
	time.Local = loc
	t.Cleanup(func() { time.Local = orig })
}

func execAll(t *testing.T, path string, stmts ...string) {
	t.Helper()
	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	defer raw.Close()
	for _, stmt := range stmts {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}
}

func TestSQLiteStoreReadsLegacyRows(t *testing.T) {
	withLocalZone(t, time.FixedZone("UTC+2", 2*60*60))
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	execAll(t, path,
		`CREATE TABLE memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_name TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO memories (agent_name, memory_type, content, created_at)
			VALUES ('Planner', 'fact', '{"value": "legacy"}', '2024-03-01T09:30:00.123456')`,
	)

	store := newFileStore(t, path)
	memories, err := store.ListMemories(ctx, "Planner", "")
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(memories))
	}
	mem := memories[0]
	if mem.Content.Record()["value"] != "legacy" {
		t.Fatalf("legacy record not decoded: %+v", mem.Content)
	}
	want := time.Date(2024, 3, 1, 7, 30, 0, 123456000, time.UTC)
	if !mem.CreatedAt.Equal(want) || !mem.UpdatedAt.Equal(want) {
		t.Fatalf("unexpected legacy timestamps: %v / %v", mem.CreatedAt, mem.UpdatedAt)
	}

	var stored string
	if err := store.db.QueryRow(`SELECT CAST(created_at AS TEXT) FROM memories WHERE id = ?`, mem.ID).Scan(&stored); err != nil {
		t.Fatalf("read raw created_at: %v", err)
	}
	if stored != "2024-03-01T07:30:00.123456000Z" {
		t.Fatalf("legacy timestamp not normalized: %q", stored)
	}

	if ok, err := store.UpdateMemoryContent(ctx, mem.ID, domain.TextContent("migrated")); err != nil || !ok {
		t.Fatalf("UpdateMemoryContent on legacy row: %v, %v", ok, err)
	}
}

func TestSQLiteStoreLegacyConversationsSortByTime(t *testing.T) {
	withLocalZone(t, time.FixedZone("UTC+2", 2*60*60))
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	execAll(t, path,
		`CREATE TABLE conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT UNIQUE,
			title TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT,
			sender TEXT,
			receiver TEXT,
			content TEXT,
			timestamp TIMESTAMP
		)`,
		// 10:00 local is 08:00 UTC.
		`INSERT INTO conversations (conversation_id, title, created_at, updated_at)
			VALUES ('old', 'Old', '2024-03-01T09:00:00', '2024-03-01T10:00:00')`,
		`INSERT INTO messages (conversation_id, sender, receiver, content, timestamp)
			VALUES ('old', 'User', 'Bot', 'hi', '2024-03-01T10:00:00')`,
	)

	store := newFileStore(t, path, WithClock(fixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)))
	if err := store.CreateConversation(ctx, &domain.Conversation{ConversationID: "new", Title: "New"}); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	recent, err := store.ListRecentConversations(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecentConversations failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ConversationID != "new" || recent[1].ConversationID != "old" {
		t.Fatalf("expected [new old], got %+v", recent)
	}
	if want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC); !recent[1].UpdatedAt.Equal(want) {
		t.Fatalf("expected legacy updated_at %v, got %v", want, recent[1].UpdatedAt)
	}

	msg := &domain.Message{ConversationID: "old", Sender: "Bot", Receiver: "User", Content: "hello"}
	if err := store.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	history, err := store.GetMessages(ctx, "old")
	if err != nil || len(history) != 2 || history[0].Content != "hi" || history[1].Content != "hello" {
		t.Fatalf("unexpected history: %+v, %v", history, err)
	}
}

func TestSQLiteStoreKeepsLargeIntegers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const want = `{"user_id":9007199254740993}`
	for _, content := range []domain.Content{
		domain.MustStructured(map[string]any{"user_id": int64(9007199254740993)}),
		domain.TextContent(`{"user_id": 9007199254740993}`),
	} {
		if err := store.CreateMemory(ctx, &domain.Memory{AgentName: "Planner", Content: content}); err != nil {
			t.Fatalf("CreateMemory failed: %v", err)
		}
	}

	memories, err := store.ListMemories(ctx, "Planner", "")
	if err != nil || len(memories) != 2 {
		t.Fatalf("ListMemories: %d, %v", len(memories), err)
	}
	for _, mem := range memories {
		if !mem.Content.IsStructured() || mem.Content.String() != want {
			t.Fatalf("memory %d: expected %s, got %s", mem.ID, want, mem.Content.String())
		}
	}

	if ok, err := store.UpdateMemoryContent(ctx, memories[1].ID, memories[1].Content); err != nil || !ok {
		t.Fatalf("UpdateMemoryContent: %v, %v", ok, err)
	}
	var raw string
	if err := store.db.QueryRow(`SELECT content FROM memories WHERE id = ?`, memories[1].ID).Scan(&raw); err != nil {
		t.Fatalf("read raw content: %v", err)
	}
	if raw != want {
		t.Fatalf("expected stored %s, got %s", want, raw)
	}
}

func TestSQLiteStoreTwoHandlesCreateOneConversation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	a := newFileStore(t, path)
	b := newFileStore(t, path)

	const perHandle = 20
	var wg conc.WaitGroup
	for _, s := range []*SQLiteStore{a, b} {
		s := s
		wg.Go(func() {
			for i := 0; i < perHandle; i++ {
				msg := &domain.Message{ConversationID: "fresh", Sender: "User", Receiver: "Bot", Content: fmt.Sprintf("%d", i)}
				if err := s.AppendMessage(ctx, msg); err != nil {
					t.Errorf("AppendMessage failed: %v", err)
					return
				}
			}
		})
	}
	wg.Wait()

	n, err := a.CountConversations(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected exactly 1 conversation, got %d, %v", n, err)
	}
	messages, err := b.GetMessages(ctx, "fresh")
	if err != nil || len(messages) != 2*perHandle {
		t.Fatalf("expected %d messages, got %d, %v", 2*perHandle, len(messages), err)
	}
	conv, err := b.GetConversation(ctx, "fresh")
	if err != nil || conv == nil || conv.Title != domain.DefaultConversationTitle("fresh") {
		t.Fatalf("unexpected conversation: %+v, %v", conv, err)
	}
}

func TestSQLiteStoreActivityTimeNeverPrecedesCreation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "skew.db")
	ahead := newFileStore(t, path, WithClock(fixedClock(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)))
	behind := newFileStore(t, path, WithClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)))

	if err := ahead.CreateConversation(ctx, &domain.Conversation{ConversationID: "c1", Title: "Skew"}); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := behind.AppendMessage(ctx, &domain.Message{ConversationID: "c1", Sender: "User", Receiver: "Bot", Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	conv, err := behind.GetConversation(ctx, "c1")
	if err != nil || conv == nil {
		t.Fatalf("GetConversation: %+v, %v", conv, err)
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Fatalf("conversation updated_at %v precedes created_at %v", conv.UpdatedAt, conv.CreatedAt)
	}

	mem := &domain.Memory{AgentName: "Planner", Content: domain.TextContent("v1")}
	if err := ahead.CreateMemory(ctx, mem); err != nil {
		t.Fatalf("CreateMemory failed: %v", err)
	}
	if ok, err := behind.UpdateMemoryContent(ctx, mem.ID, domain.TextContent("v2")); err != nil || !ok {
		t.Fatalf("UpdateMemoryContent: %v, %v", ok, err)
	}
	got, err := behind.GetMemory(ctx, mem.ID)
	if err != nil || got == nil || got.Content.Text() != "v2" {
		t.Fatalf("GetMemory: %+v, %v", got, err)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("memory updated_at %v precedes created_at %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestFormatTimeIsFixedWidth(t *testing.T) {
	a := formatTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := formatTime(time.Date(2024, 1, 1, 0, 0, 0, 500, time.UTC))
	if len(a) != len(b) || a >= b {
		t.Fatalf("timestamps do not sort lexically: %q, %q", a, b)
	}
	if got := parseTime(b); !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 500, time.UTC)) {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestParseTimeZones(t *testing.T) {
	withLocalZone(t, time.FixedZone("UTC-5", -5*60*60))

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01T12:00:00.000000000Z", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-01-01T12:00:00+02:00", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-01-01 12:00:00+00:00", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-01-01T12:00:00.5", time.Date(2024, 1, 1, 17, 0, 0, 500000000, time.UTC)},
		{"2024-01-01 12:00:00", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := parseTime(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := parseTime("yesterday"); !got.IsZero() {
		t.Errorf("expected zero time for garbage, got %v", got)
	}
}
