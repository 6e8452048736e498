// Package domain defines the core domain models for the memory service.
package domain

import (
	"fmt"
	"time"
)

// MemoryType is a free-text category for a memory. The constants below are
// the categories agents use most; any other string is accepted.
type MemoryType = string

const (
	MemoryTypeFact                = "fact"
	MemoryTypeSkill               = "skill"
	MemoryTypePreference          = "preference"
	MemoryTypeExperience          = "experience"
	MemoryTypeConversationSummary = "conversation_summary"
)

// DefaultRecentLimit is the number of conversations returned when no limit is given.
const DefaultRecentLimit = 10

// Conversation is a named thread of messages.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DefaultConversationTitle is the title given to conversations created
// implicitly by their first message.
func DefaultConversationTitle(conversationID string) string {
	return fmt.Sprintf("Conversation %s", conversationID)
}

// Message is one directed communication inside a conversation.
// Messages are immutable once stored.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Receiver       string    `json:"receiver"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageFilter narrows a last-message lookup. Empty fields match anything.
type MessageFilter struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Sender         string `json:"sender,omitempty"`
	Receiver       string `json:"receiver,omitempty"`
}

// Memory is a durable, agent-scoped note.
type Memory struct {
	ID         int64      `json:"id"`
	AgentName  string     `json:"agent_name"`
	MemoryType MemoryType `json:"memory_type"`
	Content    Content    `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
