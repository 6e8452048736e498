// Package store defines the storage interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

// Store defines the interface for memory persistence.
type Store interface {
	// Conversation operations
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListRecentConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	CountConversations(ctx context.Context) (int, error)

	// Message operations
	AppendMessage(ctx context.Context, msg *domain.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	GetLastMessage(ctx context.Context, filter domain.MessageFilter) (*domain.Message, error)

	// Memory operations
	CreateMemory(ctx context.Context, mem *domain.Memory) error
	GetMemory(ctx context.Context, id int64) (*domain.Memory, error)
	ListMemories(ctx context.Context, agentName, memoryType string) ([]domain.Memory, error)
	UpdateMemoryContent(ctx context.Context, id int64, content domain.Content) (bool, error)
	DeleteMemory(ctx context.Context, id int64) (bool, error)
	SearchMemories(ctx context.Context, query string) ([]domain.Memory, error)
	CountMemories(ctx context.Context) (int, error)

	// Lifecycle
	Close() error
}
