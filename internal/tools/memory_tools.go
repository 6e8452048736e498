package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

// MemoryService is the subset of the memory manager the tools call.
type MemoryService interface {
	CreateConversation(ctx context.Context, conversationID, title string) (*domain.Conversation, error)
	AddMessage(ctx context.Context, conversationID, sender, receiver, content string) (*domain.Message, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]domain.Message, error)
	GetRecentConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	GetLastMessage(ctx context.Context, filter domain.MessageFilter) (*domain.Message, error)
	StoreMemory(ctx context.Context, agentName, memoryType string, content domain.Content) (*domain.Memory, error)
	RetrieveMemories(ctx context.Context, agentName, memoryType string) ([]domain.Memory, error)
	UpdateMemory(ctx context.Context, id int64, content domain.Content) (bool, error)
	DeleteMemory(ctx context.Context, id int64) (bool, error)
	SearchMemories(ctx context.Context, query string) ([]domain.Memory, error)
}

// Result is the envelope every memory tool returns. Storage failures are
// reported here with OK false so the calling agent can carry on.
type Result struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

type StoreMemoryInput struct {
	AgentName  string      `json:"agent_name" jsonschema_description:"Agent that owns the memory."`
	MemoryType string      `json:"memory_type,omitempty" jsonschema_description:"Category such as fact, skill, preference, experience or conversation_summary."`
	Content    interface{} `json:"content" jsonschema:"oneof_type=string;object" jsonschema_description:"Plain text or a JSON object."`
}

type RetrieveMemoriesInput struct {
	AgentName  string `json:"agent_name" jsonschema_description:"Agent whose memories to return."`
	MemoryType string `json:"memory_type,omitempty" jsonschema_description:"Only return this category."`
}

type UpdateMemoryInput struct {
	MemoryID int64       `json:"memory_id" jsonschema:"minimum=1" jsonschema_description:"Id of the memory to replace."`
	Content  interface{} `json:"content" jsonschema:"oneof_type=string;object" jsonschema_description:"New plain text or JSON object."`
}

type DeleteMemoryInput struct {
	MemoryID int64 `json:"memory_id" jsonschema:"minimum=1" jsonschema_description:"Id of the memory to delete."`
}

type SearchMemoriesInput struct {
	Query string `json:"query" jsonschema_description:"Substring to look for in memory content, ignoring ASCII case."`
}

type CreateConversationInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"minLength=1" jsonschema_description:"Identifier chosen by the caller."`
	Title          string `json:"title,omitempty" jsonschema_description:"Display title."`
}

type LogMessageInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"minLength=1" jsonschema_description:"Conversation to append to; created on first use."`
	Sender         string `json:"sender" jsonschema_description:"Name of the sending agent or User."`
	Receiver       string `json:"receiver" jsonschema_description:"Name of the receiving agent or User."`
	Content        string `json:"content" jsonschema_description:"Message text."`
}

type ConversationHistoryInput struct {
	ConversationID string `json:"conversation_id" jsonschema_description:"Conversation to read."`
}

type RecentConversationsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"minimum=0" jsonschema_description:"Maximum number of conversations (default 10)."`
}

type LastMessageInput struct {
	ConversationID string `json:"conversation_id,omitempty" jsonschema_description:"Restrict to this conversation."`
	Sender         string `json:"sender,omitempty" jsonschema_description:"Restrict to this sender."`
	Receiver       string `json:"receiver,omitempty" jsonschema_description:"Restrict to this receiver."`
}

// RegisterMemoryTools adds the memory and conversation tools backed by svc.
func RegisterMemoryTools(r *Registry, svc MemoryService) error {
	tools := []Tool{
		{
			Name:        "memory.store",
			Description: "Store a memory for an agent. Content may be plain text or a JSON object.",
			InputSchema: GenerateSchema[StoreMemoryInput](),
			Mutating:    true,
			Executor: typed(func(ctx context.Context, in StoreMemoryInput) (interface{}, error) {
				content, err := contentFrom(in.Content)
				if err != nil {
					return nil, err
				}
				return svc.StoreMemory(ctx, in.AgentName, in.MemoryType, content)
			}),
		},
		{
			Name:        "memory.retrieve",
			Description: "List an agent's memories, optionally of one type.",
			InputSchema: GenerateSchema[RetrieveMemoriesInput](),
			Executor: typed(func(ctx context.Context, in RetrieveMemoriesInput) (interface{}, error) {
				return svc.RetrieveMemories(ctx, in.AgentName, in.MemoryType)
			}),
		},
		{
			Name:        "memory.update",
			Description: "Replace the content of a memory.",
			InputSchema: GenerateSchema[UpdateMemoryInput](),
			Mutating:    true,
			Executor: typed(func(ctx context.Context, in UpdateMemoryInput) (interface{}, error) {
				content, err := contentFrom(in.Content)
				if err != nil {
					return nil, err
				}
				updated, err := svc.UpdateMemory(ctx, in.MemoryID, content)
				return map[string]bool{"updated": updated}, err
			}),
		},
		{
			Name:        "memory.delete",
			Description: "Delete a memory.",
			InputSchema: GenerateSchema[DeleteMemoryInput](),
			Mutating:    true,
			Executor: typed(func(ctx context.Context, in DeleteMemoryInput) (interface{}, error) {
				deleted, err := svc.DeleteMemory(ctx, in.MemoryID)
				return map[string]bool{"deleted": deleted}, err
			}),
		},
		{
			Name:        "memory.search",
			Description: "Find memories of any agent whose content contains the query.",
			InputSchema: GenerateSchema[SearchMemoriesInput](),
			Executor: typed(func(ctx context.Context, in SearchMemoriesInput) (interface{}, error) {
				return svc.SearchMemories(ctx, in.Query)
			}),
		},
		{
			Name:        "conversation.create",
			Description: "Create a conversation with a title.",
			InputSchema: GenerateSchema[CreateConversationInput](),
			Mutating:    true,
			Executor: typed(func(ctx context.Context, in CreateConversationInput) (interface{}, error) {
				return svc.CreateConversation(ctx, in.ConversationID, in.Title)
			}),
		},
		{
			Name:        "conversation.log",
			Description: "Append a message to a conversation.",
			InputSchema: GenerateSchema[LogMessageInput](),
			Mutating:    true,
			Executor: typed(func(ctx context.Context, in LogMessageInput) (interface{}, error) {
				return svc.AddMessage(ctx, in.ConversationID, in.Sender, in.Receiver, in.Content)
			}),
		},
		{
			Name:        "conversation.history",
			Description: "Read every message of a conversation, oldest first.",
			InputSchema: GenerateSchema[ConversationHistoryInput](),
			Executor: typed(func(ctx context.Context, in ConversationHistoryInput) (interface{}, error) {
				return svc.GetConversationHistory(ctx, in.ConversationID)
			}),
		},
		{
			Name:        "conversation.recent",
			Description: "List conversations by latest activity.",
			InputSchema: GenerateSchema[RecentConversationsInput](),
			Executor: typed(func(ctx context.Context, in RecentConversationsInput) (interface{}, error) {
				return svc.GetRecentConversations(ctx, in.Limit)
			}),
		},
		{
			Name:        "conversation.last_message",
			Description: "Return the newest message matching the given conversation, sender and receiver.",
			InputSchema: GenerateSchema[LastMessageInput](),
			Executor: typed(func(ctx context.Context, in LastMessageInput) (interface{}, error) {
				return svc.GetLastMessage(ctx, domain.MessageFilter{
					ConversationID: in.ConversationID,
					Sender:         in.Sender,
					Receiver:       in.Receiver,
				})
			}),
		},
	}

	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// typed decodes args into T and wraps the outcome in a Result. Numbers inside
// free-form content stay json.Number.
func typed[T any](fn func(ctx context.Context, in T) (interface{}, error)) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in T
		dec := json.NewDecoder(bytes.NewReader(args))
		dec.UseNumber()
		if err := dec.Decode(&in); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		data, err := fn(ctx, in)
		if err != nil {
			return json.Marshal(Result{OK: false, Error: err.Error()})
		}
		return json.Marshal(Result{OK: true, Data: data})
	}
}

func contentFrom(v interface{}) (domain.Content, error) {
	switch c := v.(type) {
	case string:
		return domain.TextContent(c), nil
	case map[string]interface{}:
		return domain.StructuredContent(c)
	default:
		return domain.Content{}, fmt.Errorf("%w: content must be a string or an object", domain.ErrInvalidArgument)
	}
}
