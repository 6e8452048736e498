package service

import (
	"context"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

// CreateConversation registers a conversation. An empty title becomes the
// default "Conversation {id}".
func (s *Service) CreateConversation(ctx context.Context, conversationID, title string) (conv *domain.Conversation, err error) {
	const op = "create_conversation"
	defer s.recoverPanic(op, &err)

	f := fields{"conversation_id": conversationID}
	if conversationID == "" {
		return nil, s.invalid(op, "conversation id is required", f)
	}
	if err := s.checkWritable(op, f); err != nil {
		return nil, err
	}
	if title == "" {
		title = domain.DefaultConversationTitle(conversationID)
	}

	conv = &domain.Conversation{ConversationID: conversationID, Title: title}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, s.fail(op, err, f)
	}
	s.logger.Debug().Str("conversation_id", conversationID).Msg("conversation created")
	return conv, nil
}

// AddMessage records a message, creating its conversation on first use.
func (s *Service) AddMessage(ctx context.Context, conversationID, sender, receiver, content string) (msg *domain.Message, err error) {
	const op = "add_message"
	defer s.recoverPanic(op, &err)

	f := fields{"conversation_id": conversationID, "sender": sender, "receiver": receiver}
	if conversationID == "" {
		return nil, s.invalid(op, "conversation id is required", f)
	}
	if err := s.checkWritable(op, f); err != nil {
		return nil, err
	}

	msg = &domain.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Receiver:       receiver,
		Content:        content,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, s.fail(op, err, f)
	}
	s.publish(*msg)
	return msg, nil
}

// GetConversationHistory returns a conversation's messages, oldest first.
func (s *Service) GetConversationHistory(ctx context.Context, conversationID string) (messages []domain.Message, err error) {
	const op = "get_conversation_history"
	defer s.recoverPanic(op, &err)
	defer func() {
		if messages == nil {
			messages = []domain.Message{}
		}
	}()

	messages, err = s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, s.fail(op, err, fields{"conversation_id": conversationID})
	}
	return messages, nil
}

// GetRecentConversations returns up to limit conversations by latest
// activity. A non-positive limit uses the configured default.
func (s *Service) GetRecentConversations(ctx context.Context, limit int) (conversations []domain.Conversation, err error) {
	const op = "get_recent_conversations"
	defer s.recoverPanic(op, &err)
	defer func() {
		if conversations == nil {
			conversations = []domain.Conversation{}
		}
	}()

	if limit <= 0 {
		limit = s.config.RecentLimit
	}
	conversations, err = s.store.ListRecentConversations(ctx, limit)
	if err != nil {
		return nil, s.fail(op, err, fields{"limit": limit})
	}
	return conversations, nil
}

// GetLastMessage returns the newest message matching filter, or nil when
// none does.
func (s *Service) GetLastMessage(ctx context.Context, filter domain.MessageFilter) (msg *domain.Message, err error) {
	const op = "get_last_message"
	defer s.recoverPanic(op, &err)

	msg, err = s.store.GetLastMessage(ctx, filter)
	if err != nil {
		return nil, s.fail(op, err, fields{
			"conversation_id": filter.ConversationID,
			"sender":          filter.Sender,
			"receiver":        filter.Receiver,
		})
	}
	return msg, nil
}
