// Package service is the memory manager used by agents. Storage failures are
// logged and reported as domain.ErrOperationFailed; nothing panics past it.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dhawansolanki/weavium-ai/internal/config"
	"github.com/dhawansolanki/weavium-ai/internal/domain"
	"github.com/dhawansolanki/weavium-ai/internal/repository"
)

// Publisher receives every message after it is committed.
type Publisher interface {
	Publish(msg domain.Message)
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the sink for committed messages.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

type Service struct {
	store     store.Store
	config    *config.Config
	logger    zerolog.Logger
	publisher Publisher
}

func New(store store.Store, cfg *config.Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{
		store:  store,
		config: cfg,
		logger: logger.With().Str("component", "memory").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats summarizes what is stored.
type Stats struct {
	Conversations int `json:"conversations"`
	Memories      int `json:"memories"`
}

// Stats counts stored conversations and memories.
func (s *Service) Stats(ctx context.Context) (stats Stats, err error) {
	defer s.recoverPanic("stats", &err)

	if stats.Conversations, err = s.store.CountConversations(ctx); err != nil {
		return Stats{}, s.fail("stats", err, nil)
	}
	if stats.Memories, err = s.store.CountMemories(ctx); err != nil {
		return Stats{}, s.fail("stats", err, nil)
	}
	return stats, nil
}

// ReadOnly reports whether writes are refused.
func (s *Service) ReadOnly() bool {
	return s.config.ReadOnly
}

type fields map[string]interface{}

// fail logs err and wraps it in ErrOperationFailed.
func (s *Service) fail(op string, err error, f fields) error {
	event := s.logger.Error()
	if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrPolicyDenied) {
		event = s.logger.Warn()
	}
	event.Err(err).Str("op", op).Fields(map[string]interface{}(f)).Msg("memory operation failed")
	return fmt.Errorf("%w: %s: %w", domain.ErrOperationFailed, op, err)
}

func (s *Service) invalid(op, msg string, f fields) error {
	return s.fail(op, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, msg), f)
}

func (s *Service) checkWritable(op string, f fields) error {
	if s.config.ReadOnly {
		return s.fail(op, fmt.Errorf("%w: memory store is read-only", domain.ErrPolicyDenied), f)
	}
	return nil
}

// recoverPanic turns a panic in op into ErrOperationFailed. It must be deferred.
func (s *Service) recoverPanic(op string, errp *error) {
	if r := recover(); r != nil {
		s.logger.Error().Str("op", op).Interface("panic", r).Msg("memory operation panicked")
		*errp = fmt.Errorf("%w: %s: panic: %v", domain.ErrOperationFailed, op, r)
	}
}

func (s *Service) publish(msg domain.Message) {
	if s.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Int64("message_id", msg.ID).Msg("publisher panicked")
		}
	}()
	s.publisher.Publish(msg)
}
