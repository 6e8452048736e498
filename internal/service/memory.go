package service

import (
	"context"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

// StoreMemory appends a memory for an agent. Storing the same content twice
// yields two memories.
func (s *Service) StoreMemory(ctx context.Context, agentName, memoryType string, content domain.Content) (mem *domain.Memory, err error) {
	const op = "store_memory"
	defer s.recoverPanic(op, &err)

	f := fields{"agent_name": agentName, "memory_type": memoryType}
	if agentName == "" {
		return nil, s.invalid(op, "agent name is required", f)
	}
	if err := s.checkWritable(op, f); err != nil {
		return nil, err
	}

	mem = &domain.Memory{AgentName: agentName, MemoryType: memoryType, Content: content}
	if err := s.store.CreateMemory(ctx, mem); err != nil {
		return nil, s.fail(op, err, f)
	}
	s.logger.Debug().Int64("memory_id", mem.ID).Str("agent_name", agentName).Msg("memory stored")
	return mem, nil
}

// RetrieveMemories returns an agent's memories. An empty memoryType returns
// every type.
func (s *Service) RetrieveMemories(ctx context.Context, agentName, memoryType string) (memories []domain.Memory, err error) {
	const op = "retrieve_memories"
	defer s.recoverPanic(op, &err)
	defer func() {
		if memories == nil {
			memories = []domain.Memory{}
		}
	}()

	memories, err = s.store.ListMemories(ctx, agentName, memoryType)
	if err != nil {
		return nil, s.fail(op, err, fields{"agent_name": agentName, "memory_type": memoryType})
	}
	return memories, nil
}

// UpdateMemory replaces a memory's content. It returns false when no memory
// has that id.
func (s *Service) UpdateMemory(ctx context.Context, id int64, content domain.Content) (updated bool, err error) {
	const op = "update_memory"
	defer s.recoverPanic(op, &err)

	f := fields{"memory_id": id}
	if err := s.checkWritable(op, f); err != nil {
		return false, err
	}
	updated, err = s.store.UpdateMemoryContent(ctx, id, content)
	if err != nil {
		return false, s.fail(op, err, f)
	}
	return updated, nil
}

// DeleteMemory removes a memory. It returns false when no memory has that id.
func (s *Service) DeleteMemory(ctx context.Context, id int64) (deleted bool, err error) {
	const op = "delete_memory"
	defer s.recoverPanic(op, &err)

	f := fields{"memory_id": id}
	if err := s.checkWritable(op, f); err != nil {
		return false, err
	}
	deleted, err = s.store.DeleteMemory(ctx, id)
	if err != nil {
		return false, s.fail(op, err, f)
	}
	return deleted, nil
}

// SearchMemories returns memories of every agent whose content contains
// query. Matching ignores ASCII case.
func (s *Service) SearchMemories(ctx context.Context, query string) (memories []domain.Memory, err error) {
	const op = "search_memories"
	defer s.recoverPanic(op, &err)
	defer func() {
		if memories == nil {
			memories = []domain.Memory{}
		}
	}()

	memories, err = s.store.SearchMemories(ctx, query)
	if err != nil {
		return nil, s.fail(op, err, fields{"query": query})
	}
	return memories, nil
}
