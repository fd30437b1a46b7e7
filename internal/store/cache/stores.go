package cache

import (
	"context"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// Key shapes. Derived keys embed the entity id so Invalidate(id) reaches them.
func msgKey(id string) string        { return "msg:" + id }
func taskKey(id string) string       { return "task:" + id }
func convKey(id string) string       { return "conv:" + id }
func botTasksKey(agent string) string { return "bot_tasks:" + agent }
func botStatsKey(agent string) string { return "bot_stats:" + agent }
func statusKey(s store.TaskStatus) string { return "tasks_status:" + string(s) }

// Messages is a read-through cache over a MessageStore. A cache read error
// is impossible by construction; a stale miss simply falls through to the
// underlying store.
type Messages struct {
	inner store.MessageStore
	cache *Cache
}

// NewMessages wraps inner with the shared cache.
func NewMessages(inner store.MessageStore, c *Cache) *Messages {
	return &Messages{inner: inner, cache: c}
}

var _ store.MessageStore = (*Messages)(nil)

func (m *Messages) SaveMessage(ctx context.Context, msg store.Message) error {
	if err := m.inner.SaveMessage(ctx, msg); err != nil {
		return err
	}
	m.cache.Invalidate(msg.ID)
	m.cache.Invalidate(msg.ConversationID)
	return nil
}

func (m *Messages) GetMessage(ctx context.Context, id string) (store.Message, error) {
	if v, ok := m.cache.Get(msgKey(id)); ok {
		return v.(store.Message), nil
	}
	msg, err := m.inner.GetMessage(ctx, id)
	if err != nil {
		return store.Message{}, err
	}
	m.cache.Set(msgKey(id), msg)
	return msg, nil
}

func (m *Messages) GetConversation(ctx context.Context, conversationID string) ([]store.Message, error) {
	if v, ok := m.cache.Get(convKey(conversationID)); ok {
		return v.([]store.Message), nil
	}
	msgs, err := m.inner.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	m.cache.Set(convKey(conversationID), msgs)
	return msgs, nil
}

// SearchMessages is never cached: queries are too varied to key coarsely.
func (m *Messages) SearchMessages(ctx context.Context, query string, filter store.MessageFilter) ([]store.Message, error) {
	return m.inner.SearchMessages(ctx, query, filter)
}

// Tasks is a read-through cache over a TaskStore.
type Tasks struct {
	inner store.TaskStore
	cache *Cache
}

// NewTasks wraps inner with the shared cache.
func NewTasks(inner store.TaskStore, c *Cache) *Tasks {
	return &Tasks{inner: inner, cache: c}
}

var _ store.TaskStore = (*Tasks)(nil)

func (t *Tasks) SaveTask(ctx context.Context, task store.Task) error {
	if err := t.inner.SaveTask(ctx, task); err != nil {
		return err
	}
	t.cache.Invalidate(task.ID)
	if task.AssignedTo != "" {
		t.cache.Invalidate(task.AssignedTo)
	}
	// A status change moves the task out of a listing we cannot name from
	// here, so every status listing goes.
	t.cache.InvalidatePrefix("tasks_status:")
	return nil
}

func (t *Tasks) GetTask(ctx context.Context, id string) (store.Task, error) {
	if v, ok := t.cache.Get(taskKey(id)); ok {
		return v.(store.Task), nil
	}
	task, err := t.inner.GetTask(ctx, id)
	if err != nil {
		return store.Task{}, err
	}
	t.cache.Set(taskKey(id), task)
	return task, nil
}

func (t *Tasks) GetTasksByStatus(ctx context.Context, status store.TaskStatus) ([]store.Task, error) {
	if v, ok := t.cache.Get(statusKey(status)); ok {
		return v.([]store.Task), nil
	}
	tasks, err := t.inner.GetTasksByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	t.cache.Set(statusKey(status), tasks)
	return tasks, nil
}

func (t *Tasks) GetTasksByAssignee(ctx context.Context, agentID string) ([]store.Task, error) {
	if v, ok := t.cache.Get(botTasksKey(agentID)); ok {
		return v.([]store.Task), nil
	}
	tasks, err := t.inner.GetTasksByAssignee(ctx, agentID)
	if err != nil {
		return nil, err
	}
	t.cache.Set(botTasksKey(agentID), tasks)
	return tasks, nil
}

func (t *Tasks) DeleteTask(ctx context.Context, id string) error {
	if err := t.inner.DeleteTask(ctx, id); err != nil {
		return err
	}
	t.cache.Invalidate(id)
	t.cache.Purge() // status listings may still hold the deleted row
	return nil
}

func (t *Tasks) BotStats(ctx context.Context, agentID string) (store.BotTaskStats, error) {
	if v, ok := t.cache.Get(botStatsKey(agentID)); ok {
		return v.(store.BotTaskStats), nil
	}
	stats, err := t.inner.BotStats(ctx, agentID)
	if err != nil {
		return store.BotTaskStats{}, err
	}
	t.cache.Set(botStatsKey(agentID), stats)
	return stats, nil
}
