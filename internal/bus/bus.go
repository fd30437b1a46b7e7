// Package bus is the in-process inter-agent message bus: registration,
// team fan-out and direct delivery, per-agent inboxes, conversation
// threading, and substring search. Delivery is synchronous; Publish
// returns after every inbox is updated.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// DefaultHistoryLimit bounds the global message log. Oldest messages drop
// silently on overflow.
const DefaultHistoryLimit = 1000

// MessageBus fans messages between registered agents.
type MessageBus struct {
	mu            sync.Mutex
	agents        map[string]AgentInfo
	agentOrder    []string // insertion order, for deterministic fan-out
	inboxes       map[string][]store.Message
	history       []store.Message
	historyLimit  int
	conversations map[string]*store.Conversation
	sink          store.MessageStore // optional durable write-through
	publisher     ChannelPublisher   // optional outbound channel adapter
	logger        *slog.Logger
}

// Option configures a MessageBus.
type Option func(*MessageBus)

// WithSink writes every published message through to a durable store.
func WithSink(s store.MessageStore) Option {
	return func(b *MessageBus) { b.sink = s }
}

// WithChannelPublisher routes outbound deliveries to a channel adapter.
func WithChannelPublisher(p ChannelPublisher) Option {
	return func(b *MessageBus) { b.publisher = p }
}

// WithHistoryLimit overrides the global log bound.
func WithHistoryLimit(n int) Option {
	return func(b *MessageBus) {
		if n > 0 {
			b.historyLimit = n
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *MessageBus) { b.logger = l }
}

// New creates an empty bus.
func New(opts ...Option) *MessageBus {
	b := &MessageBus{
		agents:        make(map[string]AgentInfo),
		inboxes:       make(map[string][]store.Message),
		conversations: make(map[string]*store.Conversation),
		historyLimit:  DefaultHistoryLimit,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Register adds an agent to the bus. Re-registering updates the info in place.
func (b *MessageBus) Register(info AgentInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.agents[info.ID]; !exists {
		b.agentOrder = append(b.agentOrder, info.ID)
		b.inboxes[info.ID] = nil
	}
	b.agents[info.ID] = info
}

// Agents returns registered agents in registration order.
func (b *MessageBus) Agents() []AgentInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]AgentInfo, 0, len(b.agentOrder))
	for _, id := range b.agentOrder {
		out = append(out, b.agents[id])
	}
	return out
}

// Publish delivers a message. Recipient "team" fans out to every registered
// agent except the sender; otherwise the message lands in the recipient's
// inbox. Unregistered senders are warned but not blocked.
func (b *MessageBus) Publish(ctx context.Context, msg store.Message) (store.Message, error) {
	b.mu.Lock()
	if msg.ID == "" {
		msg.ID = store.GenNewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.ConversationID == "" {
		msg.ConversationID = store.GenNewID()
	}

	if _, ok := b.agents[msg.Sender]; !ok {
		b.logger.Warn("bus: message from unregistered sender", "sender", msg.Sender)
	}

	if msg.Recipient == store.RecipientTeam {
		for _, id := range b.agentOrder {
			if id == msg.Sender {
				continue
			}
			b.inboxes[id] = append(b.inboxes[id], msg)
		}
	} else {
		b.inboxes[msg.Recipient] = append(b.inboxes[msg.Recipient], msg)
	}

	b.history = append(b.history, msg)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
	b.attachToConversation(msg)
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		if err := sink.SaveMessage(ctx, msg); err != nil {
			return msg, fmt.Errorf("persist message: %w", err)
		}
	}
	return msg, nil
}

// attachToConversation appends msg to its conversation, creating it on
// first sight. Caller holds b.mu.
func (b *MessageBus) attachToConversation(msg store.Message) {
	conv, ok := b.conversations[msg.ConversationID]
	if !ok {
		conv = &store.Conversation{
			ID:        msg.ConversationID,
			Initiator: msg.Sender,
			Subject:   subjectFrom(msg.Content),
			CreatedAt: msg.Timestamp,
		}
		b.conversations[msg.ConversationID] = conv
	}
	conv.Messages = append(conv.Messages, msg)
	if msg.Timestamp.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.Timestamp
	}
	addParticipant(conv, msg.Sender)
	if msg.Recipient != store.RecipientTeam {
		addParticipant(conv, msg.Recipient)
	}
}

// PublishOutbound hands a message to the configured channel adapter.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) error {
	b.mu.Lock()
	p := b.publisher
	b.mu.Unlock()
	if p == nil {
		return fmt.Errorf("no channel publisher configured")
	}
	p.PublishOutbound(msg)
	return nil
}

// Inbox returns and does not clear the agent's pending messages, FIFO.
func (b *MessageBus) Inbox(agentID string) []store.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]store.Message, len(b.inboxes[agentID]))
	copy(out, b.inboxes[agentID])
	return out
}

// ClearInbox drops the agent's pending messages and returns how many.
func (b *MessageBus) ClearInbox(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.inboxes[agentID])
	b.inboxes[agentID] = nil
	return n
}

// Search does substring search over the global log with optional sender
// and type filters, newest first.
func (b *MessageBus) Search(query string, filter store.MessageFilter) []store.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	needle := strings.ToLower(query)
	var out []store.Message
	for i := len(b.history) - 1; i >= 0; i-- {
		m := b.history[i]
		if needle != "" && !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		if filter.Sender != "" && m.Sender != filter.Sender {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Conversation returns a copy of a conversation, or false.
func (b *MessageBus) Conversation(id string) (store.Conversation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conv, ok := b.conversations[id]
	if !ok {
		return store.Conversation{}, false
	}
	return copyConversation(conv), true
}

// ConversationsFor lists conversations the agent participates in, sorted by
// last message, most recent first.
func (b *MessageBus) ConversationsFor(agentID string) []store.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []store.Conversation
	for _, conv := range b.conversations {
		for _, p := range conv.Participants {
			if p == agentID {
				out = append(out, copyConversation(conv))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// Summarize renders the last 10 messages of a conversation as plain text.
func (b *MessageBus) Summarize(conversationID string) string {
	conv, ok := b.Conversation(conversationID)
	if !ok {
		return ""
	}
	msgs := conv.Messages
	if len(msgs) > 10 {
		msgs = msgs[len(msgs)-10:]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation %s — %s\n", conv.ID, conv.Subject)
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s] %s → %s (%s): %s\n",
			m.Timestamp.Format("15:04:05"), m.Sender, m.Recipient, m.Type, m.Content)
	}
	return sb.String()
}

func addParticipant(conv *store.Conversation, id string) {
	for _, p := range conv.Participants {
		if p == id {
			return
		}
	}
	conv.Participants = append(conv.Participants, id)
}

func copyConversation(conv *store.Conversation) store.Conversation {
	cp := *conv
	cp.Messages = make([]store.Message, len(conv.Messages))
	copy(cp.Messages, conv.Messages)
	cp.Participants = make([]string, len(conv.Participants))
	copy(cp.Participants, conv.Participants)
	return cp
}

// subjectFrom derives a short conversation subject from the first message.
func subjectFrom(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		content = content[:idx]
	}
	const maxLen = 60
	if len(content) > maxLen {
		return content[:maxLen] + "…"
	}
	return content
}
