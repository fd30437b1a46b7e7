package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goswarm/internal/bus"
	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// ============================================================
// send_message
// ============================================================

type SendMessageTool struct {
	msgBus *bus.MessageBus
}

func NewSendMessageTool(b *bus.MessageBus) *SendMessageTool {
	return &SendMessageTool{msgBus: b}
}

func (t *SendMessageTool) Name() string { return "send_message" }
func (t *SendMessageTool) Description() string {
	return "Send a message to another agent or broadcast to the whole team. Use recipient \"team\" to broadcast."
}

func (t *SendMessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"recipient": map[string]interface{}{
				"type":        "string",
				"description": "Target agent id, or \"team\" for broadcast",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Message content",
			},
			"type": map[string]interface{}{
				"type":        "string",
				"description": "Message type: request, response, or broadcast",
			},
			"response_to": map[string]interface{}{
				"type":        "string",
				"description": "Message id this responds to",
			},
		},
		"required": []string{"recipient", "content"},
	}
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.msgBus == nil {
		return ErrorResult("message bus not available")
	}
	recipient, _ := args["recipient"].(string)
	content, _ := args["content"].(string)
	if recipient == "" {
		return ErrorResult("recipient is required")
	}
	if content == "" {
		return ErrorResult("content is required")
	}

	msgType := store.MessageRequest
	if v, _ := args["type"].(string); v != "" {
		msgType = store.MessageType(v)
	}
	if recipient == store.RecipientTeam {
		msgType = store.MessageBroadcast
	}
	responseTo, _ := args["response_to"].(string)

	msg, err := t.msgBus.Publish(ctx, store.Message{
		Sender:     senderFromContext(ctx),
		Recipient:  recipient,
		Type:       msgType,
		Content:    content,
		ResponseTo: responseTo,
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("publish failed: %s", err)).WithError(err)
	}
	return SilentResult(fmt.Sprintf(`{"status":"sent","message_id":"%s","conversation_id":"%s"}`,
		msg.ID, msg.ConversationID))
}

// ============================================================
// search_messages
// ============================================================

type SearchMessagesTool struct {
	msgBus *bus.MessageBus
}

func NewSearchMessagesTool(b *bus.MessageBus) *SearchMessagesTool {
	return &SearchMessagesTool{msgBus: b}
}

func (t *SearchMessagesTool) Name() string { return "search_messages" }
func (t *SearchMessagesTool) Description() string {
	return "Search past team messages by content substring, optionally filtered by sender."
}

func (t *SearchMessagesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Case-insensitive substring to search for",
			},
			"sender": map[string]interface{}{
				"type":        "string",
				"description": "Only messages from this agent",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": "Maximum results (default 20)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchMessagesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.msgBus == nil {
		return ErrorResult("message bus not available")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	sender, _ := args["sender"].(string)
	limit := 20
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	matches := t.msgBus.Search(query, store.MessageFilter{Sender: sender, Limit: limit})
	if len(matches) == 0 {
		return NewResult("no messages matched")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d message(s):\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(&sb, "[%s] %s -> %s: %s\n",
			m.Timestamp.Format("2006-01-02 15:04"), m.Sender, m.Recipient, preview(m.Content, 120))
	}
	return NewResult(sb.String())
}

// ============================================================
// check_inbox
// ============================================================

type CheckInboxTool struct {
	msgBus *bus.MessageBus
}

func NewCheckInboxTool(b *bus.MessageBus) *CheckInboxTool {
	return &CheckInboxTool{msgBus: b}
}

func (t *CheckInboxTool) Name() string { return "check_inbox" }
func (t *CheckInboxTool) Description() string {
	return "Read and clear the calling agent's pending messages."
}

func (t *CheckInboxTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *CheckInboxTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.msgBus == nil {
		return ErrorResult("message bus not available")
	}
	agentID := senderFromContext(ctx)
	msgs := t.msgBus.Inbox(agentID)
	if len(msgs) == 0 {
		return SilentResult(`{"status":"empty"}`)
	}
	t.msgBus.ClearInbox(agentID)

	out, err := json.Marshal(msgs)
	if err != nil {
		return ErrorResult("could not encode inbox").WithError(err)
	}
	return NewResult(string(out))
}

// ============================================================
// helpers
// ============================================================

type ctxKey string

// CtxAgentID carries the calling agent's id through tool execution.
const CtxAgentID ctxKey = "agent_id"

// WithAgentID stamps the calling agent onto the context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, CtxAgentID, agentID)
}

func senderFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(CtxAgentID).(string); ok && id != "" {
		return id
	}
	return "system"
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
