package bus

// OutboundMessage is a message to be delivered to a chat channel.
// Channel adapters are external; this is the shape they accept.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ChannelPublisher abstracts outbound delivery to channel adapters.
// The core never talks to a concrete adapter.
type ChannelPublisher interface {
	PublishOutbound(msg OutboundMessage)
}

// AgentInfo is a bus registration record.
type AgentInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Domain      string `json:"domain"`
}
