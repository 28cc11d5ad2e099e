package natsbus

import (
	"log/slog"
)

// Publisher emits envelopes on the conversation-scoped channels.
// Publishing is best-effort: the owning conversation has already
// computed its result, so a failed publish is logged and dropped, never
// retried and never fatal.
type Publisher struct {
	client *Client
	prefix string
}

func NewPublisher(client *Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Emit publishes an event envelope on the events channel for a
// conversation. Response envelopes go to the response channel instead.
func (p *Publisher) Emit(t EventType, conversationID string, data map[string]any) {
	if p == nil || p.client == nil {
		return
	}

	channel := ChannelEvents(p.prefix, conversationID)
	if t == EventResponse {
		channel = ChannelResponse(p.prefix, conversationID)
	}

	env := NewEnvelope(t, conversationID, data)
	if err := p.client.PublishJSON(channel, env); err != nil {
		slog.Warn("event publish failed", "type", t, "conversation", conversationID, "error", err)
	}
	if err := p.client.PublishJSON(ChannelFirehose(p.prefix), env); err != nil {
		slog.Warn("firehose publish failed", "type", t, "error", err)
	}
}

// EmitResponse publishes a response message for a conversation.
func (p *Publisher) EmitResponse(conversationID, message string, meta map[string]any) {
	data := map[string]any{"message": message}
	for k, v := range meta {
		data[k] = v
	}
	p.Emit(EventResponse, conversationID, data)
}

// EmitControl publishes an envelope on the shared control channel.
func (p *Publisher) EmitControl(t EventType, data map[string]any) {
	if p == nil || p.client == nil {
		return
	}
	env := NewEnvelope(t, "", data)
	if err := p.client.PublishJSON(ChannelControl(p.prefix), env); err != nil {
		slog.Warn("control publish failed", "type", t, "error", err)
	}
	if err := p.client.PublishJSON(ChannelFirehose(p.prefix), env); err != nil {
		slog.Warn("firehose publish failed", "type", t, "error", err)
	}
}
