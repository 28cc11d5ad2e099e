package natsbus

import (
	"encoding/json"
	"time"
)

// EventType tags every envelope on the wire.
type EventType string

const (
	// Inbound
	EventRequest EventType = "request"
	EventStop    EventType = "stop"

	// Outbound
	EventResponse EventType = "response"
	EventError    EventType = "error"

	// AI streaming
	EventAIStart    EventType = "ai_start"
	EventAIChunk    EventType = "ai_chunk"
	EventAIComplete EventType = "ai_complete"
	EventAIError    EventType = "ai_error"

	// Commands
	EventCommandStart     EventType = "command_start"
	EventCommandComplete  EventType = "command_complete"
	EventOperationStopped EventType = "operation_stopped"

	// Swarm
	EventSwarmStart          EventType = "swarm_start"
	EventSwarmTaskDecomposed EventType = "swarm_task_decomposed"
	EventSwarmAgentSpawned   EventType = "swarm_agent_spawned"
	EventSwarmAgentProgress  EventType = "swarm_agent_progress"
	EventSwarmAgentComplete  EventType = "swarm_agent_complete"
	EventSwarmComplete       EventType = "swarm_complete"

	// Control
	EventHealth EventType = "health"
	EventPing   EventType = "ping"
	EventPong   EventType = "pong"
)

// Envelope is the wire format shared with the platform.
type Envelope struct {
	Type           EventType      `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Timestamp      string         `json:"timestamp"`
	Data           map[string]any `json:"data"`
}

// NewEnvelope stamps an envelope with the current UTC time.
func NewEnvelope(t EventType, conversationID string, data map[string]any) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		Type:           t,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Data:           data,
	}
}

// ParseEnvelope decodes an envelope from wire bytes.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
