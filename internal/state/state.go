// Package state defines the typed records that flow through the
// conversation and swarm graphs. It is the single source of truth for
// orchestration state.
package state

import (
	"time"
)

// InputType classifies an incoming message.
type InputType string

const (
	InputDeterministicCommand InputType = "deterministic_command" // /help, /status, etc.
	InputCodebaseCommand      InputType = "codebase_command"      // /command-invoke
	InputTemplateCommand      InputType = "template_command"      // global templates
	InputAIQuery              InputType = "ai_query"              // regular conversation
	InputSwarmRequest         InputType = "swarm_request"         // multi-agent execution
)

// InputTypes lists every defined classification, in declaration order.
// The router must map all of them.
func InputTypes() []InputType {
	return []InputType{
		InputDeterministicCommand,
		InputCodebaseCommand,
		InputTemplateCommand,
		InputAIQuery,
		InputSwarmRequest,
	}
}

// Phase is a conversation's position in the execution lattice. Phases only
// move forward; the single allowed regression target is PhaseError.
type Phase string

const (
	PhaseInputReceived    Phase = "input_received"
	PhaseInputParsed      Phase = "input_parsed"
	PhaseContextLoaded    Phase = "context_loaded"
	PhaseCommandRouting   Phase = "command_routing"
	PhaseCommandExecuted  Phase = "command_executed"
	PhaseSessionPrepared  Phase = "session_prepared"
	PhaseAIExecuting      Phase = "ai_executing"
	PhaseAICompleted      Phase = "ai_completed"
	PhaseSwarmCompleted   Phase = "swarm_completed"
	PhaseResponseSent     Phase = "response_sent"
	PhaseError            Phase = "error"
	PhaseCompleted        Phase = "completed"
)

// Terminal reports whether the phase ends graph execution.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// SwarmPhase tracks a swarm's position in its own lattice.
type SwarmPhase string

const (
	SwarmDecomposing  SwarmPhase = "decomposing"
	SwarmSpawning     SwarmPhase = "spawning"
	SwarmRunning      SwarmPhase = "running"
	SwarmSynthesizing SwarmPhase = "synthesizing"
	SwarmCompleted    SwarmPhase = "completed"
	SwarmFailed       SwarmPhase = "failed"
)

// AgentRole is the specialization of a swarm agent.
type AgentRole string

const (
	RoleArchitect   AgentRole = "architect"
	RoleImplementer AgentRole = "implementer"
	RoleReviewer    AgentRole = "reviewer"
	RoleTester      AgentRole = "tester"
	RoleResearcher  AgentRole = "researcher"
	RoleSecurity    AgentRole = "security"
	RolePerformance AgentRole = "performance"
)

// TaskStatus is a sub-task's lifecycle state. Transitions are strictly
// pending -> ready -> running -> completed|failed.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Priority tiers for decomposed sub-tasks.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry in the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ParsedCommand is the result of parsing a slash command.
type ParsedCommand struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Raw     string   `json:"raw"`
}

// ConversationContext is the persisted binding for a conversation:
// which codebase it works against and where.
type ConversationContext struct {
	ConversationID     string `json:"conversation_id"`
	PlatformType       string `json:"platform_type"`
	CodebaseID         string `json:"codebase_id,omitempty"`
	CodebaseName       string `json:"codebase_name,omitempty"`
	Cwd                string `json:"cwd,omitempty"`
	AssistantSessionID string `json:"assistant_session_id,omitempty"`
}

// AIResult records the outcome of one LLM gateway call.
type AIResult struct {
	Success      bool   `json:"success"`
	SessionID    string `json:"session_id,omitempty"`
	Error        string `json:"error,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// SubTask is one decomposed unit of swarm work.
type SubTask struct {
	ID            string     `json:"id"`
	Role          AgentRole  `json:"role"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Prompt        string     `json:"prompt"`
	Dependencies  []string   `json:"dependencies"`
	Priority      Priority   `json:"priority"`
	RequiresTools bool       `json:"requires_tools"`
	Status        TaskStatus `json:"status"`
}

// AgentResult is the immutable record produced once per completed sub-task.
type AgentResult struct {
	SubTaskID       string    `json:"sub_task_id"`
	Role            AgentRole `json:"role"`
	Summary         string    `json:"summary"`
	Details         string    `json:"details,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	Success         bool      `json:"success"`
	DurationMs      int64     `json:"duration_ms"`
	TokensUsed      int       `json:"tokens_used"`
}

// SwarmResult is the synthesized outcome folded back into the conversation.
type SwarmResult struct {
	SwarmID         string   `json:"swarm_id"`
	Status          string   `json:"status"` // completed or failed
	Summary         string   `json:"summary"`
	AgentCount      int      `json:"agent_count"`
	CompletedCount  int      `json:"completed_count"`
	FailedCount     int      `json:"failed_count"`
	DurationMs      int64    `json:"duration_ms"`
	TotalTokens     int      `json:"total_tokens"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ConversationState flows through the conversation graph. One instance per
// incoming message. Once Phase is terminal the state is treated as immutable.
type ConversationState struct {
	// Input
	ConversationID string `json:"conversation_id"`
	PlatformType   string `json:"platform_type"`
	RawMessage     string `json:"raw_message"`
	IssueContext   string `json:"issue_context,omitempty"`
	ThreadContext  string `json:"thread_context,omitempty"`

	// History (append-only, order-preserving)
	Messages []Message `json:"messages"`

	// Classification
	InputType     InputType      `json:"input_type,omitempty"`
	ParsedCommand *ParsedCommand `json:"parsed_command,omitempty"`
	CommandName   string         `json:"command_name,omitempty"`

	// Resolved context
	Context *ConversationContext `json:"context,omitempty"`

	// Prompt
	PromptToSend   string `json:"prompt_to_send,omitempty"`
	SkipAI         bool   `json:"skip_ai"`
	DirectResponse string `json:"direct_response,omitempty"`

	// Execution results
	AIResult    *AIResult    `json:"ai_result,omitempty"`
	SwarmResult *SwarmResult `json:"swarm_result,omitempty"`

	// Error handling
	Error       string `json:"error,omitempty"`
	WasAborted  bool   `json:"was_aborted"`

	// Tracking
	Phase         Phase     `json:"phase"`
	StartedAt     time.Time `json:"started_at"`
	ResponsesSent []string  `json:"responses_sent"`
}

// SwarmState flows through the swarm subgraph. It lives only for the
// duration of one swarm run; the synthesized summary is folded back into
// the owning conversation.
type SwarmState struct {
	SwarmID        string `json:"swarm_id"`
	ConversationID string `json:"conversation_id"`
	UserRequest    string `json:"user_request"`
	Cwd            string `json:"cwd"`

	SubTasks []SubTask `json:"sub_tasks"`
	Strategy string    `json:"strategy,omitempty"` // informational only, never gates scheduling

	RunningAgents    []string      `json:"running_agents"`
	CompletedResults []AgentResult `json:"completed_results"`

	SynthesizedSummary string `json:"synthesized_summary,omitempty"`

	Phase     SwarmPhase `json:"phase"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
}

// NewConversationState creates the initial state for an incoming message.
func NewConversationState(conversationID, platformType, message string) ConversationState {
	return ConversationState{
		ConversationID: conversationID,
		PlatformType:   platformType,
		RawMessage:     message,
		Phase:          PhaseInputReceived,
		StartedAt:      time.Now().UTC(),
	}
}

// NewSwarmState creates the initial state for a swarm run.
func NewSwarmState(swarmID, conversationID, userRequest, cwd string) SwarmState {
	return SwarmState{
		SwarmID:        swarmID,
		ConversationID: conversationID,
		UserRequest:    userRequest,
		Cwd:            cwd,
		Phase:          SwarmDecomposing,
		StartedAt:      time.Now().UTC(),
	}
}

// LastAssistantMessage returns the content of the most recent assistant
// message, or false if the history has none.
func (s *ConversationState) LastAssistantMessage() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content, true
		}
	}
	return "", false
}
