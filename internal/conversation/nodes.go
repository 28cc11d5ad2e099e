// Package conversation implements the message-handling pipeline: parse
// and classify input, resolve the conversation's context, route to the
// command executor, the prompt builder and AI call, or the swarm, and
// emit the final response.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ogma/internal/gateway"
	"ogma/internal/natsbus"
	"ogma/internal/state"
	"ogma/internal/store"
)

// Node names used in the conversation graph.
const (
	NodeParseInput     = "parse_input"
	NodeLoadContext    = "load_context"
	NodeRouteInput     = "route_input"
	NodeExecuteCommand = "execute_command"
	NodeBuildPrompt    = "build_prompt"
	NodeExecuteAI      = "execute_ai"
	NodeExecuteSwarm   = "execute_swarm"
	NodeSendResponse   = "send_response"
	NodeErrorHandler   = "error_handler"
)

const defaultCwd = "/home/user"

// ContextLoader resolves conversation bindings from persistent storage.
type ContextLoader interface {
	GetContext(conversationID string) (*state.ConversationContext, error)
}

// TemplateLoader resolves command templates.
type TemplateLoader interface {
	GetTemplate(name, codebaseID string) (*store.Template, error)
	ListTemplates(codebaseID string) ([]store.Template, error)
}

// EventSink receives progress events. Implementations must be best-effort:
// a failed emit never propagates back into the conversation.
type EventSink interface {
	Emit(t natsbus.EventType, conversationID string, data map[string]any)
	EmitResponse(conversationID, message string, meta map[string]any)
}

// Nodes bundles the node functions of the conversation graph with their
// collaborators. All fields except Model may be nil, in which case the
// corresponding behavior degrades to defaults.
type Nodes struct {
	Contexts  ContextLoader
	Templates TemplateLoader
	Gateway   gateway.Client
	Events    EventSink
	Model     string
}

func (n *Nodes) emit(t natsbus.EventType, conversationID string, data map[string]any) {
	if n.Events != nil {
		n.Events.Emit(t, conversationID, data)
	}
}

// ParseInput classifies the raw message. First node in the graph.
func (n *Nodes) ParseInput(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	message := strings.TrimSpace(s.RawMessage)

	slog.Info("parsing input", "conversation", s.ConversationID, "length", len(message))

	if strings.HasPrefix(message, commandPrefix) {
		parsed := ParseCommand(message)
		if parsed == nil {
			s.Error = "failed to parse command"
			s.Phase = state.PhaseError
			return s, nil
		}
		s.ParsedCommand = parsed
		s.CommandName = parsed.Command
		s.InputType = Classify(parsed)
	} else {
		s.InputType = state.InputAIQuery
	}

	s.Phase = state.PhaseInputParsed
	slog.Info("input classified", "type", s.InputType, "command", s.CommandName)
	return s, nil
}

// LoadContext resolves the conversation's codebase binding and working
// directory. A lookup miss and a failing store both fall back to a
// default context: deterministic commands and plain AI queries must work
// without a bound codebase.
func (n *Nodes) LoadContext(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	var loaded *state.ConversationContext
	if n.Contexts != nil {
		c, err := n.Contexts.GetContext(s.ConversationID)
		switch {
		case err == nil:
			loaded = c
		case errors.Is(err, store.ErrNotFound):
			slog.Debug("no stored context", "conversation", s.ConversationID)
		default:
			slog.Warn("context load failed, using defaults", "conversation", s.ConversationID, "error", err)
		}
	}

	if loaded == nil {
		loaded = &state.ConversationContext{
			ConversationID: s.ConversationID,
			PlatformType:   s.PlatformType,
			Cwd:            defaultCwd,
		}
	}
	if loaded.Cwd == "" {
		loaded.Cwd = defaultCwd
	}

	s.Context = loaded
	s.Phase = state.PhaseContextLoaded
	slog.Info("context loaded", "conversation", s.ConversationID,
		"codebase", loaded.CodebaseName != "", "cwd", loaded.Cwd)
	return s, nil
}

// RouteInput marks the routing phase. The actual branch decision happens
// in Route, evaluated by the graph's conditional edge.
func (n *Nodes) RouteInput(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	s.Phase = state.PhaseCommandRouting
	return s, nil
}

// Route picks the next node from the input classification. Total over
// the InputType domain: every value maps to a destination, unknown
// values land in the error handler.
func Route(s state.ConversationState) string {
	if s.Error != "" {
		return NodeErrorHandler
	}
	switch s.InputType {
	case state.InputDeterministicCommand:
		return NodeExecuteCommand
	case state.InputCodebaseCommand, state.InputTemplateCommand, state.InputAIQuery:
		return NodeBuildPrompt
	case state.InputSwarmRequest:
		return NodeExecuteSwarm
	default:
		return NodeErrorHandler
	}
}

// ExecuteCommand handles deterministic commands without going near the
// gateway. Unknown names get a "not implemented" answer rather than an
// error.
func (n *Nodes) ExecuteCommand(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	if s.ParsedCommand == nil {
		s.Error = "no command to execute"
		s.Phase = state.PhaseError
		return s, nil
	}

	cmd := s.ParsedCommand
	slog.Info("executing command", "command", cmd.Command, "args", cmd.Args)
	n.emit(natsbus.EventCommandStart, s.ConversationID, map[string]any{"command": cmd.Command})

	var response string
	switch cmd.Command {
	case "help":
		response = helpText

	case "status":
		response = n.statusText(&s)

	case "getcwd":
		cwd := defaultCwd
		if s.Context != nil && s.Context.Cwd != "" {
			cwd = s.Context.Cwd
		}
		response = fmt.Sprintf("Current directory: `%s`", cwd)

	case "templates", "template-list":
		response = n.listTemplates("")

	case "commands":
		codebaseID := ""
		if s.Context != nil {
			codebaseID = s.Context.CodebaseID
		}
		response = n.listTemplates(codebaseID)

	case "stop":
		s.DirectResponse = "Operation stopped."
		s.WasAborted = true
		s.SkipAI = true
		s.Phase = state.PhaseCommandExecuted
		n.emit(natsbus.EventCommandComplete, s.ConversationID, map[string]any{"command": cmd.Command})
		return s, nil

	default:
		response = fmt.Sprintf("Command `/%s` is not implemented yet.", cmd.Command)
	}

	s.DirectResponse = response
	s.SkipAI = true
	s.Phase = state.PhaseCommandExecuted
	n.emit(natsbus.EventCommandComplete, s.ConversationID, map[string]any{"command": cmd.Command})
	return s, nil
}

const helpText = "**Ogma Commands**\n\n" +
	"**Navigation:**\n" +
	"- `/repos` - List configured codebases\n" +
	"- `/repo <name>` - Switch to codebase\n" +
	"- `/getcwd` - Show current directory\n" +
	"- `/setcwd <path>` - Change directory\n\n" +
	"**Commands:**\n" +
	"- `/commands` - List codebase commands\n" +
	"- `/templates` - List global templates\n" +
	"- `/command-invoke <name> [args]` - Run command\n\n" +
	"**Session:**\n" +
	"- `/status` - Show current status\n" +
	"- `/reset` - Reset conversation\n" +
	"- `/stop` - Interrupt running operation\n\n" +
	"**Swarm:**\n" +
	"- `/swarm <request>` - Multi-agent execution"

func (n *Nodes) statusText(s *state.ConversationState) string {
	codebase := "None"
	cwd := "Not set"
	if s.Context != nil {
		if s.Context.CodebaseName != "" {
			codebase = s.Context.CodebaseName
		}
		if s.Context.Cwd != "" {
			cwd = s.Context.Cwd
		}
	}
	return fmt.Sprintf("**Status**\n- Conversation: `%s`\n- Platform: `%s`\n- Codebase: `%s`\n- Working Dir: `%s`\n- Phase: `%s`",
		s.ConversationID, s.PlatformType, codebase, cwd, s.Phase)
}

func (n *Nodes) listTemplates(codebaseID string) string {
	if n.Templates == nil {
		return "No templates configured."
	}
	templates, err := n.Templates.ListTemplates(codebaseID)
	if err != nil {
		slog.Warn("template list failed", "error", err)
		return "Template listing is unavailable right now."
	}
	if len(templates) == 0 {
		return "No templates configured. Use `/template-add <name>` to create one."
	}
	var b strings.Builder
	b.WriteString("**Templates**\n")
	for _, t := range templates {
		scope := "global"
		if t.CodebaseID != "" {
			scope = t.CodebaseID
		}
		fmt.Fprintf(&b, "- `/%s` (%s)\n", t.Name, scope)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExecuteAI sends the accumulated history plus the built prompt to the
// gateway. A failed call is not retried here; it sets the error state
// and routes to the error handler.
func (n *Nodes) ExecuteAI(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	if s.PromptToSend == "" {
		s.Error = "no prompt to execute"
		s.Phase = state.PhaseError
		return s, nil
	}
	if n.Gateway == nil {
		s.Error = "AI execution failed: no gateway configured"
		s.AIResult = &state.AIResult{Success: false, Error: "no gateway configured"}
		s.Phase = state.PhaseError
		return s, nil
	}

	s.Phase = state.PhaseAIExecuting
	s.Messages = append(s.Messages, state.Message{Role: state.RoleUser, Content: s.PromptToSend})
	n.emit(natsbus.EventAIStart, s.ConversationID, map[string]any{"model": n.Model})

	completion, err := n.Gateway.Complete(ctx, gateway.Request{
		Model:    n.Model,
		System:   n.systemPreamble(&s),
		Messages: s.Messages,
	})
	if err != nil {
		slog.Error("ai execution failed", "conversation", s.ConversationID, "error", err)
		s.Error = fmt.Sprintf("AI execution failed: %v", err)
		s.AIResult = &state.AIResult{Success: false, Error: err.Error()}
		s.Phase = state.PhaseError
		n.emit(natsbus.EventAIError, s.ConversationID, map[string]any{"error": err.Error()})
		return s, nil
	}

	s.Messages = append(s.Messages, state.Message{Role: state.RoleAssistant, Content: completion.Text})
	s.AIResult = &state.AIResult{
		Success:      true,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
	}
	s.Phase = state.PhaseAICompleted

	slog.Info("ai completed", "conversation", s.ConversationID,
		"input_tokens", completion.InputTokens, "output_tokens", completion.OutputTokens)
	n.emit(natsbus.EventAIComplete, s.ConversationID, map[string]any{
		"input_tokens":  completion.InputTokens,
		"output_tokens": completion.OutputTokens,
	})
	return s, nil
}

func (n *Nodes) systemPreamble(s *state.ConversationState) string {
	var b strings.Builder
	b.WriteString("You are Ogma, a software engineering assistant handling a conversation from ")
	if s.PlatformType != "" {
		b.WriteString(s.PlatformType)
	} else {
		b.WriteString("an external platform")
	}
	b.WriteString(".")
	if s.Context != nil {
		if s.Context.CodebaseName != "" {
			fmt.Fprintf(&b, " The bound codebase is %s.", s.Context.CodebaseName)
		}
		if s.Context.Cwd != "" {
			fmt.Fprintf(&b, " The working directory is %s.", s.Context.Cwd)
		}
	}
	b.WriteString(" Answer directly and concisely.")
	return b.String()
}

// SendResponse projects exactly one response out of the terminal state,
// in fixed priority order. It is a pure projection: running it twice on
// the same state emits the same content.
func (n *Nodes) SendResponse(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	var responses []string

	switch {
	case s.DirectResponse != "":
		responses = append(responses, s.DirectResponse)
	case s.AIResult != nil && len(s.Messages) > 0:
		if msg, ok := s.LastAssistantMessage(); ok {
			responses = append(responses, msg)
		}
	case s.SwarmResult != nil:
		responses = append(responses, s.SwarmResult.Summary)
	case s.Error != "":
		responses = append(responses, "Error: "+s.Error)
	}

	if len(responses) == 0 {
		responses = append(responses, "No response was produced.")
	}

	for _, r := range responses {
		n.emitResponse(s.ConversationID, r, map[string]any{"aborted": s.WasAborted})
	}

	s.ResponsesSent = responses
	if s.Error == "" {
		s.Phase = state.PhaseCompleted
	}

	slog.Info("response sent", "conversation", s.ConversationID, "count", len(responses))
	return s, nil
}

func (n *Nodes) emitResponse(conversationID, message string, meta map[string]any) {
	if n.Events != nil {
		n.Events.EmitResponse(conversationID, message, meta)
	}
}

// HandleError formats the user-facing error message.
func (n *Nodes) HandleError(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	slog.Error("handling conversation error", "conversation", s.ConversationID, "error", s.Error, "phase", s.Phase)

	msg := s.Error
	if msg == "" {
		msg = "unknown error"
	}
	s.DirectResponse = "An error occurred: " + msg
	s.Phase = state.PhaseError
	n.emit(natsbus.EventError, s.ConversationID, map[string]any{"error": msg})
	return s, nil
}
