package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"ogma/internal/state"
	"ogma/internal/store"
)

// commandFrame wraps a resolved template so the assistant acts instead
// of asking for confirmation.
const commandFrame = "The user invoked the `/%s` command. Execute the following instructions immediately without asking for confirmation:\n\n---\n\n%s\n\n---\n\nRemember: The user already decided to run this command. Take action now."

// BuildPrompt produces the final prompt text. For codebase and template
// commands it resolves the stored template and substitutes arguments;
// plain AI queries pass through untouched. The section order is fixed:
// thread context, current request, issue context.
func (n *Nodes) BuildPrompt(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	prompt := s.RawMessage

	if s.InputType == state.InputCodebaseCommand || s.InputType == state.InputTemplateCommand {
		if s.ParsedCommand != nil {
			name := s.CommandName
			args := s.ParsedCommand.Args
			if s.InputType == state.InputCodebaseCommand && len(args) > 0 {
				// /command-invoke <name> [args...] names the template in
				// its first argument.
				name = args[0]
				args = args[1:]
			}
			body := n.resolveTemplate(name, &s)
			body = SubstituteArgs(body, args)
			prompt = fmt.Sprintf(commandFrame, name, body)
		}
	}

	if s.ThreadContext != "" {
		prompt = fmt.Sprintf("## Thread Context (previous messages)\n\n%s\n\n---\n\n## Current Request\n\n%s",
			s.ThreadContext, prompt)
	}
	if s.IssueContext != "" {
		prompt = prompt + "\n\n---\n\n" + s.IssueContext
	}

	slog.Info("prompt built", "conversation", s.ConversationID, "length", len(prompt))

	s.PromptToSend = prompt
	s.Phase = state.PhaseSessionPrepared
	return s, nil
}

// resolveTemplate loads the template body for a command, preferring the
// bound codebase's version. A missing template degrades to a generic
// instruction so the command still does something useful.
func (n *Nodes) resolveTemplate(name string, s *state.ConversationState) string {
	fallback := fmt.Sprintf("Execute the '%s' command", name)
	if n.Templates == nil {
		return fallback
	}

	codebaseID := ""
	if s.Context != nil {
		codebaseID = s.Context.CodebaseID
	}

	t, err := n.Templates.GetTemplate(name, codebaseID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("template lookup failed", "command", name, "error", err)
		}
		return fallback
	}
	return t.Content
}

// SubstituteArgs replaces positional placeholders ($1, $2, ...) with the
// argument tokens in order and $ARGUMENTS with all tokens joined by a
// space. Higher positions are replaced first so $12 is never clobbered
// by $1.
func SubstituteArgs(template string, args []string) string {
	for i := len(args); i >= 1; i-- {
		template = strings.ReplaceAll(template, "$"+strconv.Itoa(i), args[i-1])
	}
	return strings.ReplaceAll(template, "$ARGUMENTS", strings.Join(args, " "))
}
