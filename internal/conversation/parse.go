package conversation

import (
	"strings"

	"ogma/internal/state"
)

// commandPrefix marks a message as a command rather than a plain query.
const commandPrefix = "/"

// deterministicCommands are handled entirely by the command executor,
// no AI involved.
var deterministicCommands = map[string]bool{
	"help":            true,
	"status":          true,
	"getcwd":          true,
	"setcwd":          true,
	"clone":           true,
	"repos":           true,
	"repo":            true,
	"repo-remove":     true,
	"reset":           true,
	"reset-context":   true,
	"command-set":     true,
	"load-commands":   true,
	"commands":        true,
	"template-add":    true,
	"template-list":   true,
	"templates":       true,
	"template-delete": true,
	"worktree":        true,
	"init":            true,
	"verbose":         true,
	"stop":            true,
	"quickref":        true,
	"agents":          true,
	"chains":          true,
	"prompts":         true,
	"commands-all":    true,
}

// ParseCommand extracts a command and its arguments from a slash-prefixed
// message. Returns nil for non-prefixed messages and for a bare prefix
// with no command name. Quoted argument runs (single or double) become one
// token; unquoted runs split on whitespace.
func ParseCommand(message string) *state.ParsedCommand {
	if !strings.HasPrefix(message, commandPrefix) {
		return nil
	}

	rest := strings.TrimSpace(message[len(commandPrefix):])
	if rest == "" {
		return nil
	}

	name := rest
	argStr := ""
	if i := strings.IndexFunc(rest, isSpace); i >= 0 {
		name = rest[:i]
		argStr = strings.TrimSpace(rest[i:])
	}

	return &state.ParsedCommand{
		Command: strings.ToLower(name),
		Args:    splitArgs(argStr),
		Raw:     message,
	}
}

// splitArgs tokenizes an argument string, honoring quoting.
func splitArgs(s string) []string {
	var args []string
	i := 0
	for i < len(s) {
		if isSpace(rune(s[i])) {
			i++
			continue
		}
		if s[i] == '"' || s[i] == '\'' {
			quote := s[i]
			if end := strings.IndexByte(s[i+1:], quote); end >= 0 {
				args = append(args, s[i+1:i+1+end])
				i += end + 2
				continue
			}
		}
		start := i
		for i < len(s) && !isSpace(rune(s[i])) {
			i++
		}
		args = append(args, s[start:i])
	}
	return args
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Classify maps a parsed command to an input type. Non-prefixed text is
// always an AI query; unknown prefixed commands fall through to template
// commands.
func Classify(parsed *state.ParsedCommand) state.InputType {
	if parsed == nil {
		return state.InputAIQuery
	}
	switch {
	case deterministicCommands[parsed.Command]:
		return state.InputDeterministicCommand
	case parsed.Command == "command-invoke":
		return state.InputCodebaseCommand
	case parsed.Command == "swarm":
		return state.InputSwarmRequest
	default:
		return state.InputTemplateCommand
	}
}
