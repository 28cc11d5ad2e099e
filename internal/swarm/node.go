package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ogma/internal/graph"
	"ogma/internal/natsbus"
	"ogma/internal/state"
	"ogma/internal/store"
)

// Launch runs one swarm to completion for a request and returns the
// folded result. The run is recorded in the store when a recorder is
// configured.
func (s *Swarm) Launch(ctx context.Context, conversationID, request, cwd string) (*state.SwarmResult, error) {
	st := state.NewSwarmState(NewID(), conversationID, request, cwd)
	started := time.Now()

	slog.Info("swarm starting", "swarm", st.SwarmID, "conversation", conversationID)
	s.emit(natsbus.EventSwarmStart, &st, map[string]any{"request": request})
	s.record(func(r Recorder) error {
		return r.SaveSwarmRun(&store.SwarmRun{
			ID:             st.SwarmID,
			ConversationID: conversationID,
			Request:        request,
			Status:         "running",
		})
	})

	final, err := s.Run(ctx, st)
	if err != nil {
		s.record(func(r Recorder) error {
			return r.FinishSwarmRun(st.SwarmID, &state.SwarmResult{
				SwarmID: st.SwarmID,
				Status:  "failed",
				Summary: err.Error(),
			})
		})
		return nil, fmt.Errorf("swarm %s: %w", st.SwarmID, err)
	}

	result := Result(&final, started)
	s.emit(natsbus.EventSwarmComplete, &final, map[string]any{
		"status":    result.Status,
		"agents":    result.AgentCount,
		"completed": result.CompletedCount,
		"failed":    result.FailedCount,
	})
	s.record(func(r Recorder) error {
		return r.FinishSwarmRun(st.SwarmID, result)
	})

	slog.Info("swarm finished", "swarm", st.SwarmID,
		"status", result.Status, "agents", result.AgentCount,
		"duration_ms", result.DurationMs)
	return result, nil
}

func (s *Swarm) record(fn func(Recorder) error) {
	if s.recorder == nil {
		return
	}
	if err := fn(s.recorder); err != nil {
		slog.Warn("swarm run record failed", "error", err)
	}
}

// Node adapts the swarm machine into a node of the conversation graph.
// The conversation only sees the swarm's input/output contract: it hands
// over the request and working directory and gets a SwarmResult back,
// never the swarm's internals.
func (s *Swarm) Node() graph.NodeFunc[state.ConversationState] {
	return func(ctx context.Context, cs state.ConversationState) (state.ConversationState, error) {
		request := cs.RawMessage
		if cs.ParsedCommand != nil && len(cs.ParsedCommand.Args) > 0 {
			request = strings.Join(cs.ParsedCommand.Args, " ")
		}

		cwd := "/home/user"
		if cs.Context != nil && cs.Context.Cwd != "" {
			cwd = cs.Context.Cwd
		}

		result, err := s.Launch(ctx, cs.ConversationID, request, cwd)
		if err != nil {
			slog.Error("swarm failed", "conversation", cs.ConversationID, "error", err)
			cs.Error = fmt.Sprintf("swarm execution failed: %v", err)
			cs.Phase = state.PhaseError
			return cs, nil
		}

		cs.SwarmResult = result
		cs.Phase = state.PhaseSwarmCompleted
		return cs, nil
	}
}
