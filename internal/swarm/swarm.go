// Package swarm runs bounded multi-agent executions: a user request is
// decomposed into role-tagged sub-tasks with dependencies, agents run
// concurrently under an admission cap, and the results are synthesized
// into one summary. Scheduling is always dependency-driven; the strategy
// tag on a decomposition is telemetry, nothing consults it.
package swarm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ogma/internal/graph"
	"ogma/internal/natsbus"
	"ogma/internal/state"
	"ogma/internal/store"
)

// Node names in the swarm graph.
const (
	NodeDecompose  = "decompose"
	NodeSpawn      = "spawn"
	NodeExecute    = "execute"
	NodeSynthesize = "synthesize"
)

// DefaultMaxConcurrent caps simultaneous in-flight agents.
const DefaultMaxConcurrent = 5

// EventSink receives swarm progress events, best-effort.
type EventSink interface {
	Emit(t natsbus.EventType, conversationID string, data map[string]any)
}

// Recorder persists swarm run records. Recording is best-effort: a
// failed write is logged, the run's result stands regardless.
type Recorder interface {
	SaveSwarmRun(r *store.SwarmRun) error
	FinishSwarmRun(id string, result *state.SwarmResult) error
}

// Options configures a Swarm. Runner is required; the rest may be zero.
type Options struct {
	Runner        Runner
	Events        EventSink
	Recorder      Recorder
	MaxConcurrent int
}

// Swarm owns the compiled swarm graph and its collaborators. One Swarm
// serves any number of concurrent runs.
type Swarm struct {
	runner        Runner
	events        EventSink
	recorder      Recorder
	maxConcurrent int64
	compiled      *graph.Compiled[state.SwarmState]
}

// New builds and compiles the swarm machine:
//
//	decompose -> spawn -> execute -> (spawn | execute | synthesize)
func New(opts Options) (*Swarm, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("swarm: runner is required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	s := &Swarm{
		runner:        opts.Runner,
		events:        opts.Events,
		recorder:      opts.Recorder,
		maxConcurrent: int64(opts.MaxConcurrent),
	}

	g := graph.New[state.SwarmState]()
	g.AddNode(NodeDecompose, s.Decompose).
		AddNode(NodeSpawn, s.Spawn).
		AddNode(NodeExecute, s.Execute).
		AddNode(NodeSynthesize, s.Synthesize)

	g.SetEntry(NodeDecompose)
	g.AddEdge(NodeDecompose, NodeSpawn)
	g.AddConditionalEdge(NodeSpawn, routeAfterSpawn)
	g.AddConditionalEdge(NodeExecute, Continue)
	g.AddEdge(NodeSynthesize, graph.End)

	compiled, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("swarm graph: %w", err)
	}
	s.compiled = compiled
	return s, nil
}

// Run drives one swarm to completion.
func (s *Swarm) Run(ctx context.Context, st state.SwarmState) (state.SwarmState, error) {
	return s.compiled.Run(ctx, st)
}

// NewID mints a swarm identifier.
func NewID() string {
	return "swarm-" + shortID()
}

func newTaskID() string {
	return "task-" + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// routeAfterSpawn continues to execution while agents are running,
// otherwise hands over to synthesis. Spawn leaving nothing running means
// either all work is done or the remaining tasks are permanently
// blocked; both end the swarm.
func routeAfterSpawn(st state.SwarmState) string {
	for _, t := range st.SubTasks {
		if t.Status == state.TaskRunning {
			return NodeExecute
		}
	}
	return NodeSynthesize
}

// Continue decides the next step after an execution round. The final
// branch is the deadlock escape: when every remaining task waits on a
// dependency that failed, the swarm synthesizes a partial summary
// instead of spinning.
func Continue(st state.SwarmState) string {
	completed := completedIDs(st.CompletedResults)
	succeeded := successfulIDs(st.CompletedResults)

	var remaining []state.SubTask
	for _, t := range st.SubTasks {
		if !completed[t.ID] && t.Status != state.TaskFailed {
			remaining = append(remaining, t)
		}
	}
	if len(remaining) == 0 {
		return NodeSynthesize
	}

	for _, t := range remaining {
		if t.Status == state.TaskReady || t.Status == state.TaskRunning {
			return NodeExecute
		}
	}

	for _, t := range remaining {
		if depsSatisfied(t, succeeded) {
			return NodeSpawn
		}
	}

	return NodeSynthesize
}

func depsSatisfied(t state.SubTask, succeeded map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !succeeded[dep] {
			return false
		}
	}
	return true
}

func completedIDs(results []state.AgentResult) map[string]bool {
	ids := make(map[string]bool, len(results))
	for _, r := range results {
		ids[r.SubTaskID] = true
	}
	return ids
}

func successfulIDs(results []state.AgentResult) map[string]bool {
	ids := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Success {
			ids[r.SubTaskID] = true
		}
	}
	return ids
}

func (s *Swarm) emit(t natsbus.EventType, st *state.SwarmState, data map[string]any) {
	if s.events == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["swarm_id"] = st.SwarmID
	s.events.Emit(t, st.ConversationID, data)
}

// Mermaid renders the swarm graph topology for the debug surface.
func Mermaid() string {
	return `graph TD
    START((Start)) --> decompose[Decompose Task]
    decompose --> spawn[Spawn Agents]
    spawn -->|has_running| execute[Execute Agents]
    spawn -->|all_done| synthesize[Synthesize Results]
    execute -->|more_tasks| spawn
    execute -->|all_done| synthesize
    synthesize --> END((End))
`
}

// Result summarizes a finished swarm run for the owning conversation.
func Result(st *state.SwarmState, started time.Time) *state.SwarmResult {
	status := "failed"
	if st.Phase == state.SwarmCompleted {
		status = "completed"
	}

	completed, failed, tokens := 0, 0, 0
	var recommendations []string
	for _, r := range st.CompletedResults {
		if r.Success {
			completed++
			recommendations = append(recommendations, r.Recommendations...)
		} else {
			failed++
		}
		tokens += r.TokensUsed
	}
	if len(recommendations) > 10 {
		recommendations = recommendations[:10]
	}

	summary := st.SynthesizedSummary
	if summary == "" {
		summary = "Swarm execution completed"
	}

	return &state.SwarmResult{
		SwarmID:         st.SwarmID,
		Status:          status,
		Summary:         summary,
		AgentCount:      len(st.SubTasks),
		CompletedCount:  completed,
		FailedCount:     failed,
		DurationMs:      time.Since(started).Milliseconds(),
		TotalTokens:     tokens,
		Recommendations: recommendations,
	}
}
