// Package orchestrator wires the conversation and swarm machines to
// their collaborators and exposes the request/response surface used by
// the web server and the bus worker. Everything is constructed
// explicitly at startup; there is no ambient global state.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ogma/internal/checkpoint"
	"ogma/internal/config"
	"ogma/internal/conversation"
	"ogma/internal/gateway"
	"ogma/internal/graph"
	"ogma/internal/natsbus"
	"ogma/internal/state"
	"ogma/internal/store"
	"ogma/internal/swarm"
)

// App holds the assembled orchestration machinery. Safe for concurrent
// use: independent conversations run fully in parallel.
type App struct {
	cfg         *config.Config
	store       *store.Store
	checkpoints checkpoint.Store
	graph       *graph.Compiled[state.ConversationState]
	swarm       *swarm.Swarm

	mu      sync.Mutex
	running map[string]*trackedRun
}

// trackedRun identifies one in-flight conversation run. Entries are
// compared by pointer so a finished run never evicts its successor.
type trackedRun struct {
	cancel context.CancelFunc
}

// New assembles the orchestrator. store and checkpoints may be nil;
// the affected features degrade to defaults.
func New(cfg *config.Config, st *store.Store, cps checkpoint.Store, gw gateway.Client, events *natsbus.Publisher) (*App, error) {
	nodes := &conversation.Nodes{
		Gateway: gw,
		Model:   cfg.Gateway.Model,
	}
	if st != nil {
		nodes.Contexts = st
		nodes.Templates = st
	}
	if events != nil {
		nodes.Events = events
	}

	opts := swarm.Options{
		Runner:        &swarm.GatewayRunner{Gateway: gw, Model: cfg.Gateway.Model},
		MaxConcurrent: cfg.Graph.MaxConcurrentAgents,
	}
	if events != nil {
		opts.Events = events
	}
	if st != nil {
		opts.Recorder = st
	}
	sw, err := swarm.New(opts)
	if err != nil {
		return nil, err
	}

	compiled, err := conversation.Build(nodes, sw.Node())
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:         cfg,
		store:       st,
		checkpoints: cps,
		graph:       compiled,
		swarm:       sw,
		running:     make(map[string]*trackedRun),
	}, nil
}

// ConversationRequest is one inbound message.
type ConversationRequest struct {
	ConversationID string `json:"conversation_id"`
	PlatformType   string `json:"platform_type"`
	Message        string `json:"message"`
	IssueContext   string `json:"issue_context,omitempty"`
	ThreadContext  string `json:"thread_context,omitempty"`
	ThreadID       string `json:"thread_id,omitempty"`
}

// ConversationResult is the terminal outcome of one conversation turn.
type ConversationResult struct {
	ThreadID   string   `json:"thread_id"`
	Phase      string   `json:"phase"`
	Responses  []string `json:"responses"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// ProcessConversation runs one message through the conversation graph.
func (a *App) ProcessConversation(ctx context.Context, req ConversationRequest) (*ConversationResult, error) {
	return a.process(ctx, req, nil)
}

// ProcessConversationStream is ProcessConversation with a per-node
// observer, invoked after every node transition with the node id and the
// state it produced.
func (a *App) ProcessConversationStream(ctx context.Context, req ConversationRequest, observer func(node string, s state.ConversationState)) (*ConversationResult, error) {
	return a.process(ctx, req, observer)
}

func (a *App) process(ctx context.Context, req ConversationRequest, observer func(string, state.ConversationState)) (*ConversationResult, error) {
	if req.ConversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = "thread-" + shortID()
	}

	initial := state.NewConversationState(req.ConversationID, req.PlatformType, req.Message)
	initial.IssueContext = req.IssueContext
	initial.ThreadContext = req.ThreadContext

	var opts []graph.RunOption[state.ConversationState]
	if a.checkpoints != nil && a.cfg.Checkpoint.Enabled {
		opts = append(opts, graph.WithCheckpoints[state.ConversationState](a.checkpoints, threadID))
	}
	if observer != nil {
		opts = append(opts, graph.WithObserver(observer))
	}
	if a.cfg.Graph.MaxSteps > 0 {
		opts = append(opts, graph.WithMaxSteps[state.ConversationState](a.cfg.Graph.MaxSteps))
	}

	started := time.Now()
	final, err := a.graph.Run(ctx, initial, opts...)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", req.ConversationID, err)
	}

	return &ConversationResult{
		ThreadID:   threadID,
		Phase:      string(final.Phase),
		Responses:  final.ResponsesSent,
		Error:      final.Error,
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

// SwarmRequest submits a swarm directly, outside a conversation turn.
type SwarmRequest struct {
	ConversationID string `json:"conversation_id"`
	Request        string `json:"request"`
	Cwd            string `json:"cwd,omitempty"`
}

// ExecuteSwarm runs one swarm to completion.
func (a *App) ExecuteSwarm(ctx context.Context, req SwarmRequest) (*state.SwarmResult, error) {
	if req.Request == "" {
		return nil, fmt.Errorf("request is required")
	}
	cwd := req.Cwd
	if cwd == "" {
		cwd = "/home/user"
	}
	return a.swarm.Launch(ctx, req.ConversationID, req.Request, cwd)
}

// SwarmRuns lists recorded swarm runs, newest first.
func (a *App) SwarmRuns() ([]store.SwarmRun, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.ListSwarmRuns()
}

// SwarmRun fetches one recorded swarm run, or store.ErrNotFound.
func (a *App) SwarmRun(id string) (*store.SwarmRun, error) {
	if a.store == nil {
		return nil, store.ErrNotFound
	}
	return a.store.GetSwarmRun(id)
}

// ThreadHistory lists checkpoint metadata for a thread, oldest first.
func (a *App) ThreadHistory(threadID string) ([]checkpoint.Info, error) {
	if a.checkpoints == nil {
		return nil, nil
	}
	return a.checkpoints.List(threadID)
}

// ThreadState returns the latest snapshot for a thread, or
// checkpoint.ErrNotFound.
func (a *App) ThreadState(threadID string) (*checkpoint.Snapshot, error) {
	if a.checkpoints == nil {
		return nil, checkpoint.ErrNotFound
	}
	return a.checkpoints.Latest(threadID)
}

// Graph exposes the compiled conversation graph for introspection.
func (a *App) Graph() *graph.Compiled[state.ConversationState] { return a.graph }

// Config exposes the active configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Track registers an in-flight conversation and returns a derived
// context that Stop can cancel plus the matching cleanup func. The
// caller must invoke done when processing ends.
func (a *App) Track(ctx context.Context, conversationID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	run := &trackedRun{cancel: cancel}

	a.mu.Lock()
	if prev, ok := a.running[conversationID]; ok {
		prev.cancel()
	}
	a.running[conversationID] = run
	a.mu.Unlock()

	done := func() {
		a.mu.Lock()
		// A re-tracked conversation replaced this entry; leave the
		// successor registered so Stop can still reach it.
		if a.running[conversationID] == run {
			delete(a.running, conversationID)
		}
		a.mu.Unlock()
		cancel()
	}
	return ctx, done
}

// Stop cancels the in-flight conversation, if any. Reports whether one
// was running.
func (a *App) Stop(conversationID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	run, ok := a.running[conversationID]
	if ok {
		run.cancel()
		delete(a.running, conversationID)
	}
	return ok
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
