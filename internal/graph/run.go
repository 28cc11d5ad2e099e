package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ogma/internal/checkpoint"
)

const defaultMaxSteps = 50

// Compiled is an immutable executable graph. Safe for concurrent Run calls.
type Compiled[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]RouterFunc[S]
	entry   string
}

// Entry returns the entry node id.
func (c *Compiled[S]) Entry() string { return c.entry }

// NodeIDs returns all node identifiers, in no particular order.
func (c *Compiled[S]) NodeIDs() []string {
	ids := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	return ids
}

// RunOption configures a single Run invocation.
type RunOption[S any] func(*runConfig[S])

type runConfig[S any] struct {
	store    checkpoint.Store
	threadID string
	observer func(node string, state S)
	maxSteps int
}

// WithCheckpoints persists a snapshot after every node, keyed by thread id.
func WithCheckpoints[S any](store checkpoint.Store, threadID string) RunOption[S] {
	return func(cfg *runConfig[S]) {
		cfg.store = store
		cfg.threadID = threadID
	}
}

// WithObserver invokes fn after every node completes, with the node id
// and the state it produced. Used by the streaming endpoint.
func WithObserver[S any](fn func(node string, state S)) RunOption[S] {
	return func(cfg *runConfig[S]) {
		cfg.observer = fn
	}
}

// WithMaxSteps overrides the runaway guard.
func WithMaxSteps[S any](n int) RunOption[S] {
	return func(cfg *runConfig[S]) {
		cfg.maxSteps = n
	}
}

// Run executes the graph from the entry node until End.
//
// Execution is strictly sequential: nodes of the same run never overlap,
// and one node's state update is visible to the next node before it
// starts. On error, the state at the point of failure is returned
// alongside the error. Cancellation is checked before every node.
func (c *Compiled[S]) Run(ctx context.Context, state S, opts ...RunOption[S]) (S, error) {
	cfg := runConfig[S]{maxSteps: defaultMaxSteps}
	for _, opt := range opts {
		opt(&cfg)
	}

	current := c.entry
	steps := 0

	for current != End {
		steps++
		if steps > cfg.maxSteps {
			return state, fmt.Errorf("graph: exceeded %d steps at node %q", cfg.maxSteps, current)
		}

		select {
		case <-ctx.Done():
			return state, fmt.Errorf("graph: cancelled before node %q: %w", current, ctx.Err())
		default:
		}

		next, err := c.step(ctx, &state, current)
		if err != nil {
			return state, err
		}

		if cfg.observer != nil {
			cfg.observer(current, state)
		}
		if cfg.store != nil {
			c.save(&cfg, current, state)
		}

		current = next
	}

	return state, nil
}

// step executes one node and resolves the next node id.
func (c *Compiled[S]) step(ctx context.Context, state *S, current string) (string, error) {
	fn := c.nodes[current]

	start := time.Now()
	out, err := fn(ctx, *state)
	if err != nil {
		return "", fmt.Errorf("graph: node %q: %w", current, err)
	}
	*state = out

	slog.Debug("node executed", "node", current, "duration", time.Since(start))

	if router, ok := c.routers[current]; ok {
		next := router(*state)
		if next == "" {
			return "", fmt.Errorf("graph: router at %q returned empty target", current)
		}
		if next != End {
			if _, ok := c.nodes[next]; !ok {
				return "", fmt.Errorf("graph: router at %q returned unknown node %q", current, next)
			}
		}
		return next, nil
	}

	next, ok := c.edges[current]
	if !ok {
		// Compile guarantees a way forward, so this is a programming error.
		return "", fmt.Errorf("graph: no outgoing edge from %q", current)
	}
	return next, nil
}

// save checkpoints the state after a node. Checkpoint failures are logged
// and swallowed: the run's result stands on its own.
func (c *Compiled[S]) save(cfg *runConfig[S], node string, state S) {
	data, err := json.Marshal(state)
	if err != nil {
		slog.Warn("checkpoint serialize failed", "thread", cfg.threadID, "node", node, "error", err)
		return
	}
	if err := cfg.store.Save(cfg.threadID, node, data); err != nil {
		slog.Warn("checkpoint save failed", "thread", cfg.threadID, "node", node, "error", err)
	}
}
