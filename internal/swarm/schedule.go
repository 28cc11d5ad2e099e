package swarm

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"ogma/internal/natsbus"
	"ogma/internal/state"
)

// Spawn promotes pending tasks whose dependencies have all succeeded to
// ready, then moves every ready task to running. A failed dependency
// keeps its dependents pending forever; the deadlock escape in Continue
// picks those up.
func (s *Swarm) Spawn(ctx context.Context, st state.SwarmState) (state.SwarmState, error) {
	completed := completedIDs(st.CompletedResults)
	succeeded := successfulIDs(st.CompletedResults)

	var ready []*state.SubTask
	for i := range st.SubTasks {
		t := &st.SubTasks[i]
		if t.Status == state.TaskPending && depsSatisfied(*t, succeeded) {
			t.Status = state.TaskReady
		}
		if t.Status == state.TaskReady {
			ready = append(ready, t)
		}
	}

	if len(ready) == 0 {
		if len(completed) == len(st.SubTasks) {
			slog.Info("all tasks completed", "swarm", st.SwarmID)
			st.Phase = state.SwarmSynthesizing
			return st, nil
		}
		slog.Info("no task ready", "swarm", st.SwarmID,
			"completed", len(completed), "total", len(st.SubTasks))
		return st, nil
	}

	for _, t := range ready {
		t.Status = state.TaskRunning
		st.RunningAgents = append(st.RunningAgents, t.ID)
		s.emit(natsbus.EventSwarmAgentSpawned, &st, map[string]any{
			"task_id": t.ID,
			"role":    string(t.Role),
			"title":   t.Title,
		})
	}

	st.Phase = state.SwarmRunning
	slog.Info("agents spawned", "swarm", st.SwarmID, "count", len(ready))
	return st, nil
}

// Execute runs every currently running task concurrently under the
// admission cap and collects the results. The join is a full barrier:
// the round ends only when every dispatched task has reported. A single
// task's failure is recorded and does not touch its siblings.
func (s *Swarm) Execute(ctx context.Context, st state.SwarmState) (state.SwarmState, error) {
	var running []state.SubTask
	for _, t := range st.SubTasks {
		if t.Status == state.TaskRunning {
			running = append(running, t)
		}
	}
	if len(running) == 0 {
		st.Phase = state.SwarmSpawning
		return st, nil
	}

	slog.Info("executing agents", "swarm", st.SwarmID,
		"running", len(running), "max_concurrent", s.maxConcurrent)

	sem := semaphore.NewWeighted(s.maxConcurrent)
	results := make([]state.AgentResult, len(running))
	var wg sync.WaitGroup

	for i, task := range running {
		wg.Add(1)
		go func(i int, task state.SubTask) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = state.AgentResult{
					SubTaskID: task.ID,
					Role:      task.Role,
					Summary:   "Failed: " + err.Error(),
					Success:   false,
				}
				return
			}
			defer sem.Release(1)

			s.emit(natsbus.EventSwarmAgentProgress, &st, map[string]any{
				"task_id": task.ID,
				"role":    string(task.Role),
			})
			results[i] = s.runner.Run(ctx, task)
		}(i, task)
	}
	wg.Wait()

	byTask := make(map[string]state.AgentResult, len(results))
	for _, r := range results {
		byTask[r.SubTaskID] = r
	}
	for i := range st.SubTasks {
		t := &st.SubTasks[i]
		if r, ok := byTask[t.ID]; ok {
			if r.Success {
				t.Status = state.TaskCompleted
			} else {
				t.Status = state.TaskFailed
			}
			s.emit(natsbus.EventSwarmAgentComplete, &st, map[string]any{
				"task_id": t.ID,
				"role":    string(t.Role),
				"success": r.Success,
			})
		}
	}

	st.RunningAgents = nil
	st.CompletedResults = append(st.CompletedResults, results...)
	st.Phase = state.SwarmSpawning

	slog.Info("agent batch completed", "swarm", st.SwarmID,
		"batch", len(results), "total", len(st.CompletedResults))
	return st, nil
}
