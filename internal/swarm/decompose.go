package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ogma/internal/natsbus"
	"ogma/internal/state"
)

// Decompose breaks the user request into sub-tasks by keyword heuristics.
// Build-ish requests get a sequential architect -> implementer -> tester
// chain, review-ish requests get a parallel reviewer/security/performance
// set, everything else gets a single researcher. Tasks without
// dependencies start ready.
func (s *Swarm) Decompose(ctx context.Context, st state.SwarmState) (state.SwarmState, error) {
	request := strings.ToLower(st.UserRequest)

	var tasks []state.SubTask
	strategy := "sequential"

	switch {
	case strings.Contains(request, "build") || strings.Contains(request, "implement"):
		architect := state.SubTask{
			ID:          newTaskID(),
			Role:        state.RoleArchitect,
			Title:       "Architecture Design",
			Description: "Design the high-level architecture and component structure",
			Prompt:      fmt.Sprintf("Design the architecture for: %s", st.UserRequest),
			Priority:    state.PriorityCritical,
		}
		implementer := state.SubTask{
			ID:            newTaskID(),
			Role:          state.RoleImplementer,
			Title:         "Core Implementation",
			Description:   "Implement the core functionality",
			Prompt:        fmt.Sprintf("Implement: %s", st.UserRequest),
			Dependencies:  []string{architect.ID},
			Priority:      state.PriorityHigh,
			RequiresTools: true,
		}
		tester := state.SubTask{
			ID:            newTaskID(),
			Role:          state.RoleTester,
			Title:         "Testing",
			Description:   "Write and run tests",
			Prompt:        fmt.Sprintf("Write tests for: %s", st.UserRequest),
			Dependencies:  []string{implementer.ID},
			Priority:      state.PriorityHigh,
			RequiresTools: true,
		}
		tasks = []state.SubTask{architect, implementer, tester}

	case strings.Contains(request, "review") || strings.Contains(request, "audit"):
		tasks = []state.SubTask{
			{
				ID:            newTaskID(),
				Role:          state.RoleReviewer,
				Title:         "Code Review",
				Description:   "Review code quality and patterns",
				Prompt:        fmt.Sprintf("Review: %s", st.UserRequest),
				Priority:      state.PriorityHigh,
				RequiresTools: true,
			},
			{
				ID:            newTaskID(),
				Role:          state.RoleSecurity,
				Title:         "Security Audit",
				Description:   "Check for security vulnerabilities",
				Prompt:        fmt.Sprintf("Security audit: %s", st.UserRequest),
				Priority:      state.PriorityHigh,
				RequiresTools: true,
			},
			{
				ID:            newTaskID(),
				Role:          state.RolePerformance,
				Title:         "Performance Analysis",
				Description:   "Analyze performance characteristics",
				Prompt:        fmt.Sprintf("Performance analysis: %s", st.UserRequest),
				Priority:      state.PriorityMedium,
				RequiresTools: true,
			},
		}
		strategy = "parallel"

	default:
		tasks = []state.SubTask{
			{
				ID:          newTaskID(),
				Role:        state.RoleResearcher,
				Title:       "Research & Analysis",
				Description: "Research and analyze the request",
				Prompt:      st.UserRequest,
				Priority:    state.PriorityHigh,
			},
		}
	}

	for i := range tasks {
		if len(tasks[i].Dependencies) == 0 {
			tasks[i].Status = state.TaskReady
		} else {
			tasks[i].Status = state.TaskPending
		}
	}

	st.SubTasks = tasks
	st.Strategy = strategy
	st.Phase = state.SwarmSpawning

	slog.Info("task decomposed", "swarm", st.SwarmID, "tasks", len(tasks), "strategy", strategy)
	s.emit(natsbus.EventSwarmTaskDecomposed, &st, map[string]any{
		"task_count": len(tasks),
		"strategy":   strategy,
	})
	return st, nil
}
