package swarm

import (
	"context"
	"fmt"
	"time"

	"ogma/internal/gateway"
	"ogma/internal/state"
)

// Runner executes one sub-task to completion. Failures are captured in
// the returned AgentResult, never raised: a failing agent must not take
// its siblings down with it.
type Runner interface {
	Run(ctx context.Context, task state.SubTask) state.AgentResult
}

// GatewayRunner executes sub-tasks against the LLM gateway, one
// completion call per agent with a role-specific system prompt.
type GatewayRunner struct {
	Gateway gateway.Client
	Model   string
}

var roleSystemPrompts = map[state.AgentRole]string{
	state.RoleArchitect:   "You are a software architect. Produce a concise high-level design.",
	state.RoleImplementer: "You are an implementer. Describe the concrete implementation steps.",
	state.RoleTester:      "You are a test engineer. Propose the tests that would verify the work.",
	state.RoleReviewer:    "You are a code reviewer. Assess quality and point out concrete issues.",
	state.RoleSecurity:    "You are a security auditor. Identify vulnerabilities and mitigations.",
	state.RolePerformance: "You are a performance analyst. Identify bottlenecks and measurements.",
	state.RoleResearcher:  "You are a researcher. Analyze the request and summarize your findings.",
}

func (r *GatewayRunner) Run(ctx context.Context, task state.SubTask) state.AgentResult {
	start := time.Now()

	system, ok := roleSystemPrompts[task.Role]
	if !ok {
		system = roleSystemPrompts[state.RoleResearcher]
	}

	completion, err := r.Gateway.Complete(ctx, gateway.Request{
		Model:    r.Model,
		System:   system,
		Messages: []state.Message{{Role: state.RoleUser, Content: task.Prompt}},
	})
	if err != nil {
		return state.AgentResult{
			SubTaskID:  task.ID,
			Role:       task.Role,
			Summary:    fmt.Sprintf("Failed: %v", err),
			Success:    false,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	return state.AgentResult{
		SubTaskID:  task.ID,
		Role:       task.Role,
		Summary:    fmt.Sprintf("Completed %s", task.Title),
		Details:    completion.Text,
		Success:    true,
		DurationMs: time.Since(start).Milliseconds(),
		TokensUsed: completion.InputTokens + completion.OutputTokens,
	}
}
