package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ogma/internal/state"
)

const maxRecommendations = 10
const maxDetailLen = 500

// Synthesize folds all agent results into one Markdown summary: a
// section per agent with a pass/fail marker, aggregated recommendations,
// and totals. Runs exactly once per swarm, even when every agent failed.
func (s *Swarm) Synthesize(ctx context.Context, st state.SwarmState) (state.SwarmState, error) {
	succeeded := 0
	totalDuration := int64(0)
	totalTokens := 0
	for _, r := range st.CompletedResults {
		if r.Success {
			succeeded++
		}
		totalDuration += r.DurationMs
		totalTokens += r.TokensUsed
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Swarm Execution Complete\n\n")
	fmt.Fprintf(&b, "**Request:** %s\n\n", st.UserRequest)
	fmt.Fprintf(&b, "**Results:** %d/%d tasks succeeded\n\n", succeeded, len(st.CompletedResults))

	b.WriteString("### Agent Results\n\n")
	for _, r := range st.CompletedResults {
		marker := "pass"
		if !r.Success {
			marker = "fail"
		}
		fmt.Fprintf(&b, "#### %s [%s]\n%s\n", titleCase(string(r.Role)), marker, r.Summary)
		if r.Details != "" {
			details := r.Details
			if len(details) > maxDetailLen {
				details = details[:maxDetailLen]
			}
			fmt.Fprintf(&b, "\n%s\n", details)
		}
		b.WriteString("\n")
	}

	var recommendations []string
	for _, r := range st.CompletedResults {
		if r.Success {
			recommendations = append(recommendations, r.Recommendations...)
		}
	}
	if len(recommendations) > 0 {
		b.WriteString("### Recommendations\n")
		if len(recommendations) > maxRecommendations {
			recommendations = recommendations[:maxRecommendations]
		}
		for _, rec := range recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
		b.WriteString("\n")
	}

	b.WriteString("### Statistics\n")
	fmt.Fprintf(&b, "- Total Duration: %dms\n", totalDuration)
	fmt.Fprintf(&b, "- Total Tokens: %d\n", totalTokens)
	fmt.Fprintf(&b, "- Agents: %d", len(st.CompletedResults))

	st.SynthesizedSummary = b.String()
	st.Phase = state.SwarmCompleted

	slog.Info("synthesis complete", "swarm", st.SwarmID,
		"succeeded", succeeded, "total", len(st.CompletedResults))
	return st, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
