package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ogma/internal/gateway"
	"ogma/internal/natsbus"
	"ogma/internal/state"
	"ogma/internal/store"
)

type fakeGateway struct {
	text string
	err  error
}

func (f *fakeGateway) Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Completion{Text: f.text, InputTokens: 10, OutputTokens: 20}, nil
}

type fakeSink struct {
	events    []natsbus.EventType
	responses []string
}

func (f *fakeSink) Emit(t natsbus.EventType, conversationID string, data map[string]any) {
	f.events = append(f.events, t)
}

func (f *fakeSink) EmitResponse(conversationID, message string, meta map[string]any) {
	f.responses = append(f.responses, message)
}

type fakeTemplates struct {
	templates map[string]string
}

func (f *fakeTemplates) GetTemplate(name, codebaseID string) (*store.Template, error) {
	content, ok := f.templates[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Template{Name: name, Content: content}, nil
}

func (f *fakeTemplates) ListTemplates(codebaseID string) ([]store.Template, error) {
	var out []store.Template
	for name, content := range f.templates {
		out = append(out, store.Template{Name: name, Content: content})
	}
	return out, nil
}

type failingContexts struct{}

func (failingContexts) GetContext(string) (*state.ConversationContext, error) {
	return nil, errors.New("database unavailable")
}

func passthroughSwarm(ctx context.Context, s state.ConversationState) (state.ConversationState, error) {
	s.SwarmResult = &state.SwarmResult{SwarmID: "swarm-stub", Status: "completed", Summary: "stub summary"}
	s.Phase = state.PhaseSwarmCompleted
	return s, nil
}

func TestRouteIsTotal(t *testing.T) {
	known := map[string]bool{
		NodeExecuteCommand: true,
		NodeBuildPrompt:    true,
		NodeExecuteSwarm:   true,
		NodeErrorHandler:   true,
	}

	for _, it := range state.InputTypes() {
		dest := Route(state.ConversationState{InputType: it})
		if !known[dest] {
			t.Fatalf("input type %s routed to unknown destination %q", it, dest)
		}
	}

	// Error state always wins.
	dest := Route(state.ConversationState{InputType: state.InputAIQuery, Error: "boom"})
	if dest != NodeErrorHandler {
		t.Fatalf("error state routed to %q", dest)
	}

	// Unclassified input lands in the error handler, not nowhere.
	if dest := Route(state.ConversationState{}); dest != NodeErrorHandler {
		t.Fatalf("unclassified input routed to %q", dest)
	}
}

func TestLoadContextFallsBackOnFailure(t *testing.T) {
	n := &Nodes{Contexts: failingContexts{}}
	s, err := n.LoadContext(context.Background(), state.NewConversationState("c1", "web", "hi"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Context == nil {
		t.Fatal("expected default context")
	}
	if s.Context.Cwd != defaultCwd {
		t.Fatalf("expected default cwd, got %q", s.Context.Cwd)
	}
	if s.Context.CodebaseID != "" {
		t.Fatal("default context must not bind a codebase")
	}
}

func TestHelpEndToEnd(t *testing.T) {
	sink := &fakeSink{}
	n := &Nodes{Events: sink}

	compiled, err := Build(n, passthroughSwarm)
	if err != nil {
		t.Fatal(err)
	}

	final, err := compiled.Run(context.Background(), state.NewConversationState("c1", "web", "/help"))
	if err != nil {
		t.Fatal(err)
	}

	if final.InputType != state.InputDeterministicCommand {
		t.Fatalf("expected deterministic command, got %s", final.InputType)
	}
	if final.Phase != state.PhaseCompleted {
		t.Fatalf("expected completed phase, got %s", final.Phase)
	}
	if len(final.ResponsesSent) != 1 || final.ResponsesSent[0] != helpText {
		t.Fatalf("expected exactly the help text, got %v", final.ResponsesSent)
	}
	if len(sink.responses) != 1 || sink.responses[0] != helpText {
		t.Fatalf("expected help text on the wire, got %v", sink.responses)
	}
}

func TestStopCommandAborts(t *testing.T) {
	n := &Nodes{}
	compiled, err := Build(n, passthroughSwarm)
	if err != nil {
		t.Fatal(err)
	}

	final, err := compiled.Run(context.Background(), state.NewConversationState("c1", "web", "/stop"))
	if err != nil {
		t.Fatal(err)
	}
	if !final.WasAborted {
		t.Fatal("expected aborted flag")
	}
	if !final.SkipAI {
		t.Fatal("expected AI skip")
	}
	if len(final.ResponsesSent) != 1 || final.ResponsesSent[0] != "Operation stopped." {
		t.Fatalf("unexpected responses: %v", final.ResponsesSent)
	}
}

func TestUnknownDeterministicCommandNotImplemented(t *testing.T) {
	n := &Nodes{}
	s := state.NewConversationState("c1", "web", "/worktree main")
	s, err := n.ParseInput(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	s, err = n.ExecuteCommand(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s.DirectResponse, "not implemented") {
		t.Fatalf("expected not-implemented message, got %q", s.DirectResponse)
	}
	if s.Error != "" {
		t.Fatalf("unknown command must not error, got %q", s.Error)
	}
}

func TestAIQueryEndToEnd(t *testing.T) {
	sink := &fakeSink{}
	n := &Nodes{Gateway: &fakeGateway{text: "Paris."}, Events: sink, Model: "test-model"}

	compiled, err := Build(n, passthroughSwarm)
	if err != nil {
		t.Fatal(err)
	}

	final, err := compiled.Run(context.Background(), state.NewConversationState("c1", "web", "What is the capital of France?"))
	if err != nil {
		t.Fatal(err)
	}

	if final.PromptToSend != "What is the capital of France?" {
		t.Fatalf("ai query prompt must equal the raw message, got %q", final.PromptToSend)
	}
	if final.Phase != state.PhaseCompleted {
		t.Fatalf("expected completed, got %s", final.Phase)
	}
	if len(final.ResponsesSent) != 1 || final.ResponsesSent[0] != "Paris." {
		t.Fatalf("unexpected responses: %v", final.ResponsesSent)
	}
	if final.AIResult == nil || !final.AIResult.Success {
		t.Fatal("expected successful ai result")
	}
	if final.AIResult.InputTokens != 10 || final.AIResult.OutputTokens != 20 {
		t.Fatalf("token counts not recorded: %+v", final.AIResult)
	}
}

func TestAIFailureRoutesToErrorHandler(t *testing.T) {
	n := &Nodes{Gateway: &fakeGateway{err: errors.New("gateway unreachable")}}

	compiled, err := Build(n, passthroughSwarm)
	if err != nil {
		t.Fatal(err)
	}

	final, err := compiled.Run(context.Background(), state.NewConversationState("c1", "web", "What is the capital of France?"))
	if err != nil {
		t.Fatal(err)
	}

	if final.Phase != state.PhaseError {
		t.Fatalf("expected error phase, got %s", final.Phase)
	}
	if final.AIResult == nil || final.AIResult.Success {
		t.Fatal("expected failed ai result")
	}
	if len(final.ResponsesSent) != 1 {
		t.Fatalf("expected exactly one response, got %v", final.ResponsesSent)
	}
	got := final.ResponsesSent[0]
	if !strings.HasPrefix(got, "An error occurred: ") || !strings.Contains(got, "gateway unreachable") {
		t.Fatalf("unexpected error response: %q", got)
	}
}

func TestSwarmRequestEndToEnd(t *testing.T) {
	n := &Nodes{}
	compiled, err := Build(n, passthroughSwarm)
	if err != nil {
		t.Fatal(err)
	}

	final, err := compiled.Run(context.Background(), state.NewConversationState("c1", "web", "/swarm Build a login API"))
	if err != nil {
		t.Fatal(err)
	}
	if final.InputType != state.InputSwarmRequest {
		t.Fatalf("expected swarm request, got %s", final.InputType)
	}
	if len(final.ResponsesSent) != 1 || final.ResponsesSent[0] != "stub summary" {
		t.Fatalf("expected swarm summary response, got %v", final.ResponsesSent)
	}
}

func TestParseErrorReachesErrorHandler(t *testing.T) {
	n := &Nodes{}
	compiled, err := Build(n, passthroughSwarm)
	if err != nil {
		t.Fatal(err)
	}

	final, err := compiled.Run(context.Background(), state.NewConversationState("c1", "web", "/ "))
	if err != nil {
		t.Fatal(err)
	}
	if final.Phase != state.PhaseError {
		t.Fatalf("expected error phase, got %s", final.Phase)
	}
	if len(final.ResponsesSent) != 1 || !strings.HasPrefix(final.ResponsesSent[0], "An error occurred: ") {
		t.Fatalf("unexpected responses: %v", final.ResponsesSent)
	}
}

func TestSendResponseIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	n := &Nodes{Events: sink}

	s := state.NewConversationState("c1", "web", "/help")
	s.DirectResponse = "the answer"
	s.Phase = state.PhaseCommandExecuted

	first, err := n.SendResponse(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	second, err := n.SendResponse(context.Background(), first)
	if err != nil {
		t.Fatal(err)
	}

	if len(second.ResponsesSent) != 1 || second.ResponsesSent[0] != "the answer" {
		t.Fatalf("repeat send changed the projection: %v", second.ResponsesSent)
	}
	if second.ResponsesSent[0] != first.ResponsesSent[0] {
		t.Fatal("send-response is not a pure projection of state")
	}
}

func TestSendResponsePriorityOrder(t *testing.T) {
	n := &Nodes{}

	s := state.ConversationState{
		ConversationID: "c1",
		DirectResponse: "direct",
		Messages: []state.Message{
			{Role: state.RoleUser, Content: "q"},
			{Role: state.RoleAssistant, Content: "ai answer"},
		},
		AIResult:    &state.AIResult{Success: true},
		SwarmResult: &state.SwarmResult{Summary: "swarm summary"},
		Error:       "some error",
	}

	out, err := n.SendResponse(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.ResponsesSent) != 1 || out.ResponsesSent[0] != "direct" {
		t.Fatalf("direct response must win, got %v", out.ResponsesSent)
	}

	s.DirectResponse = ""
	out, _ = n.SendResponse(context.Background(), s)
	if out.ResponsesSent[0] != "ai answer" {
		t.Fatalf("assistant message must beat swarm summary, got %v", out.ResponsesSent)
	}

	s.AIResult = nil
	out, _ = n.SendResponse(context.Background(), s)
	if out.ResponsesSent[0] != "swarm summary" {
		t.Fatalf("swarm summary must beat error text, got %v", out.ResponsesSent)
	}

	s.SwarmResult = nil
	out, _ = n.SendResponse(context.Background(), s)
	if out.ResponsesSent[0] != "Error: some error" {
		t.Fatalf("expected error text last, got %v", out.ResponsesSent)
	}
}

func TestBuildPromptTemplateSubstitution(t *testing.T) {
	n := &Nodes{Templates: &fakeTemplates{templates: map[string]string{
		"deploy": "Deploy $1 to $2 with flags: $ARGUMENTS",
	}}}

	s := state.NewConversationState("c1", "web", "/deploy api staging")
	s, err := n.ParseInput(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if s.InputType != state.InputTemplateCommand {
		t.Fatalf("expected template command, got %s", s.InputType)
	}

	s, err = n.BuildPrompt(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s.PromptToSend, "Deploy api to staging with flags: api staging") {
		t.Fatalf("substitution failed: %q", s.PromptToSend)
	}
	if !strings.Contains(s.PromptToSend, "without asking for confirmation") {
		t.Fatalf("missing instruction frame: %q", s.PromptToSend)
	}
}

func TestBuildPromptCommandInvokeUsesFirstArg(t *testing.T) {
	n := &Nodes{Templates: &fakeTemplates{templates: map[string]string{
		"plan": "Plan for: $ARGUMENTS",
	}}}

	s := state.NewConversationState("c1", "web", `/command-invoke plan "Add dark mode feature"`)
	s, err := n.ParseInput(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if s.InputType != state.InputCodebaseCommand {
		t.Fatalf("expected codebase command, got %s", s.InputType)
	}

	s, err = n.BuildPrompt(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s.PromptToSend, "Plan for: Add dark mode feature") {
		t.Fatalf("expected plan template resolved, got %q", s.PromptToSend)
	}
	if !strings.Contains(s.PromptToSend, "`/plan` command") {
		t.Fatalf("frame should name the invoked template: %q", s.PromptToSend)
	}
}

func TestBuildPromptSectionOrder(t *testing.T) {
	n := &Nodes{}

	s := state.NewConversationState("c1", "web", "current question")
	s.ThreadContext = "earlier discussion"
	s.IssueContext = "issue #42 details"
	s.InputType = state.InputAIQuery

	s, err := n.BuildPrompt(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}

	threadIdx := strings.Index(s.PromptToSend, "earlier discussion")
	currentIdx := strings.Index(s.PromptToSend, "current question")
	issueIdx := strings.Index(s.PromptToSend, "issue #42 details")
	if threadIdx < 0 || currentIdx < 0 || issueIdx < 0 {
		t.Fatalf("missing sections: %q", s.PromptToSend)
	}
	if !(threadIdx < currentIdx && currentIdx < issueIdx) {
		t.Fatalf("wrong section order: thread=%d current=%d issue=%d", threadIdx, currentIdx, issueIdx)
	}
}

func TestBuildPromptMissingTemplateDegrades(t *testing.T) {
	n := &Nodes{Templates: &fakeTemplates{templates: map[string]string{}}}

	s := state.NewConversationState("c1", "web", "/unknown-thing arg")
	s, _ = n.ParseInput(context.Background(), s)
	s, err := n.BuildPrompt(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s.PromptToSend, "Execute the 'unknown-thing' command") {
		t.Fatalf("expected generic fallback, got %q", s.PromptToSend)
	}
}

func TestSubstituteArgsHighPositionsFirst(t *testing.T) {
	got := SubstituteArgs("$1 $2 $12", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"})
	if got != "a b l" {
		t.Fatalf("expected %q, got %q", "a b l", got)
	}
}
