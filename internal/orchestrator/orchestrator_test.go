package orchestrator

import (
	"context"
	"testing"

	"ogma/internal/config"
	"ogma/internal/gateway"
)

type staticGateway struct{}

func (staticGateway) Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error) {
	return &gateway.Completion{Text: "ok"}, nil
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Gateway: config.GatewayConfig{Model: "test-model"},
		Graph:   config.GraphConfig{MaxConcurrentAgents: 2, MaxSteps: 50},
	}
	app, err := New(cfg, nil, nil, staticGateway{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return app
}

func TestTrackCancelsPreviousRun(t *testing.T) {
	app := newTestApp(t)

	ctx1, done1 := app.Track(context.Background(), "conv-1")
	defer done1()
	ctx2, done2 := app.Track(context.Background(), "conv-1")
	defer done2()

	if ctx1.Err() == nil {
		t.Fatal("re-tracking must cancel the previous run")
	}
	if ctx2.Err() != nil {
		t.Fatal("the new run must not be cancelled")
	}
}

func TestStopReachesRunAfterPredecessorFinishes(t *testing.T) {
	app := newTestApp(t)

	_, done1 := app.Track(context.Background(), "conv-1")
	ctx2, done2 := app.Track(context.Background(), "conv-1")
	defer done2()

	// The first run's cleanup must not evict the second run's entry.
	done1()

	if !app.Stop("conv-1") {
		t.Fatal("stop must find the in-flight run")
	}
	if ctx2.Err() == nil {
		t.Fatal("stop must cancel the in-flight run")
	}
}

func TestStopIdleConversation(t *testing.T) {
	app := newTestApp(t)

	if app.Stop("conv-1") {
		t.Fatal("nothing is running")
	}

	ctx, done := app.Track(context.Background(), "conv-1")
	done()

	if ctx.Err() == nil {
		t.Fatal("done must cancel the run's context")
	}
	if app.Stop("conv-1") {
		t.Fatal("a finished run must not be stoppable")
	}
}
