// Package bridge is the pub/sub worker: it consumes conversation
// requests and control signals from the bus, drives the orchestrator,
// and keeps in-flight work cancellable through stop signals.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"ogma/internal/natsbus"
	"ogma/internal/orchestrator"
)

// Worker subscribes to the request and control channels. One worker
// serves all conversations; each request is processed on its own
// goroutine so independent conversations run in parallel.
type Worker struct {
	client *natsbus.Client
	events *natsbus.Publisher
	prefix string
	app    *orchestrator.App
	subs   []*nats.Subscription
}

func NewWorker(client *natsbus.Client, events *natsbus.Publisher, prefix string, app *orchestrator.App) *Worker {
	return &Worker{
		client: client,
		events: events,
		prefix: prefix,
		app:    app,
	}
}

// Start subscribes to the inbound channels. Returns after the
// subscriptions are flushed; message handling continues in background.
func (w *Worker) Start() error {
	reqSub, err := w.client.Subscribe(natsbus.ChannelRequest(w.prefix), w.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe requests: %w", err)
	}
	w.subs = append(w.subs, reqSub)

	ctlSub, err := w.client.Subscribe(natsbus.ChannelControl(w.prefix), w.handleControl)
	if err != nil {
		return fmt.Errorf("subscribe control: %w", err)
	}
	w.subs = append(w.subs, ctlSub)

	if err := w.client.Flush(); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	slog.Info("bridge worker started",
		"request_channel", natsbus.ChannelRequest(w.prefix),
		"control_channel", natsbus.ChannelControl(w.prefix))
	return nil
}

// Close drains the subscriptions.
func (w *Worker) Close() {
	for _, sub := range w.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("unsubscribe failed", "error", err)
		}
	}
	w.subs = nil
}

func (w *Worker) handleRequest(msg *nats.Msg) {
	env, err := natsbus.ParseEnvelope(msg.Data)
	if err != nil {
		slog.Warn("malformed request envelope", "error", err)
		return
	}
	if env.Type != natsbus.EventRequest {
		slog.Debug("ignoring non-request on request channel", "type", env.Type)
		return
	}

	req, err := decodeRequest(env)
	if err != nil {
		slog.Warn("bad conversation request", "conversation", env.ConversationID, "error", err)
		w.events.Emit(natsbus.EventError, env.ConversationID, map[string]any{"error": err.Error()})
		return
	}

	go w.processRequest(req)
}

func decodeRequest(env *natsbus.Envelope) (orchestrator.ConversationRequest, error) {
	var req orchestrator.ConversationRequest

	data, err := json.Marshal(env.Data)
	if err != nil {
		return req, fmt.Errorf("encode request data: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode request data: %w", err)
	}

	if req.ConversationID == "" {
		req.ConversationID = env.ConversationID
	}
	if req.ConversationID == "" {
		return req, fmt.Errorf("request has no conversation_id")
	}
	if req.Message == "" {
		return req, fmt.Errorf("request has no message")
	}
	return req, nil
}

func (w *Worker) processRequest(req orchestrator.ConversationRequest) {
	ctx, done := w.app.Track(context.Background(), req.ConversationID)
	defer done()

	result, err := w.app.ProcessConversation(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("conversation stopped", "conversation", req.ConversationID)
			w.events.Emit(natsbus.EventOperationStopped, req.ConversationID, nil)
			return
		}
		slog.Error("conversation processing failed", "conversation", req.ConversationID, "error", err)
		w.events.Emit(natsbus.EventError, req.ConversationID, map[string]any{"error": err.Error()})
		return
	}

	slog.Info("conversation processed", "conversation", req.ConversationID,
		"thread", result.ThreadID, "phase", result.Phase, "duration_ms", result.DurationMs)
}

func (w *Worker) handleControl(msg *nats.Msg) {
	env, err := natsbus.ParseEnvelope(msg.Data)
	if err != nil {
		slog.Warn("malformed control envelope", "error", err)
		return
	}

	switch env.Type {
	case natsbus.EventPing:
		w.events.EmitControl(natsbus.EventPong, map[string]any{"conversation_id": env.ConversationID})

	case natsbus.EventStop:
		stopped := w.app.Stop(env.ConversationID)
		slog.Info("stop signal", "conversation", env.ConversationID, "was_running", stopped)
		w.events.Emit(natsbus.EventOperationStopped, env.ConversationID, map[string]any{
			"was_running": stopped,
		})

	default:
		slog.Debug("ignoring control message", "type", env.Type)
	}
}
