package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"ogma/internal/config"
	"ogma/internal/gateway"
	"ogma/internal/natsbus"
	"ogma/internal/orchestrator"
)

type echoGateway struct{}

func (echoGateway) Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error) {
	return &gateway.Completion{Text: "echo", InputTokens: 1, OutputTokens: 1}, nil
}

type blockingGateway struct {
	started chan struct{}
}

func (g *blockingGateway) Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func testConfig() *config.Config {
	return &config.Config{
		NATS:    config.NATSConfig{ChannelPrefix: "test:"},
		Gateway: config.GatewayConfig{Model: "test-model"},
		Graph:   config.GraphConfig{MaxConcurrentAgents: 2, MaxSteps: 50},
	}
}

// startWorker brings up an embedded bus plus a worker wired to a real
// orchestrator with the given gateway.
func startWorker(t *testing.T, gw gateway.Client) *natsbus.Client {
	t.Helper()

	bus, err := natsbus.New(config.NATSConfig{
		Port:          0,
		DataDir:       t.TempDir(),
		ChannelPrefix: "test:",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(bus.Close)

	client, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Close)

	app, err := orchestrator.New(testConfig(), nil, nil, gw, natsbus.NewPublisher(client, "test:"))
	if err != nil {
		t.Fatal(err)
	}

	w := NewWorker(client, natsbus.NewPublisher(client, "test:"), "test:", app)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Close)
	return client
}

func collect(t *testing.T, client *natsbus.Client, channel string) <-chan natsbus.Envelope {
	t.Helper()
	ch := make(chan natsbus.Envelope, 16)
	_, err := client.Subscribe(channel, func(msg *nats.Msg) {
		env, err := natsbus.ParseEnvelope(msg.Data)
		if err != nil {
			return
		}
		ch <- *env
	})
	if err != nil {
		t.Fatal(err)
	}
	return ch
}

func waitFor(t *testing.T, ch <-chan natsbus.Envelope, want natsbus.EventType) natsbus.Envelope {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestPingPong(t *testing.T) {
	client := startWorker(t, echoGateway{})
	control := collect(t, client, natsbus.ChannelControl("test:"))

	env := natsbus.NewEnvelope(natsbus.EventPing, "conv-1", nil)
	if err := client.PublishJSON(natsbus.ChannelControl("test:"), env); err != nil {
		t.Fatal(err)
	}
	client.Flush()

	pong := waitFor(t, control, natsbus.EventPong)
	if pong.Data["conversation_id"] != "conv-1" {
		t.Fatalf("pong should echo the conversation id: %+v", pong.Data)
	}
}

func TestRequestProducesResponse(t *testing.T) {
	client := startWorker(t, echoGateway{})
	responses := collect(t, client, natsbus.ChannelResponse("test:", "conv-1"))

	env := natsbus.NewEnvelope(natsbus.EventRequest, "conv-1", map[string]any{
		"message":       "/help",
		"platform_type": "slack",
	})
	if err := client.PublishJSON(natsbus.ChannelRequest("test:"), env); err != nil {
		t.Fatal(err)
	}
	client.Flush()

	resp := waitFor(t, responses, natsbus.EventResponse)
	msg, _ := resp.Data["message"].(string)
	if msg == "" {
		t.Fatalf("response has no message: %+v", resp.Data)
	}
}

func TestMalformedRequestEmitsError(t *testing.T) {
	client := startWorker(t, echoGateway{})
	events := collect(t, client, natsbus.ChannelEvents("test:", "conv-1"))

	// A request without a message is rejected before processing.
	env := natsbus.NewEnvelope(natsbus.EventRequest, "conv-1", nil)
	if err := client.PublishJSON(natsbus.ChannelRequest("test:"), env); err != nil {
		t.Fatal(err)
	}
	client.Flush()

	waitFor(t, events, natsbus.EventError)
}

func TestStopCancelsInFlightConversation(t *testing.T) {
	gw := &blockingGateway{started: make(chan struct{}, 1)}
	client := startWorker(t, gw)
	events := collect(t, client, natsbus.ChannelEvents("test:", "conv-1"))

	req := natsbus.NewEnvelope(natsbus.EventRequest, "conv-1", map[string]any{
		"message": "what is the meaning of life?",
	})
	if err := client.PublishJSON(natsbus.ChannelRequest("test:"), req); err != nil {
		t.Fatal(err)
	}
	client.Flush()

	select {
	case <-gw.started:
	case <-time.After(5 * time.Second):
		t.Fatal("conversation never reached the gateway")
	}

	stop := natsbus.NewEnvelope(natsbus.EventStop, "conv-1", nil)
	if err := client.PublishJSON(natsbus.ChannelControl("test:"), stop); err != nil {
		t.Fatal(err)
	}
	client.Flush()

	waitFor(t, events, natsbus.EventOperationStopped)
}
