// Package web exposes the orchestrator over HTTP: request/response and
// streaming conversation endpoints, swarm submission, thread
// introspection, and a websocket feed of bus events.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"ogma/internal/config"
	"ogma/internal/natsbus"
	"ogma/internal/orchestrator"
)

type Server struct {
	app       *orchestrator.App
	nats      *natsbus.Client
	prefix    string
	hub       *Hub
	cfg       config.WebConfig
	version   string
	startedAt time.Time
}

// NewServer builds the HTTP facade. nats may be nil; the websocket feed
// then stays silent.
func NewServer(app *orchestrator.App, natsClient *natsbus.Client, prefix string, cfg config.WebConfig, version string) *Server {
	return &Server{
		app:       app,
		nats:      natsClient,
		prefix:    prefix,
		hub:       NewHub(),
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.subscribeEvents()

	mux := http.NewServeMux()
	s.registerAPI(mux)
	mux.HandleFunc("/api/ws", s.handleWebSocket)

	handler := s.withMiddleware(mux)
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		// Basic auth guards everything except the health probe.
		if s.cfg.Auth != "" && r.URL.Path != "/health" {
			if _, pass, ok := r.BasicAuth(); !ok || pass != s.cfg.Auth {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// subscribeEvents forwards the bus firehose to websocket clients.
func (s *Server) subscribeEvents() {
	if s.nats == nil {
		return
	}
	_, err := s.nats.Subscribe(natsbus.ChannelFirehose(s.prefix), func(msg *nats.Msg) {
		env, err := natsbus.ParseEnvelope(msg.Data)
		if err != nil {
			slog.Warn("invalid event payload on firehose", "error", err)
			return
		}
		s.hub.Broadcast(*env)
	})
	if err != nil {
		slog.Error("firehose subscribe failed", "error", err)
	}
}

func jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
