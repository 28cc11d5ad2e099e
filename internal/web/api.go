package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ogma/internal/checkpoint"
	"ogma/internal/conversation"
	"ogma/internal/orchestrator"
	"ogma/internal/state"
	"ogma/internal/store"
	"ogma/internal/swarm"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /graphs", s.handleGraphs)
	mux.HandleFunc("POST /conversation", s.handleConversation)
	mux.HandleFunc("POST /conversation/stream", s.handleConversationStream)
	mux.HandleFunc("POST /swarm", s.handleSwarm)
	mux.HandleFunc("GET /swarms", s.handleSwarmList)
	mux.HandleFunc("GET /swarms/{id}", s.handleSwarmGet)
	mux.HandleFunc("GET /thread/{id}/history", s.handleThreadHistory)
	mux.HandleFunc("GET /thread/{id}/state", s.handleThreadState)
	mux.HandleFunc("GET /debug/config", s.handleDebugConfig)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleGraphs(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{
		"conversation": conversation.Mermaid(),
		"swarm":        swarm.Mermaid(),
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeConversationRequest(w, r)
	if !ok {
		return
	}

	ctx, done := s.app.Track(r.Context(), req.ConversationID)
	defer done()

	result, err := s.app.ProcessConversation(ctx, req)
	if err != nil {
		slog.Error("conversation failed", "conversation", req.ConversationID, "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, result)
}

// handleConversationStream emits one SSE event per node transition,
// then a terminal complete or error event.
func (s *Server) handleConversationStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeConversationRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, done := s.app.Track(r.Context(), req.ConversationID)
	defer done()

	observer := func(node string, st state.ConversationState) {
		writeSSE(w, "node_update", map[string]any{
			"node":  node,
			"phase": string(st.Phase),
		})
		flusher.Flush()
	}

	result, err := s.app.ProcessConversationStream(ctx, req, observer)
	if err != nil {
		writeSSE(w, "error", map[string]any{"error": err.Error()})
		flusher.Flush()
		return
	}

	writeSSE(w, "complete", result)
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func decodeConversationRequest(w http.ResponseWriter, r *http.Request) (orchestrator.ConversationRequest, bool) {
	var req orchestrator.ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if req.ConversationID == "" {
		jsonError(w, "conversation_id is required", http.StatusBadRequest)
		return req, false
	}
	if req.Message == "" {
		jsonError(w, "message is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) handleSwarm(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SwarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Request == "" {
		jsonError(w, "request is required", http.StatusBadRequest)
		return
	}

	result, err := s.app.ExecuteSwarm(r.Context(), req)
	if err != nil {
		slog.Error("swarm failed", "conversation", req.ConversationID, "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, result)
}

func (s *Server) handleSwarmList(w http.ResponseWriter, r *http.Request) {
	runs, err := s.app.SwarmRuns()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.SwarmRun{}
	}
	jsonResponse(w, runs)
}

func (s *Server) handleSwarmGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.app.SwarmRun(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "swarm run not found", http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) handleThreadHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.app.ThreadHistory(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []checkpoint.Info{}
	}
	jsonResponse(w, map[string]any{
		"thread_id":   r.PathValue("id"),
		"checkpoints": history,
	})
}

func (s *Server) handleThreadState(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.app.ThreadState(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			jsonError(w, "no state for thread", http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var st json.RawMessage = snapshot.State
	jsonResponse(w, map[string]any{
		"thread_id":     snapshot.ThreadID,
		"checkpoint_id": snapshot.CheckpointID,
		"node_id":       snapshot.NodeID,
		"created_at":    snapshot.CreatedAt,
		"state":         st,
	})
}

// handleDebugConfig dumps the active configuration with secrets redacted.
func (s *Server) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	cfg := *s.app.Config()
	if cfg.Gateway.APIKey != "" {
		cfg.Gateway.APIKey = "[redacted]"
	}
	if cfg.Web.Auth != "" {
		cfg.Web.Auth = "[redacted]"
	}
	if cfg.Vault.Passphrase != "" {
		cfg.Vault.Passphrase = "[redacted]"
	}
	jsonResponse(w, cfg)
}
