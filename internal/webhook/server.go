// internal/webhook/server.go
package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/notifyr/internal/gateway"
	"github.com/user/notifyr/internal/types"
)

// Server is a lightweight HTTP surface over the gateway: ingestion for
// notification sources that speak HTTP, and read-only snapshot endpoints for
// UI-like consumers and the persistence mirror.
type Server struct {
	gateway *gateway.Gateway
	mux     *http.ServeMux
}

// NewServer creates a Server over the gateway.
func NewServer(gw *gateway.Gateway) *Server {
	s := &Server{
		gateway: gw,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("POST /ingest", s.handleIngest)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/conversations", s.handleConversations)
	s.mux.HandleFunc("GET /api/conversations/{key}/messages", s.handleMessages)
	s.mux.HandleFunc("POST /api/conversations/{key}/read", s.handleMarkRead)
	s.mux.HandleFunc("DELETE /api/conversations/{key}", s.handleDelete)
	s.mux.HandleFunc("POST /api/messages/{id}/reply", s.handleGenerate)
	s.mux.HandleFunc("PUT /api/messages/{id}/reply", s.handleEdit)
	s.mux.HandleFunc("POST /api/messages/{id}/send", s.handleSend)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload types.RawPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	result, err := s.gateway.Ingest(&payload)
	if err != nil {
		if errors.Is(err, types.ErrMalformedEvent) {
			http.Error(w, `{"error":"malformed event"}`, http.StatusBadRequest)
			return
		}
		slog.Error("ingest failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   string(result.Status),
		"event_id": string(result.EventID),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.Store().Events())
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.Store().Conversations())
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	key := types.ThreadKey(r.PathValue("key"))
	messages, err := s.gateway.Store().Messages(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	key := types.ThreadKey(r.PathValue("key"))
	if err := s.gateway.MarkRead(key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := types.ThreadKey(r.PathValue("key"))
	if err := s.gateway.DeleteConversation(key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := types.EventID(r.PathValue("id"))
	text, err := s.gateway.GenerateReply(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// editRequest is the JSON body for PUT /api/messages/{id}/reply.
type editRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id := types.EventID(r.PathValue("id"))

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}

	if err := s.gateway.EditReply(id, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id := types.EventID(r.PathValue("id"))
	if err := s.gateway.Send(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sending"})
}

// writeError maps core error kinds onto HTTP statuses. Everything the core
// surfaces is recoverable; nothing here should read as a crash.
func writeError(w http.ResponseWriter, err error) {
	var transition *types.InvalidTransitionError
	switch {
	case errors.Is(err, types.ErrUnknownMessage), errors.Is(err, types.ErrUnknownConversation):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, types.ErrNotSendable), errors.Is(err, types.ErrAlreadyInFlight),
		errors.Is(err, types.ErrNoTransport), errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
