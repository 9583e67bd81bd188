// Package chathttp is the thin HTTP transport in front of the routing
// pipeline: one inbound request maps to exactly one pipeline run, and the
// returned string is serialized back as JSON. It defines no wire format
// beyond that.
package chathttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/i2y/mcprouter/internal/domain"
	"github.com/i2y/mcprouter/internal/usecase"
)

// Handlers struct holds dependencies for the HTTP handlers.
type Handlers struct {
	runQueryUseCase *usecase.RunQueryUseCase
	registry        *domain.Registry
	logger          *slog.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(
	runUC *usecase.RunQueryUseCase,
	registry *domain.Registry,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		runQueryUseCase: runUC,
		registry:        registry,
		logger:          logger.With("component", "chathttp_handler"),
	}
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("GET /capabilities", h.handleCapabilities)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

// ChatRequest defines the expected JSON body for the /chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the JSON reply of the /chat endpoint.
type ChatResponse struct {
	Response string `json:"response"`
}

// handleChat implements POST /chat.
func (h *Handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := h.logger.With(slog.String("request_id", requestID))

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("Failed to decode chat request body", slog.Any("error", err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Message == "" {
		log.Warn("Chat request missing message field")
		http.Error(w, "Missing 'message' field in request body", http.StatusBadRequest)
		return
	}

	log.Info("Received chat request", slog.Int("message_bytes", len(req.Message)))
	response := h.runQueryUseCase.Execute(r.Context(), req.Message)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ChatResponse{Response: response}); err != nil {
		log.Error("Failed to encode chat response", slog.Any("error", err))
	}
}

// CapabilityInfo is one entry of the /capabilities listing.
type CapabilityInfo struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// handleCapabilities implements GET /capabilities: the registry in its
// declared priority order.
func (h *Handlers) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	descriptors := h.registry.Descriptors()
	infos := make([]CapabilityInfo, 0, len(descriptors))
	for _, d := range descriptors {
		infos = append(infos, CapabilityInfo{
			ID:          d.ID.String(),
			Description: d.Description,
			Keywords:    d.Keywords,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		h.logger.Error("Failed to encode capabilities response", slog.Any("error", err))
	}
}

// handleHealthz implements GET /healthz.
func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
