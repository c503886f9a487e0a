package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/config"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/scenario"
)

// ScenarioSource exposes the published scenario list and the operations it
// carries.
type ScenarioSource interface {
	Snapshot() []scenario.Scenario
	Operation(interactionID, name, connectionID string) (domain.Operation, bool)
}

// StatusProvider reports bridge health for the status endpoint.
type StatusProvider interface {
	GetSystemStatus() map[string]interface{}
}

type APIHandlers struct {
	client    config.ClientConfig
	scenarios ScenarioSource
	status    StatusProvider
	logger    zerolog.Logger
	version   string
	now       func() time.Time
}

type OperationRequest struct {
	InteractionID string `json:"interactionId"`
	OperationName string `json:"operationName"`
	ConnectionID  string `json:"connectionId,omitempty"`
}

type OperationResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	InteractionID string `json:"interactionId"`
	OperationName string `json:"operationName"`
}

type ScenariosResponse struct {
	Success   bool                `json:"success"`
	Scenarios []scenario.Scenario `json:"scenarios"`
}

type StatusResponse struct {
	Success bool                   `json:"success"`
	Status  map[string]interface{} `json:"status"`
	Version string                 `json:"version"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewAPIHandlers(client config.ClientConfig, scenarios ScenarioSource, status StatusProvider, version string, logger zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		client:    client,
		scenarios: scenarios,
		status:    status,
		logger:    logger,
		version:   version,
		now:       time.Now,
	}
}

func (h *APIHandlers) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/client-configuration", h.handleClientConfiguration)
	mux.HandleFunc("/api/v1/scenarios", h.handleScenarios)
	mux.HandleFunc("/api/v1/operations", h.handleOperation)
	mux.HandleFunc("/api/v1/status", h.handleStatus)
	mux.HandleFunc("/api/v1/health", h.handleHealth)

	return h.corsMiddleware(mux)
}

func (h *APIHandlers) handleClientConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	features := h.client.Features
	if features == nil {
		features = map[string]bool{}
	}
	h.sendJSON(w, config.ClientConfig{IconPack: h.client.IconPack, Features: features}, http.StatusOK)
}

func (h *APIHandlers) handleScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scenarios := h.scenarios.Snapshot()
	if scenarios == nil {
		scenarios = []scenario.Scenario{}
	}
	h.sendJSON(w, ScenariosResponse{Success: true, Scenarios: scenarios}, http.StatusOK)
}

func (h *APIHandlers) handleOperation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode operation request")
		h.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.InteractionID == "" || req.OperationName == "" {
		h.sendError(w, "Interaction ID and operation name are required", http.StatusBadRequest)
		return
	}

	op, ok := h.scenarios.Operation(req.InteractionID, req.OperationName, req.ConnectionID)
	if !ok {
		h.sendError(w, "Operation not offered for this interaction", http.StatusNotFound)
		return
	}
	if op.Disabled {
		h.sendError(w, "Operation is disabled", http.StatusConflict)
		return
	}

	h.logger.Info().
		Str("interaction_id", req.InteractionID).
		Str("operation", req.OperationName).
		Str("connection_id", req.ConnectionID).
		Msg("API operation request received")

	// Handlers hand off to the event loop; the request context ends with
	// the response.
	op.Invoke(context.WithoutCancel(r.Context()))

	h.sendJSON(w, OperationResponse{
		Success:       true,
		Message:       "Operation dispatched",
		InteractionID: req.InteractionID,
		OperationName: req.OperationName,
	}, http.StatusAccepted)
}

func (h *APIHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := StatusResponse{
		Success: true,
		Status:  h.status.GetSystemStatus(),
		Version: h.version,
	}

	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"success":   true,
		"status":    "healthy",
		"timestamp": h.now().Format(time.RFC3339),
	}

	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandlers) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *APIHandlers) sendError(w http.ResponseWriter, message string, statusCode int) {
	response := ErrorResponse{
		Success: false,
		Error:   message,
	}
	h.sendJSON(w, response, statusCode)
}

func (h *APIHandlers) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
