package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"state-connector/connector"
	"state-connector/logger"
	"state-connector/models"

	"go.uber.org/zap"
)

// Response strings of the trigger endpoint
const (
	MsgInitiated  = "State Connector initiated."
	MsgInProgress = "Claims already being processed."
	MsgUnknown    = "Unknown chain."
	MsgHealthy    = "Healthy."
	MsgVerified   = "Verified."
	MsgMismatch   = "Mismatch."
	MsgBadPayload = "Invalid payload."
)

// Handler contains the HTTP handlers of the trigger surface
type Handler struct {
	Connector *connector.Connector
}

// NewHandler creates and returns a new Handler instance
func NewHandler(c *connector.Connector) *Handler {
	return &Handler{Connector: c}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Trigger serves the single endpoint: ?prove=<chain> starts an attestation
// run, ?verify=<hex> re-derives a claimed period root, anything else is a
// liveness probe
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Has("prove"):
		h.prove(w, q.Get("prove"))
	case q.Has("verify"):
		h.verify(w, r, q.Get("verify"))
	default:
		h.health(w, r)
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status, err := h.Connector.Status(r.Context())
	if err != nil {
		logger.Logger.Error("Failed to read chain status", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": MsgHealthy,
		"chains":  status,
	})
}

func (h *Handler) prove(w http.ResponseWriter, chainName string) {
	runID, err := h.Connector.Trigger(chainName)
	switch {
	case errors.Is(err, models.ErrUnknownChain):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": MsgUnknown})
	case errors.Is(err, models.ErrClaimsInProgress):
		writeJSON(w, http.StatusOK, map[string]string{"message": MsgInProgress})
	case err != nil:
		logger.Logger.Error("Failed to start run", zap.String("chain", chainName), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		logger.Logger.Info("Run triggered", zap.String("chain", chainName), zap.String("run_id", runID))
		writeJSON(w, http.StatusOK, map[string]string{"message": MsgInitiated, "run_id": runID})
	}
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, payload string) {
	root, ok, err := h.Connector.Verify(r.Context(), payload)
	switch {
	case errors.Is(err, models.ErrUnknownChain):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": MsgUnknown})
		return
	case err != nil:
		logger.Logger.Error("Failed to verify period", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": MsgBadPayload, "error": err.Error()})
		return
	}
	msg := MsgVerified
	if !ok {
		msg = MsgMismatch
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg, "root": root.Hex()})
}
