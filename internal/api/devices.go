package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/netpulse/internal/telemetry"
)

// maxHistoryLimit matches the clamp applied by the history store.
const maxHistoryLimit = 200

// StatusRequest is the body of POST /api/devices/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// BroadcastRequest is the body of POST /api/broadcast.
type BroadcastRequest struct {
	Message string `json:"message"`
}

// HistoryResponse is the body of GET /api/devices/{id}/history.
type HistoryResponse struct {
	DeviceID string                   `json:"deviceId"`
	Count    int                      `json:"count"`
	Samples  []telemetry.HistoryEntry `json:"samples"`
}

// handleDeviceStatus notifies the members of a device group that the
// device's status changed.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeValidationError(w, "status is required")
		return
	}

	n := telemetry.StatusNotification(deviceID, req.Status, s.now())
	recipients, err := s.publisher.NotifyDevice(deviceID, n)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.logger.Info("device status published",
		"device_id", deviceID,
		"status", req.Status,
		"recipients", recipients,
	)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// handleBroadcast sends a notification to every connection.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeValidationError(w, "message is required")
		return
	}

	recipients, err := s.publisher.NotifyAll(telemetry.Notification{Text: req.Message})
	if err != nil {
		s.logger.Error("broadcast failed", "error", err)
		writeInternalError(w, "broadcast failed")
		return
	}

	s.logger.Info("broadcast published", "recipients", recipients)
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// handleDeviceHistory returns persisted samples for a device, newest first.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "sample history is disabled")
		return
	}

	deviceID := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeBadRequest(w, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("history query failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "history query failed")
		return
	}
	if entries == nil {
		entries = []telemetry.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		DeviceID: deviceID,
		Count:    len(entries),
		Samples:  entries,
	})
}
