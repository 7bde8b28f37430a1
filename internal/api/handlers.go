// Package api provides HTTP handlers for BreatheCheck endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

// twimlAck is the empty TwiML response acknowledging a Twilio webhook
// delivery; the actual reply goes out asynchronously over the REST API.
const twimlAck = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TurnRequest is the payload for the direct assessment-turn endpoint.
type TurnRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// writeJSONResponse writes a JSON API response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "breathecheck"}))
}

// turnHandler runs one assessment turn directly over HTTP. The user ID is
// treated as an opaque session key; turns for the same ID are serialized
// exactly like transport messages.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}

	reply, err := s.respHandler.RunTurn(r.Context(), req.UserID, req.Text)
	if err != nil {
		slog.Error("Server.turnHandler: turn failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// sessionHandler inspects or deletes a single in-progress session.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if userID == "" || strings.Contains(userID, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		session, err := s.store.GetSession(userID)
		if err != nil {
			slog.Error("Server.sessionHandler: lookup failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
			return
		}
		if session == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(session))
	case http.MethodDelete:
		if err := s.store.DeleteSession(userID); err != nil {
			slog.Error("Server.sessionHandler: delete failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodDelete}, ", "))
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// twilioWebhookHandler accepts inbound Twilio WhatsApp messages and queues
// them for processing. The webhook is acknowledged immediately with empty
// TwiML; the assessment reply is sent asynchronously.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" {
		slog.Warn("Server.twilioWebhookHandler: missing From field")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.twilio.HandleIncoming(from, body); err != nil {
		slog.Error("Server.twilioWebhookHandler: failed to queue message", "error", err, "from", from)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(twimlAck)); err != nil {
		slog.Error("Server.twilioWebhookHandler: failed to write ack", "error", err)
	}
}
