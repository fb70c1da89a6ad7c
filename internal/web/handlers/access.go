package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kozaktomas/cantine/internal/access"
)

// AccessHandler controls the turnstile session.
type AccessHandler struct {
	manager *access.Manager
}

// NewAccessHandler creates a new access handler.
func NewAccessHandler(m *access.Manager) *AccessHandler {
	return &AccessHandler{manager: m}
}

// Start opens the camera and starts recognition.
func (h *AccessHandler) Start(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Start(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

// Stop ends recognition and releases the camera.
func (h *AccessHandler) Stop(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Stop()
	if sess == nil {
		respondDomainError(w, r, err)
		return
	}
	if err != nil {
		slog.Warn("camera release failed", "session", sess.ID(), "error", err)
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

// Status returns the current session state.
func (h *AccessHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess := h.manager.Current()
	if sess == nil {
		respondJSON(w, http.StatusOK, access.Snapshot{State: access.StateIdle, Status: access.StatusWaiting, LastEvent: access.NoEventYet})
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

// Events streams session events as server-sent events until the session stops
// or the client disconnects.
func (h *AccessHandler) Events(w http.ResponseWriter, r *http.Request) {
	sess := h.manager.Current()
	if sess == nil {
		respondError(w, http.StatusNotFound, access.ErrNoSession.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	sendSSEEvent(w, flusher, access.EventStatus, sess.Snapshot())

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}

// Preview returns the last annotated frame as JPEG.
func (h *AccessHandler) Preview(w http.ResponseWriter, r *http.Request) {
	sess := h.manager.Current()
	if sess == nil {
		respondError(w, http.StatusNotFound, access.ErrNoSession.Error())
		return
	}
	data, err := sess.Preview()
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
