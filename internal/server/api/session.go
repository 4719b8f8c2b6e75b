package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/signbridge/internal/session"
)

// SessionController is the recognition session as seen by the control
// surface.
type SessionController interface {
	Start() session.Snapshot
	Stop(id string) error
	Snapshot() session.Snapshot
}

// SessionHandler serves /api/session, /api/session/start and
// /api/session/stop.
type SessionHandler struct {
	session SessionController
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(s SessionController) *SessionHandler {
	return &SessionHandler{session: s}
}

type sessionResponse struct {
	State        string     `json:"state"`
	SessionID    string     `json:"session_id,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

type stopSessionRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,uuid"`
}

func toSessionResponse(snap session.Snapshot) sessionResponse {
	resp := sessionResponse{State: snap.State.String(), SessionID: snap.ID}
	if snap.ID != "" {
		created, last := snap.CreatedAt, snap.LastActivity
		resp.CreatedAt, resp.LastActivity = &created, &last
	}
	return resp
}

// ServeHTTP implements http.Handler.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/session"), "/") {
	case "":
		if allowMethod(w, r, http.MethodGet) {
			writeJSON(w, http.StatusOK, toSessionResponse(h.session.Snapshot()))
		}
	case "/start":
		if allowMethod(w, r, http.MethodPost) {
			writeJSON(w, http.StatusOK, toSessionResponse(h.session.Start()))
		}
	case "/stop":
		if allowMethod(w, r, http.MethodPost) {
			h.stop(w, r)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// stop handles POST /api/session/stop. An empty session_id stops whatever
// session is current.
func (h *SessionHandler) stop(w http.ResponseWriter, r *http.Request) {
	var req stopSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	before := h.session.Snapshot()
	if err := h.session.Stop(req.SessionID); err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownSession):
			writeError(w, http.StatusNotFound, "Unknown session")
		case errors.Is(err, session.ErrSessionNotActive):
			writeError(w, http.StatusConflict, "No active session")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to stop session")
		}
		return
	}

	resp := toSessionResponse(h.session.Snapshot())
	resp.SessionID = before.ID
	writeJSON(w, http.StatusOK, resp)
}
