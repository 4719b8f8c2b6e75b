package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/signbridge/internal/store"
)

// ConversationHandler serves /api/conversation/{session_id}: the signs
// recognized during one session, oldest first.
type ConversationHandler struct {
	store *store.Store
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(s *store.Store) *ConversationHandler {
	return &ConversationHandler{store: s}
}

type conversationResponse struct {
	Session      *store.SessionRecord `json:"session"`
	Recognitions []*store.Recognition `json:"recognitions"`
}

// ServeHTTP implements http.Handler.
func (h *ConversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/conversation"), "/")
	if id == "" {
		h.list(w, r)
		return
	}

	rec, err := h.store.Sessions().Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	recognitions, err := h.store.Recognitions().ListBySession(id, limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recognitions")
		return
	}
	if recognitions == nil {
		recognitions = []*store.Recognition{}
	}

	writeJSON(w, http.StatusOK, conversationResponse{Session: rec, Recognitions: recognitions})
}

// list handles GET /api/conversation and returns recent sessions.
func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List(limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
