package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayusman/signbridge/internal/vocabulary"
)

// VocabularyService exposes the live vocabulary and reloads it from its
// configured source.
type VocabularyService interface {
	Vocabulary() *vocabulary.Vocabulary
	ReloadVocabulary(ctx context.Context) (*vocabulary.Vocabulary, error)
}

// VocabularyHandler serves /api/vocabulary and /api/vocabulary/reload.
type VocabularyHandler struct {
	svc VocabularyService
}

// NewVocabularyHandler creates a VocabularyHandler.
func NewVocabularyHandler(svc VocabularyService) *VocabularyHandler {
	return &VocabularyHandler{svc: svc}
}

type signResponse struct {
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Kind      string  `json:"kind"`
	Tolerance float64 `json:"tolerance,omitempty"`
}

type vocabularyResponse struct {
	Version string         `json:"version"`
	Signs   []signResponse `json:"signs"`
}

func toVocabularyResponse(v *vocabulary.Vocabulary) vocabularyResponse {
	resp := vocabularyResponse{Signs: make([]signResponse, 0, v.Len())}
	if v == nil {
		return resp
	}
	resp.Version = v.Version
	for _, e := range v.Entries {
		resp.Signs = append(resp.Signs, signResponse{
			Name:      e.Name,
			Category:  e.Category,
			Kind:      string(e.Kind),
			Tolerance: e.Tolerance,
		})
	}
	return resp
}

// ServeHTTP implements http.Handler.
func (h *VocabularyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/vocabulary"), "/") {
	case "":
		if allowMethod(w, r, http.MethodGet) {
			writeJSON(w, http.StatusOK, toVocabularyResponse(h.svc.Vocabulary()))
		}
	case "/reload":
		if allowMethod(w, r, http.MethodPost) {
			h.reload(w, r)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// reload handles POST /api/vocabulary/reload. On failure the previous
// vocabulary stays live.
func (h *VocabularyHandler) reload(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.ReloadVocabulary(r.Context())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Failed to reload vocabulary: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toVocabularyResponse(v))
}
