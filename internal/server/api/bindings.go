package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/signbridge/internal/plugin"
	"github.com/ayusman/signbridge/internal/store"
)

// PluginCatalog resolves plugin names.
type PluginCatalog interface {
	Get(name string) (*plugin.Plugin, error)
}

// BindingHandler handles HTTP requests for sign to plugin bindings.
type BindingHandler struct {
	store   *store.Store
	vocab   VocabularyService
	plugins PluginCatalog
}

// NewBindingHandler creates a BindingHandler. vocab and plugins are optional;
// when set, bindings must name a known sign and a plugin action.
func NewBindingHandler(s *store.Store, vocab VocabularyService, plugins PluginCatalog) *BindingHandler {
	return &BindingHandler{store: s, vocab: vocab, plugins: plugins}
}

// ServeHTTP routes /api/bindings and /api/bindings/{sign}.
func (h *BindingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sign := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/bindings"), "/")

	if sign == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, sign)
	case http.MethodPut:
		h.update(w, r, sign)
	case http.MethodDelete:
		h.delete(w, r, sign)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type createBindingRequest struct {
	SignName   string          `json:"sign_name" validate:"required,max=128"`
	PluginName string          `json:"plugin_name" validate:"required,max=128"`
	ActionName string          `json:"action_name" validate:"required,max=128"`
	Config     json.RawMessage `json:"config"`
}

type updateBindingRequest struct {
	PluginName string          `json:"plugin_name" validate:"omitempty,max=128"`
	ActionName string          `json:"action_name" validate:"omitempty,max=128"`
	Config     json.RawMessage `json:"config"`
	Enabled    *bool           `json:"enabled"`
}

type bindingResponse struct {
	ID         string          `json:"id"`
	SignName   string          `json:"sign_name"`
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  string          `json:"created_at"`
}

func toBindingResponse(b *store.Binding) bindingResponse {
	config := b.Config
	if config == nil {
		config = json.RawMessage("{}")
	}
	return bindingResponse{
		ID:         b.ID,
		SignName:   b.SignName,
		PluginName: b.PluginName,
		ActionName: b.ActionName,
		Config:     config,
		Enabled:    b.Enabled,
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
	}
}

// list handles GET /api/bindings.
func (h *BindingHandler) list(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.store.Bindings().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bindings")
		return
	}

	resp := struct {
		Bindings []bindingResponse `json:"bindings"`
	}{Bindings: make([]bindingResponse, 0, len(bindings))}
	for _, b := range bindings {
		resp.Bindings = append(resp.Bindings, toBindingResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// get handles GET /api/bindings/{sign}.
func (h *BindingHandler) get(w http.ResponseWriter, r *http.Request, sign string) {
	b, err := h.store.Bindings().GetBySignName(sign)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "Binding not found")
		return
	}
	writeJSON(w, http.StatusOK, toBindingResponse(b))
}

// create handles POST /api/bindings.
func (h *BindingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createBindingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if msg := h.check(req.SignName, req.PluginName, req.ActionName); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := h.store.Bindings().GetBySignName(req.SignName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check existing binding")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Sign already bound")
		return
	}

	b := &store.Binding{
		ID:         uuid.New().String(),
		SignName:   req.SignName,
		PluginName: req.PluginName,
		ActionName: req.ActionName,
		Config:     req.Config,
		Enabled:    true,
	}
	if err := h.store.Bindings().Save(b); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create binding")
		return
	}

	writeJSON(w, http.StatusCreated, toBindingResponse(b))
}

// update handles PUT /api/bindings/{sign}.
func (h *BindingHandler) update(w http.ResponseWriter, r *http.Request, sign string) {
	b, err := h.store.Bindings().GetBySignName(sign)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "Binding not found")
		return
	}

	var req updateBindingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.PluginName != "" {
		b.PluginName = req.PluginName
	}
	if req.ActionName != "" {
		b.ActionName = req.ActionName
	}
	if req.Config != nil {
		b.Config = req.Config
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}

	if msg := h.check(b.SignName, b.PluginName, b.ActionName); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Bindings().Save(b); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update binding")
		return
	}

	writeJSON(w, http.StatusOK, toBindingResponse(b))
}

// delete handles DELETE /api/bindings/{sign}.
func (h *BindingHandler) delete(w http.ResponseWriter, r *http.Request, sign string) {
	if err := h.store.Bindings().Delete(sign); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Binding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete binding")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// check returns a client error message, or "" when the binding is valid.
func (h *BindingHandler) check(sign, pluginName, action string) string {
	if h.vocab != nil {
		if _, ok := h.vocab.Vocabulary().Lookup(sign); !ok {
			return "Sign not found"
		}
	}
	if h.plugins != nil {
		p, err := h.plugins.Get(pluginName)
		if err != nil {
			return "Plugin not found"
		}
		if len(p.Manifest.Actions) > 0 && !p.Manifest.HasAction(action) {
			return "Plugin does not support action " + action
		}
	}
	return ""
}
