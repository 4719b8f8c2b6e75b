// Package server provides the HTTP control surface of the bridge.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/signbridge/internal/server/api"
	"github.com/ayusman/signbridge/internal/store"
)

// Config holds the server configuration. Routes are only registered for the
// collaborators that are set.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Session    api.SessionController
	Vocabulary api.VocabularyService
	Plugins    api.PluginCatalog
	// Stats returns the body of GET /api/stats.
	Stats func() any
	Feed  *Broadcaster
	Log   logrus.FieldLogger
}

// Server is the HTTP server for the bridge.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		config.Log = l
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.http = &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Stats != nil {
		s.mux.HandleFunc("/api/stats", s.handleStats)
	}

	if s.config.Session != nil {
		h := api.NewSessionHandler(s.config.Session)
		s.mux.Handle("/api/session", h)
		s.mux.Handle("/api/session/", h)
	}

	if s.config.Vocabulary != nil {
		h := api.NewVocabularyHandler(s.config.Vocabulary)
		s.mux.Handle("/api/vocabulary", h)
		s.mux.Handle("/api/vocabulary/", h)
	}

	if s.config.Store != nil {
		conversation := api.NewConversationHandler(s.config.Store)
		s.mux.Handle("/api/conversation", conversation)
		s.mux.Handle("/api/conversation/", conversation)

		bindings := api.NewBindingHandler(s.config.Store, s.config.Vocabulary, s.config.Plugins)
		s.mux.Handle("/api/bindings", bindings)
		s.mux.Handle("/api/bindings/", bindings)
	}

	if s.config.Feed != nil {
		s.mux.Handle("/api/recognitions", s.config.Feed)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Millisecond).String(),
	}
	if s.config.Session != nil {
		response["session"] = s.config.Session.Snapshot().State.String()
	}
	if s.config.Vocabulary != nil {
		if v := s.config.Vocabulary.Vocabulary(); v != nil {
			response["vocabulary_version"] = v.Version
		}
	}

	writeJSON(w, response)
}

// handleStats handles GET requests to /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.config.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns
// nil after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.config.Log.WithField("addr", ln.Addr().String()).Info("control surface listening")
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes websocket clients and waits for
// in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.Feed != nil {
		s.config.Feed.Close()
	}
	return s.http.Shutdown(ctx)
}
