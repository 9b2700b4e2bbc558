package server

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/roundtable/internal/discussion"
	httpmiddleware "github.com/wolfeidau/roundtable/internal/http"
	"github.com/wolfeidau/roundtable/internal/logger"
)

// Server wraps the HTTP surface of the discussion service.
type Server struct {
	svc *discussion.Service
}

// NewServer creates a new server around the discussion service.
func NewServer(svc *discussion.Service) *Server {
	return &Server{
		svc: svc,
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /raise-hand", s.handleRaiseHand)
	mux.HandleFunc("POST /speak", s.handleSpeak)
	mux.HandleFunc("POST /ai-speak", s.handleAISpeak)
	mux.HandleFunc("POST /end", s.handleEnd)
	mux.HandleFunc("DELETE /session", s.handleDelete)

	var handler http.Handler = mux
	handler = httpmiddleware.Recoverer()(handler)
	handler = logger.NewHTTPRequests(log)(handler)
	handler = httpmiddleware.ClientIPMiddleware()(handler)

	return handler
}
