// Package api serves the optional control server: status, mode toggle and
// the preview stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/app"
	"github.com/bryanchriswhite/ShareFrame/internal/config"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/output"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Controller is the running overlay as seen by the server
type Controller interface {
	Status() *app.Status
	RequestToggle() bool
}

// Preview is the MJPEG stream
type Preview interface {
	http.Handler
	Stats() output.Stats
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	ctrl     Controller
	config   *config.Manager
	preview  Preview
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewServer creates a new API server. cfgMgr and preview may be nil.
func NewServer(ctrl Controller, cfgMgr *config.Manager, preview Preview, statusInterval time.Duration) *Server {
	if statusInterval <= 0 {
		statusInterval = 500 * time.Millisecond
	}
	s := &Server{
		router:   mux.NewRouter(),
		ctrl:     ctrl,
		config:   cfgMgr,
		preview:  preview,
		interval: statusInterval,
		upgrader: websocket.Upgrader{
			// the server binds to loopback by default and only the toggle
			// mutates anything
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/status/stream", s.handleStatusStream)
	api.HandleFunc("/mode/toggle", s.handleToggle).Methods("POST")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/preview/stats", s.handlePreviewStats).Methods("GET")

	if s.preview != nil {
		s.router.Handle("/stream", s.preview).Methods("GET")
	}
	s.router.HandleFunc("/", output.ViewerHandler()).Methods("GET")
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on bind:port until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, bind string, port int) error {
	log := logger.WithComponent("api")

	addr := net.JoinHostPort(bind, strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", "http://"+addr).Msg("Starting control server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// streaming clients outlive the timeout
		srv.Close()
	}
	log.Info().Msg("Control server stopped")
	return nil
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleToggle queues a toggle for the overlay loop. The new mode is not
// known until the loop applies it, so the response carries the mode the
// request was made from.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	previous := s.ctrl.Status().Mode
	queued := s.ctrl.RequestToggle()
	logger.WithComponent("api").Debug().Bool("queued", queued).Msg("Toggle requested")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":        queued,
		"previous_mode": previous,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.config == nil {
		http.Error(w, "no configuration file in use", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.config.Get())
}

func (s *Server) handlePreviewStats(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		http.Error(w, "preview disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.preview.Stats())
}

// handleStatusStream pushes the status snapshot every interval until the
// client disconnects.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// reads only detect the close; clients never send anything
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last time.Time
	for {
		st := s.ctrl.Status()
		if st.UpdatedAt.IsZero() || !st.UpdatedAt.Equal(last) {
			last = st.UpdatedAt
			conn.SetWriteDeadline(time.Now().Add(s.interval * 4))
			if err := conn.WriteJSON(st); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
