// Package admin serves the store's status, outstanding count and metrics
// over HTTP, plus a websocket feed of the outstanding count.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jkassis/bbstore/internal/store"
)

// Source is the read-only view of a store the admin surface needs.
type Source interface {
	Status(ctx context.Context, format store.StatusFormat) string
	Messages() int64
}

// Server routes admin requests to a Source.
type Server struct {
	src      Source
	logger   *zap.Logger
	interval time.Duration
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// Count is the payload of /messages and of each websocket frame.
type Count struct {
	Messages int64 `json:"messages"`
}

// ServerMake builds the admin handler. interval paces the websocket feed.
func ServerMake(src Source, logger *zap.Logger, interval time.Duration) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	s := &Server{
		src:      src,
		logger:   logger,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Allow all origins
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/messages", s.handleMessages)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	format := store.ParseStatusFormat(r.URL.Query().Get("format"))
	switch format {
	case store.StatusHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case store.StatusXML:
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	_, _ = w.Write([]byte(s.src.Status(r.Context(), format)))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Count{Messages: s.src.Messages()}); err != nil {
		s.logger.Warn("Failed to write message count", zap.Error(err))
	}
}

// handleWebSocket upgrades the connection and pushes the outstanding count
// every interval until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.logger.Debug("WebSocket connection established", zap.String("remote", r.RemoteAddr))

	// reads only detect the close; clients are not expected to send anything
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(Count{Messages: s.src.Messages()}); err != nil {
			s.logger.Warn("WebSocket write error", zap.Error(err))
			return
		}
		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
