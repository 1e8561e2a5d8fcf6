// Package status serves the assistant's state over HTTP: a JSON snapshot,
// a websocket that pushes snapshots, health and metrics. Other packages
// mount their endpoints on the same server.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/askcam-lab/internal/assistant"
	"github.com/askcam-lab/internal/logging"
)

type Snapshotter interface {
	Snapshot() assistant.Snapshot
}

type Server struct {
	addr     string
	src      Snapshotter
	push     time.Duration
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	watchers atomic.Int64
}

func New(addr string, src Snapshotter, push time.Duration) *Server {
	if push <= 0 {
		push = 500 * time.Millisecond
	}
	s := &Server{
		addr:     addr,
		src:      src,
		push:     push,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /ws", s.handleWatch)
	return s
}

// Handle mounts h on pattern.
func (s *Server) Handle(pattern string, h http.Handler) { s.mux.Handle(pattern, h) }

func (s *Server) Handler() http.Handler { return s.mux }

// Watchers reports connected websocket clients.
func (s *Server) Watchers() int64 { return s.watchers.Load() }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Infow("status server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.src.Snapshot()); err != nil {
		logging.Debugw("status: write failed", "err", err)
	}
}

// handleWatch pushes a snapshot on connect and then every push interval
// until the client goes away or the server's context ends.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("status websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	s.watchers.Add(1)
	defer s.watchers.Add(-1)

	// Drain client frames so close messages are seen.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.push)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(s.src.Snapshot()); err != nil {
			logging.Debugw("status websocket closed", "remote", r.RemoteAddr, "err", err)
			return
		}
		select {
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}
