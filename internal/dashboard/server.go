package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/haleyrc/workdriver/internal/coordinator"
	"github.com/haleyrc/workdriver/internal/state"
)

// Server exposes the coordinator's snapshot and the mark-seen mutation
// over localhost HTTP, plus an SSE stream so the browser page updates
// without polling. It holds no issue state of its own; reads come from
// the coordinator, writes go to the state store.
type Server struct {
	port        int
	store       *state.Store
	coord       *coordinator.Coordinator
	broadcaster *Broadcaster
	startedAt   time.Time
}

// New creates a Server. Attach the coordinator with SetCoordinator before
// calling Start.
func New(port int, store *state.Store) *Server {
	if port == 0 {
		port = 9845
	}
	return &Server{
		port:        port,
		store:       store,
		broadcaster: newBroadcaster(),
		startedAt:   time.Now(),
	}
}

// SetCoordinator wires the coordinator the server reads snapshots from
// and forwards trigger requests to.
func (s *Server) SetCoordinator(coord *coordinator.Coordinator) {
	s.coord = coord
}

// OnSnapshot broadcasts a freshly published snapshot to all SSE clients.
// Intended as the coordinator's OnPublish callback.
func (s *Server) OnSnapshot(snap coordinator.Snapshot) {
	s.broadcaster.send(SSEEvent{Type: "snapshot.updated", Payload: snap})
}

// URL returns the address the dashboard is reachable at.
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.port)
}

// Start binds the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	srv := &http.Server{
		Addr:    addr,
		Handler: buildHandler(s),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("dashboard: listening", "addr", "http://"+addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
