package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"MapBoard/internal/export"
)

const snapshotTimeout = 5 * time.Second

// Server is the HTTP front of a hub.
type Server struct {
	hub      *Hub
	ctx      context.Context
	upgrader websocket.Upgrader
}

// NewServer returns a server whose websocket sessions live until ctx is
// done.
func NewServer(ctx context.Context, hub *Hub) *Server {
	return &Server{
		hub: hub,
		ctx: ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler routes the relay endpoints and logs every request.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			glog.Infof("[relay] %s %s %d %s\n", request.Method, request.URL, m.Code, m.Duration)
		})
	})
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.sync)
	r.Methods(http.MethodGet).Path("/state").HandlerFunc(s.getState)
	r.Methods(http.MethodGet).Path("/export.pdf").HandlerFunc(s.exportPDF)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (s *Server) sync(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		glog.Errorf("[relay] failed to upgrade: %s\n", err)
		return
	}
	s.hub.serve(s.ctx, conn)
}

func (s *Server) getState(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), snapshotTimeout)
	defer cancel()
	snap, err := s.hub.Snapshot(ctx)
	if err != nil {
		writeSnapshotError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, snap)
}

func (s *Server) exportPDF(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), snapshotTimeout)
	defer cancel()
	snap, err := s.hub.Snapshot(ctx)
	if err != nil {
		writeSnapshotError(writer, err)
		return
	}
	writer.Header().Set("Content-Type", "application/pdf")
	if err := export.WritePDF(writer, snap); err != nil {
		glog.Errorf("[relay] export failed: %s\n", err)
	}
}

func writeSnapshotError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		glog.Errorf("[relay] failed to encode json response: %s\n", err)
	}
}
