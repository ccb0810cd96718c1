package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// busStreamUpgrader uses a permissive CheckOrigin; this daemon has no
// auth/TLS concept.
var busStreamUpgrader = websocket.Upgrader{
	CheckOrigin:     func(_ *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleBusStream upgrades GET /pipelines/{name}/bus/stream to a WebSocket
// and pushes Bus messages live, reusing the same Bus ring buffer the
// polling bus_read shorthand drains. It is expressed as a push loop over
// the ordinary "read /pipelines/<name>/bus" command rather than reaching
// into node package internals, so it never bypasses the per-container lock
// or refcount discipline the rest of the core relies on.
func (s *Server) handleBusStream(w http.ResponseWriter, r *http.Request) {
	name := pipelineNameFromBusStreamPath(r.URL.Path)
	if name == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	conn, err := busStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("bus stream upgrade failed", "component", "http-server", "pipeline", name, "error", err)
		return
	}
	defer conn.Close()

	path := "read /pipelines/" + name + "/bus"
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := path
		_, out := s.parser.Execute(ctx, &line)
		if out != "" {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(out)); err != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func pipelineNameFromBusStreamPath(path string) string {
	const suffix = "/bus/stream"
	if !strings.HasSuffix(path, suffix) {
		return ""
	}
	trimmed := strings.TrimPrefix(strings.TrimSuffix(path, suffix), "/pipelines/")
	if trimmed == path {
		return ""
	}
	return trimmed
}
