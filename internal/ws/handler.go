package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"runnerd/internal/params"
	"runnerd/internal/payload"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Invoker runs a named method on a decoded batched parameter container.
// The server-side method registry satisfies this.
type Invoker interface {
	Invoke(ctx context.Context, name string, batched params.Params[*payload.Payload]) (*payload.Payload, error)
}

// Handler upgrades HTTP requests to WebSocket invocation sessions.
type Handler struct {
	invoker Invoker
	logger  zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(invoker Invoker, logger zerolog.Logger) *Handler {
	return &Handler{
		invoker: invoker,
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	h.logger.Info().
		Str("remoteAddr", r.RemoteAddr).
		Msg("new WebSocket connection")

	s := newSession(conn, h.invoker, h.logger.With().Str("remoteAddr", r.RemoteAddr).Logger())
	s.Run(r.Context())
}
