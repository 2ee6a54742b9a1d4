package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"runnerd/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 * 1024 // 64MB
)

// reply pairs a reply envelope with the payload data frame that follows it.
type reply struct {
	envelope ReplyEnvelope
	data     []byte
}

// session serves invocations on one WebSocket connection.
type session struct {
	conn    *websocket.Conn
	invoker Invoker
	logger  zerolog.Logger

	sendChan  chan *reply
	closeChan chan struct{}
	closeOnce sync.Once
}

// newSession creates a session over an upgraded connection.
func newSession(conn *websocket.Conn, invoker Invoker, logger zerolog.Logger) *session {
	return &session{
		conn:      conn,
		invoker:   invoker,
		logger:    logger,
		sendChan:  make(chan *reply, 64),
		closeChan: make(chan struct{}),
	}
}

// Run starts the session read and write loops
func (s *session) Run(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.writePump(ctx)
	s.readPump(ctx)
}

// readPump reads call envelope/body frame pairs and dispatches them
func (s *session) readPump(ctx context.Context) {
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeChan:
			return
		default:
		}

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			s.logger.Debug().Msg("expected a call envelope frame")
			return
		}

		var env CallEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Debug().Err(err).Msg("malformed call envelope")
			return
		}

		// The multipart body follows in the next frame.
		msgType, body, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug().Err(err).Msg("read error on body frame")
			return
		}
		if msgType != websocket.BinaryMessage {
			s.logger.Debug().Uint64("id", env.ID).Msg("expected a binary body frame")
			return
		}

		go s.handleCall(ctx, env, body)
	}
}

// handleCall decodes, invokes, and queues the reply
func (s *session) handleCall(ctx context.Context, env CallEnvelope, body []byte) {
	batched, err := wire.DecodeParams(bytes.NewReader(body), env.ContentType)
	if err != nil {
		s.send(&reply{envelope: ReplyEnvelope{ID: env.ID, Error: err.Error()}})
		return
	}

	result, err := s.invoker.Invoke(ctx, env.Method, batched)
	if err != nil {
		s.send(&reply{envelope: ReplyEnvelope{ID: env.ID, Error: err.Error()}})
		return
	}

	meta, err := json.Marshal(result.Meta)
	if err != nil {
		s.send(&reply{envelope: ReplyEnvelope{ID: env.ID, Error: fmt.Sprintf("unserializable result metadata: %v", err)}})
		return
	}

	s.send(&reply{
		envelope: ReplyEnvelope{
			ID:          env.ID,
			ContentType: wire.ContentType(result.Container),
			Meta:        string(meta),
		},
		data: result.Data,
	})

	s.logger.Debug().
		Uint64("id", env.ID).
		Str("method", env.Method).
		Int("slots", batched.Len()).
		Msg("invocation completed")
}

// send queues a reply for the write pump
func (s *session) send(r *reply) {
	select {
	case s.sendChan <- r:
	case <-s.closeChan:
	}
}

// writePump writes replies and keepalive pings
func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeChan:
			return
		case r := <-s.sendChan:
			if err := s.writeReply(r); err != nil {
				s.logger.Debug().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeReply writes the envelope frame and, on success, the data frame
func (s *session) writeReply(r *reply) error {
	envelope, err := json.Marshal(r.envelope)
	if err != nil {
		return err
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, envelope); err != nil {
		return err
	}
	if r.envelope.Error != "" {
		return nil
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, r.data)
}

// Close terminates the session
func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		s.conn.Close()
	})
}
