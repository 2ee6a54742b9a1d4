package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"runnerd/internal/payload"
	"runnerd/internal/wire"
)

// ErrClosed is returned by Call after the connection is gone.
var ErrClosed = errors.New("ws: connection closed")

// callResult carries one correlated reply back to its caller.
type callResult struct {
	payload *payload.Payload
	err     error
}

// Client is the caller side of the WebSocket invocation transport. It
// multiplexes concurrent calls over one connection and correlates replies
// by envelope ID.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan callResult

	closeChan chan struct{}
	closeOnce sync.Once
}

// Dial connects to a runner's /ws endpoint.
func Dial(ctx context.Context, url string, logger zerolog.Logger) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}

	c := &Client{
		conn:      conn,
		logger:    logger.With().Str("component", "wsclient").Logger(),
		pending:   make(map[uint64]chan callResult),
		closeChan: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)

	go c.readLoop()
	return c, nil
}

// Call sends one invocation (an already-encoded multipart body) and waits
// for the correlated reply payload.
func (c *Client) Call(ctx context.Context, method string, body []byte, contentType string) (*payload.Payload, error) {
	id := c.nextID.Add(1)
	ch := make(chan callResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	envelope, err := json.Marshal(CallEnvelope{ID: id, Method: method, ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("ws: marshal call envelope: %w", err)
	}

	// Both frames of one call must be adjacent on the wire.
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.conn.WriteMessage(websocket.TextMessage, envelope)
	if err == nil {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = c.conn.WriteMessage(websocket.BinaryMessage, body)
	}
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ws: send call %d: %w", id, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeChan:
		return nil, ErrClosed
	case res := <-ch:
		return res.payload, res.err
	}
}

// readLoop reads reply envelope/data frame pairs and delivers them
func (c *Client) readLoop() {
	defer c.Close()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.logger.Debug().Msg("expected a reply envelope frame")
			return
		}

		var env ReplyEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug().Err(err).Msg("malformed reply envelope")
			return
		}

		if env.Error != "" {
			c.deliver(env.ID, callResult{err: errors.New(env.Error)})
			continue
		}

		msgType, body, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("read error on data frame")
			return
		}
		if msgType != websocket.BinaryMessage {
			c.logger.Debug().Uint64("id", env.ID).Msg("expected a binary data frame")
			return
		}

		header := http.Header{}
		header.Set(wire.PayloadMetaHeader, env.Meta)
		header.Set("Content-Type", env.ContentType)
		pl, err := wire.ReadPayload(header, bytes.NewReader(body))
		c.deliver(env.ID, callResult{payload: pl, err: err})
	}
}

// deliver hands a result to the waiting caller, if any
func (c *Client) deliver(id uint64, res callResult) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug().Uint64("id", id).Msg("reply for unknown call")
		return
	}
	select {
	case ch <- res:
	default:
	}
}

// Close terminates the connection and fails all pending calls.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.conn.Close()
	})
}
