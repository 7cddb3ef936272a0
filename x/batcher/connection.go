package batcher

import (
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
)

var errMalformedFrame = errors.New("malformed frame")

// TimeoutConfig contains timeout settings for a batcher connection.
type TimeoutConfig struct {
	Handshake  time.Duration // wait for the protocol version greeting
	Write      time.Duration // per outbound frame
	Disconnect time.Duration // close frame on shutdown
}

// connection wraps a websocket to the batcher.
type connection struct {
	ws       *websocket.Conn
	id       string
	log      zerolog.Logger
	timeouts TimeoutConfig

	writeMu   sync.Mutex
	closeOnce sync.Once

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

type inbound struct {
	env Envelope
	err error
}

func dial(ctx context.Context, url string, cfg Config, id string, log zerolog.Logger) (*connection, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	ws, resp, err := dialer.DialContext(dialCtx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &connection{
		ws:  ws,
		id:  id,
		log: log.With().Str("conn_id", id).Str("remote", url).Logger(),
		timeouts: TimeoutConfig{
			Handshake:  cfg.HandshakeTimeout,
			Write:      cfg.WriteTimeout,
			Disconnect: time.Second,
		},
	}
	c.log.Debug().Msg("connected to batcher")
	return c, nil
}

// send writes a single envelope as a text frame.
func (c *connection) send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeouts.Write > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.timeouts.Write)); err != nil {
			return err
		}
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, err)
	}
	c.bytesWritten.Add(uint64(len(data)))
	return nil
}

// read blocks for the next frame. Frames that are not JSON envelopes yield
// an error wrapping errMalformedFrame; the connection stays usable.
func (c *connection) read() (Envelope, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	c.bytesRead.Add(uint64(len(data)))

	if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
		return Envelope{}, fmt.Errorf("%w: unexpected frame type %d", errMalformedFrame, msgType)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", errMalformedFrame)
	}
	return env, nil
}

// readHandshake reads the first frame under the handshake deadline.
func (c *connection) readHandshake() (Envelope, error) {
	if c.timeouts.Handshake > 0 {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.timeouts.Handshake)); err != nil {
			return Envelope{}, err
		}
		defer c.ws.SetReadDeadline(time.Time{})
	}
	return c.read()
}

// readLoop forwards frames to out until a transport error or done.
func (c *connection) readLoop(out chan<- inbound, done <-chan struct{}) {
	for {
		env, err := c.read()
		select {
		case out <- inbound{env: env, err: err}:
		case <-done:
			return
		}
		if err != nil && !errors.Is(err, errMalformedFrame) {
			return
		}
	}
}

// close sends a normal close frame and releases the socket.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(c.timeouts.Disconnect)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		c.writeMu.Unlock()

		if err := c.ws.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close batcher connection")
		}
		c.log.Debug().
			Uint64("bytes_read", c.bytesRead.Load()).
			Uint64("bytes_written", c.bytesWritten.Load()).
			Msg("disconnected from batcher")
	})
}
