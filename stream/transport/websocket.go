package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/stream/wire"
	"github.com/c360/bridgekit/types"
)

// WSTransport streams packets over a WebSocket connection to the bridge's
// endpoint. Binary messages carry wire frames; text messages carry JSON
// control messages in the session-to-bridge direction.
type WSTransport struct {
	dialer *websocket.Dialer
}

// NewWSTransport creates a WebSocket transport using the default dialer.
func NewWSTransport() *WSTransport {
	return &WSTransport{dialer: websocket.DefaultDialer}
}

// Kind implements Transport.
func (t *WSTransport) Kind() types.Transport { return types.TransportWebSocket }

// Open implements Transport. The endpoint is the bridge's ws:// or wss://
// URL; the stream id is appended as a query parameter.
func (t *WSTransport) Open(ctx context.Context, endpoint, streamID string) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, endpoint+"?stream="+streamID, nil)
	if err != nil {
		return nil, errors.WrapTransient(err, "WSTransport", "Open", "dial "+endpoint)
	}

	c := &wsConn{
		conn:       conn,
		packets:    make(chan *types.SensorPacket, 256),
		errs:       make(chan error, 1),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

type wsConn struct {
	conn       *websocket.Conn
	packets    chan *types.SensorPacket
	errs       chan error
	closed     chan struct{}
	readerDone chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// readLoop pumps frames off the socket so Receive can honor context
// cancellation. Decode failures on individual frames end the connection;
// a bridge speaking a different wire version is not recoverable mid-stream.
func (c *wsConn) readLoop() {
	defer close(c.readerDone)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.errs <- errors.WrapTransient(err, "wsConn", "Receive", "socket read")
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		pkt, err := wire.DecodePacket(data)
		if err != nil {
			c.errs <- err
			return
		}
		// A receiver that stopped consuming must not pin this goroutine past
		// the connection's close.
		select {
		case c.packets <- pkt:
		case <-c.closed:
			return
		}
	}
}

func (c *wsConn) Receive(ctx context.Context) (*types.SensorPacket, error) {
	select {
	case pkt := <-c.packets:
		return pkt, nil
	case err := <-c.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *wsConn) SendControl(_ context.Context, msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "wsConn", "SendControl", "control encode")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "wsConn", "SendControl", "control write")
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.readerDone
	})
	if err != nil {
		return errors.WrapTransient(err, "wsConn", "Close", "socket close")
	}
	return nil
}
