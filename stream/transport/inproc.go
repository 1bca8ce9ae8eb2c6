package transport

import (
	"context"
	"sync"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

// Hub is the in-process transport: bridges publish packets into named feeds
// and sessions attach to them over plain channels. Used by tests and by
// bridges co-located in the same process (local-mode correlation).
type Hub struct {
	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	packets  chan *types.SensorPacket
	controls chan ControlMessage
	closed   chan struct{}
	once     sync.Once
}

// NewHub creates an in-process transport hub.
func NewHub() *Hub {
	return &Hub{feeds: make(map[string]*feed)}
}

// Kind implements Transport.
func (h *Hub) Kind() types.Transport { return types.TransportInproc }

// Open implements Transport. The endpoint is ignored; streams are addressed
// by id alone within one process.
func (h *Hub) Open(_ context.Context, _ string, streamID string) (Conn, error) {
	return &inprocConn{feed: h.feed(streamID)}, nil
}

// Publish delivers a packet to the stream's feed, blocking until a session
// consumes it or the context is cancelled.
func (h *Hub) Publish(ctx context.Context, pkt *types.SensorPacket) error {
	f := h.feed(pkt.StreamID)
	select {
	case f.packets <- pkt:
		return nil
	case <-f.closed:
		return errors.Wrap(errors.ErrNoConnection, "Hub", "Publish", "feed closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Controls returns the control-message channel a bridge should watch for
// throttle and pause signals on its stream.
func (h *Hub) Controls(streamID string) <-chan ControlMessage {
	return h.feed(streamID).controls
}

// CloseStream tears down a feed, unblocking publishers and receivers.
func (h *Hub) CloseStream(streamID string) {
	h.mu.Lock()
	f, ok := h.feeds[streamID]
	delete(h.feeds, streamID)
	h.mu.Unlock()
	if ok {
		f.close()
	}
}

func (h *Hub) feed(streamID string) *feed {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[streamID]
	if !ok {
		f = &feed{
			packets:  make(chan *types.SensorPacket, 64),
			controls: make(chan ControlMessage, 16),
			closed:   make(chan struct{}),
		}
		h.feeds[streamID] = f
	}
	return f
}

func (f *feed) close() {
	f.once.Do(func() { close(f.closed) })
}

type inprocConn struct {
	feed *feed
}

func (c *inprocConn) Receive(ctx context.Context) (*types.SensorPacket, error) {
	select {
	case pkt := <-c.feed.packets:
		return pkt, nil
	case <-c.feed.closed:
		return nil, errors.Wrap(errors.ErrNoConnection, "inprocConn", "Receive", "feed closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *inprocConn) SendControl(ctx context.Context, msg ControlMessage) error {
	select {
	case c.feed.controls <- msg:
		return nil
	case <-c.feed.closed:
		return errors.Wrap(errors.ErrNoConnection, "inprocConn", "SendControl", "feed closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *inprocConn) Close() error {
	c.feed.close()
	return nil
}
