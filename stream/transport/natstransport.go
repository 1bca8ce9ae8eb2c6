package transport

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/stream/wire"
	"github.com/c360/bridgekit/types"
)

const (
	natsStreamSubjectPrefix = "bridgekit.stream."
	natsControlSuffix       = ".ctrl"
)

// NATSTransport streams packets over NATS subjects: wire frames on
// bridgekit.stream.<stream-id>, JSON control messages on the .ctrl suffix.
type NATSTransport struct {
	conn *nats.Conn
}

// NewNATSTransport wraps an established NATS connection.
func NewNATSTransport(conn *nats.Conn) *NATSTransport {
	return &NATSTransport{conn: conn}
}

// Kind implements Transport.
func (t *NATSTransport) Kind() types.Transport { return types.TransportNATS }

// Open implements Transport. The endpoint is unused; NATS routing is
// subject-based.
func (t *NATSTransport) Open(_ context.Context, _ string, streamID string) (Conn, error) {
	msgs := make(chan *nats.Msg, 256)
	sub, err := t.conn.ChanSubscribe(natsStreamSubjectPrefix+streamID, msgs)
	if err != nil {
		return nil, errors.WrapTransient(err, "NATSTransport", "Open", "subscribe")
	}
	return &natsConn{
		conn:     t.conn,
		sub:      sub,
		msgs:     msgs,
		closed:   make(chan struct{}),
		streamID: streamID,
	}, nil
}

type natsConn struct {
	conn     *nats.Conn
	sub      *nats.Subscription
	msgs     chan *nats.Msg
	closed   chan struct{}
	streamID string
}

func (c *natsConn) Receive(ctx context.Context) (*types.SensorPacket, error) {
	select {
	case msg := <-c.msgs:
		return wire.DecodePacket(msg.Data)
	case <-c.closed:
		return nil, errors.Wrap(errors.ErrNoConnection, "natsConn", "Receive", "subscription closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *natsConn) SendControl(_ context.Context, msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "natsConn", "SendControl", "control encode")
	}
	if err := c.conn.Publish(natsStreamSubjectPrefix+c.streamID+natsControlSuffix, data); err != nil {
		return errors.WrapTransient(err, "natsConn", "SendControl", "control publish")
	}
	return nil
}

func (c *natsConn) Close() error {
	err := c.sub.Unsubscribe()
	close(c.closed)
	if err != nil {
		return errors.WrapTransient(err, "natsConn", "Close", "unsubscribe")
	}
	return nil
}
