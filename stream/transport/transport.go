// Package transport provides the stream transport abstraction and its
// concrete implementations: in-process (tests and co-located bridges), NATS
// subjects, WebSocket, and MQTT topics.
//
// Every transport carries two flows per stream: sensor packets from the
// bridge to the session, and control messages (throttle, pause, resume) from
// the session back to the bridge. Backpressure is always an explicit control
// message, never silently dropped data.
package transport

import (
	"context"

	"github.com/c360/bridgekit/types"
)

// Control is a flow-control verb sent from a session to its bridge.
type Control uint8

// Control verbs.
const (
	// ControlThrottle asks the bridge to reduce its emission rate.
	ControlThrottle Control = iota

	// ControlPause asks the bridge to stop emitting until resumed.
	ControlPause

	// ControlResume lifts a previous throttle or pause.
	ControlResume
)

// String implements fmt.Stringer.
func (c Control) String() string {
	switch c {
	case ControlThrottle:
		return "throttle"
	case ControlPause:
		return "pause"
	case ControlResume:
		return "resume"
	default:
		return "unknown"
	}
}

// ControlMessage is a flow-control signal for one stream.
type ControlMessage struct {
	StreamID string  `json:"stream_id"`
	Control  Control `json:"control"`
	Reason   string  `json:"reason,omitempty"`
}

// Conn is one open stream connection. Receive returns packets in arrival
// order; ordering within a stream is the bridge's responsibility, gap
// detection the session's.
type Conn interface {
	// Receive blocks until the next packet arrives, the context is cancelled,
	// or the connection fails.
	Receive(ctx context.Context) (*types.SensorPacket, error)

	// SendControl delivers a flow-control message to the bridge.
	SendControl(ctx context.Context, msg ControlMessage) error

	// Close tears the connection down and unblocks pending Receive calls.
	Close() error
}

// Transport opens stream connections over one protocol.
type Transport interface {
	// Kind identifies the protocol this transport speaks.
	Kind() types.Transport

	// Open dials the bridge endpoint and attaches to the given stream.
	Open(ctx context.Context, endpoint, streamID string) (Conn, error)
}
