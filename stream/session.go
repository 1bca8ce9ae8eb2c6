package stream

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/pkg/buffer"
	"github.com/c360/bridgekit/pkg/retry"
	"github.com/c360/bridgekit/stream/transport"
	"github.com/c360/bridgekit/types"
)

// Session is one live stream subscription. It owns the connection, the packet
// buffer, gap detection and flow control. A session belongs to exactly one
// consumer; packets are delivered in non-decreasing sequence order.
type Session struct {
	ID         string
	URI        *StreamURI
	BridgeID   string
	StreamID   string
	Domain     types.Domain
	SampleRate uint32
	Format     types.SampleFormat
	Channels   uint8
	Transport  types.Transport

	// sourceGroup marks co-location: sessions served from the same endpoint
	// share a group and can be correlated locally.
	sourceGroup string

	opener func(ctx context.Context) (transport.Conn, error)
	buf    buffer.Buffer[*types.SensorPacket]
	state  *stateMachine
	logger *slog.Logger
	core   *metric.Metrics

	gapTolerance uint64
	reconnect    retry.Config
	highWater    float64
	lowWater     float64

	// conn is replaced only by the receive goroutine; every other goroutine
	// reads it under mu so a close racing a re-dial cannot leak the fresh
	// connection.
	mu      sync.Mutex
	conn    transport.Conn
	closed  bool
	sync    types.SyncQuality
	lastSeq uint64
	haveSeq bool
	lastErr error

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// errSessionClosed aborts a reconnect whose session was closed mid-dial.
var errSessionClosed = stderrors.New("session closed")

// SourceGroup identifies the physical source serving this session; empty when
// the bridge did not advertise an endpoint.
func (s *Session) SourceGroup() string {
	return s.sourceGroup
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state.Current()
}

// Err returns the error that moved the session into ERROR, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SyncQuality returns the synchronization quality observed on the most
// recent packet.
func (s *Session) SyncQuality() types.SyncQuality {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync
}

// Read retrieves one buffered packet. Returns false when the buffer is empty.
func (s *Session) Read() (*types.SensorPacket, bool) {
	pkt, ok := s.buf.Read()
	if ok {
		s.maybeResume()
	}
	return pkt, ok
}

// ReadBatch retrieves up to max buffered packets.
func (s *Session) ReadBatch(max int) []*types.SensorPacket {
	pkts := s.buf.ReadBatch(max)
	if len(pkts) > 0 {
		s.maybeResume()
	}
	return pkts
}

// Buffered returns the number of packets waiting for the consumer.
func (s *Session) Buffered() int {
	return s.buf.Size()
}

// Close transitions to CLOSED and releases the connection and buffer. Safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// Closing is legal from every state.
		_ = s.state.transition(StateClosed)
		s.cancel()
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
		<-s.done
		s.buf.Close()
	})
	return err
}

// run is the session's receive loop. It pulls packets off the transport,
// enforces sequence ordering, detects gaps, and applies backpressure when the
// consumer falls behind.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	for {
		pkt, err := s.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !s.recover(ctx, err) {
				return
			}
			continue
		}
		if err := s.ingest(ctx, pkt); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !s.recover(ctx, err) {
				return
			}
		}
	}
}

func (s *Session) ingest(ctx context.Context, pkt *types.SensorPacket) error {
	if err := pkt.Validate(); err != nil {
		s.logger.Warn("invalid packet discarded", "session", s.ID, "error", err)
		return nil
	}

	s.mu.Lock()
	if s.haveSeq {
		if pkt.Sequence <= s.lastSeq {
			// Duplicate or reordered delivery; ordering guarantee says drop.
			s.mu.Unlock()
			return nil
		}
		if gap := pkt.Sequence - s.lastSeq - 1; gap > s.gapTolerance {
			s.mu.Unlock()
			return errors.WithContext(
				errors.WrapTransient(errors.ErrOverrun, "Session", "ingest",
					"sequence gap beyond tolerance"),
				errors.Context{StreamID: s.StreamID})
		}
	}
	s.lastSeq = pkt.Sequence
	s.haveSeq = true
	s.sync = types.SyncQuality{Source: pkt.TimeSource, Confidence: pkt.SyncConfidence}
	s.mu.Unlock()

	if s.core != nil {
		s.core.PacketsReceived.WithLabelValues(s.ID, string(s.Domain)).Inc()
	}

	s.maybePause(ctx)
	if err := s.buf.WriteContext(ctx, pkt); err != nil {
		return errors.WrapTransient(err, "Session", "ingest", "buffer write")
	}
	return nil
}

// maybePause moves OPEN -> PAUSED and tells the bridge to throttle once the
// buffer passes the high-water mark. Backpressure is an explicit control
// message, never silent loss.
func (s *Session) maybePause(ctx context.Context) {
	occupancy := float64(s.buf.Size()) / float64(s.buf.Capacity())
	if occupancy < s.highWater {
		return
	}
	if !s.state.compareAndTransition(StateOpen, StatePaused) {
		return
	}
	s.logger.Info("session paused, consumer behind",
		"session", s.ID, "buffered", s.buf.Size())
	if err := s.currentConn().SendControl(ctx, transport.ControlMessage{
		StreamID: s.StreamID,
		Control:  transport.ControlPause,
		Reason:   "consumer behind",
	}); err != nil {
		s.logger.Warn("pause control failed", "session", s.ID, "error", err)
	}
}

// maybeResume moves PAUSED -> OPEN once the consumer drains below the
// low-water mark.
func (s *Session) maybeResume() {
	if s.state.Current() != StatePaused {
		return
	}
	occupancy := float64(s.buf.Size()) / float64(s.buf.Capacity())
	if occupancy > s.lowWater {
		return
	}
	if !s.state.compareAndTransition(StatePaused, StateOpen) {
		return
	}
	if err := s.currentConn().SendControl(context.Background(), transport.ControlMessage{
		StreamID: s.StreamID,
		Control:  transport.ControlResume,
	}); err != nil {
		s.logger.Warn("resume control failed", "session", s.ID, "error", err)
	}
}

// recover transitions to ERROR and attempts reconnection with exponential
// backoff. Returns false when reconnection is exhausted; the session then
// surfaces ErrSyncLost and stays in ERROR.
func (s *Session) recover(ctx context.Context, cause error) bool {
	s.setErr(cause)
	if err := s.state.transition(StateError); err != nil {
		return false
	}
	s.logger.Warn("session error, reconnecting", "session", s.ID, "cause", cause)

	if err := s.state.transition(StateNegotiating); err != nil {
		return false
	}

	dialErr := retry.Do(ctx, s.reconnect, func() error {
		conn, err := s.opener(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return retry.NonRetryable(errSessionClosed)
		}
		old := s.conn
		s.conn = conn
		s.mu.Unlock()
		if old != nil {
			_ = old.Close()
		}
		return nil
	})
	if dialErr != nil {
		if stderrors.Is(dialErr, errSessionClosed) {
			return false
		}
		lost := errors.WithContext(
			errors.WrapTransient(errors.ErrSyncLost, "Session", "recover",
				"reconnect exhausted"),
			errors.Context{StreamID: s.StreamID})
		s.setErr(lost)
		_ = s.state.transition(StateError)
		s.logger.Error("session sync lost", "session", s.ID, "error", dialErr)
		return false
	}

	// Fresh connection, fresh sequence baseline.
	s.mu.Lock()
	s.haveSeq = false
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.state.transition(StateOpen); err != nil {
		return false
	}
	s.logger.Info("session recovered", "session", s.ID)
	return true
}

// currentConn is for callers off the receive goroutine; the resume path runs
// on the consumer's goroutine.
func (s *Session) currentConn() transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
