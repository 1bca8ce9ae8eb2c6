package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/stream/wire"
	"github.com/c360/bridgekit/types"
)

const (
	mqttStreamTopicPrefix = "bridgekit/stream/"
	mqttControlSuffix     = "/ctrl"
	mqttQoS               = 1

	mqttConnectTimeout = 10 * time.Second
	mqttOpTimeout      = 5 * time.Second
)

// MQTTTransport streams packets over an MQTT broker: wire frames on
// bridgekit/stream/<stream-id>, JSON control messages on the /ctrl suffix.
// Suited to constrained bridges that already speak MQTT.
type MQTTTransport struct {
	clientID string
}

// NewMQTTTransport creates an MQTT transport. Each Open dials the broker
// named by the endpoint.
func NewMQTTTransport(clientID string) *MQTTTransport {
	return &MQTTTransport{clientID: clientID}
}

// Kind implements Transport.
func (t *MQTTTransport) Kind() types.Transport { return types.TransportMQTT }

// Open implements Transport. The endpoint is the broker URL
// (tcp://host:1883 or ssl://host:8883).
func (t *MQTTTransport) Open(ctx context.Context, endpoint, streamID string) (Conn, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(endpoint).
		SetClientID(t.clientID + "-" + streamID).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true)

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return nil, errors.WrapTransient(err, "MQTTTransport", "Open", "broker connect")
	}

	c := &mqttConn{
		client:   client,
		streamID: streamID,
		packets:  make(chan *types.SensorPacket, 256),
		errs:     make(chan error, 1),
		closed:   make(chan struct{}),
	}

	token := client.Subscribe(mqttStreamTopicPrefix+streamID, mqttQoS, c.onMessage)
	if err := waitToken(ctx, token); err != nil {
		client.Disconnect(0)
		return nil, errors.WrapTransient(err, "MQTTTransport", "Open", "subscribe")
	}
	return c, nil
}

type mqttConn struct {
	client   mqtt.Client
	streamID string
	packets  chan *types.SensorPacket
	errs     chan error
	closed   chan struct{}

	closeOnce sync.Once
}

func (c *mqttConn) onMessage(_ mqtt.Client, msg mqtt.Message) {
	pkt, err := wire.DecodePacket(msg.Payload())
	if err != nil {
		select {
		case c.errs <- err:
		default:
		}
		return
	}
	// Paho runs handlers on a bounded worker pool; a handler stuck on a full
	// channel after close would pin one of its slots forever.
	select {
	case c.packets <- pkt:
	case <-c.closed:
	}
}

func (c *mqttConn) Receive(ctx context.Context) (*types.SensorPacket, error) {
	select {
	case pkt := <-c.packets:
		return pkt, nil
	case err := <-c.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *mqttConn) SendControl(ctx context.Context, msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "mqttConn", "SendControl", "control encode")
	}
	token := c.client.Publish(mqttStreamTopicPrefix+c.streamID+mqttControlSuffix, mqttQoS, false, data)
	if err := waitToken(ctx, token); err != nil {
		return errors.WrapTransient(err, "mqttConn", "SendControl", "control publish")
	}
	return nil
}

func (c *mqttConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		token := c.client.Unsubscribe(mqttStreamTopicPrefix + c.streamID)
		token.WaitTimeout(mqttOpTimeout)
		c.client.Disconnect(uint(mqttOpTimeout / time.Millisecond))
	})
	return nil
}

// waitToken blocks on an MQTT token with context cancellation.
func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
