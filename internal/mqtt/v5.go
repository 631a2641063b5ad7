package mqtt

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

// v5KeepAlive is advertised in CONNECT; paho.golang pings on this schedule.
const v5KeepAlive = uint16(KeepAliveIdle / time.Second)

// V5Dialer connects using MQTT 5 through the paho.golang client.
type V5Dialer struct {
	Address  string
	ClientID string
}

func (d *V5Dialer) Dial(ctx context.Context, bufs *Buffers) (Conn, error) {
	var nd net.Dialer
	sock, err := nd.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: d.ClientID,
		Conn:     sock,
	})
	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   d.ClientID,
		KeepAlive:  v5KeepAlive,
		CleanStart: true,
	})
	if err != nil {
		sock.Close()
		if ack != nil {
			return nil, fmt.Errorf("%w: connection refused: reason %d", ErrProtocol, ack.ReasonCode)
		}
		return nil, fmt.Errorf("%w: connect: %v", ErrConnectionFailed, err)
	}
	return &v5Conn{client: client, sock: sock, bufs: bufs}, nil
}

type v5Conn struct {
	client *paho.Client
	sock   net.Conn
	bufs   *Buffers
}

func (c *v5Conn) Publish(ctx context.Context, topic string, payload []byte) error {
	resp, err := c.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrConnectionFailed, topic, err)
	}
	if resp != nil && resp.ReasonCode >= 0x80 {
		return fmt.Errorf("%w: publish %s rejected: reason %d", ErrProtocol, topic, resp.ReasonCode)
	}
	return nil
}

// Ping only checks link state; it sends nothing. The client pings every
// v5KeepAlive seconds itself and shuts down when the broker stops answering.
func (c *v5Conn) Ping(ctx context.Context) error {
	select {
	case <-c.client.Done():
		return fmt.Errorf("%w: connection lost", ErrConnectionFailed)
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (c *v5Conn) Close() *Buffers {
	if c.bufs == nil {
		return nil
	}
	_ = c.client.Disconnect(&paho.Disconnect{})
	c.sock.Close()
	b := c.bufs
	c.bufs = nil
	return b
}
