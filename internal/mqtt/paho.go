package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// PahoDialer connects through the Eclipse Paho 3.1.1 client. Paho's own
// reconnect logic is disabled; the Manager decides when to redial.
type PahoDialer struct {
	Broker   string
	ClientID string
}

// Dial connects with MQTT 3.1.1 only. Paho's PINGREQ loop runs every
// KeepAliveIdle, so a dead link is noticed on the Manager's schedule.
func (d *PahoDialer) Dial(ctx context.Context, bufs *Buffers) (Conn, error) {
	opts := paho.NewClientOptions().
		AddBroker(d.Broker).
		SetClientID(d.ClientID).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(KeepAliveIdle).
		SetPingTimeout(OpTimeout).
		SetConnectTimeout(timeoutFrom(ctx, ConnectTimeout))

	client := paho.NewClient(opts)
	tok := client.Connect()
	if err := wait(ctx, tok); err != nil {
		if refused(ctx, tok) {
			return nil, fmt.Errorf("%w: connection refused by %s: %v", ErrProtocol, d.Broker, err)
		}
		return nil, fmt.Errorf("%w: connect to %s: %v", ErrConnectionFailed, d.Broker, err)
	}
	return &pahoConn{client: client, bufs: bufs}, nil
}

// refused reports whether a failed connect got as far as a CONNACK.
func refused(ctx context.Context, tok paho.Token) bool {
	ct, ok := tok.(*paho.ConnectToken)
	if !ok || ctx.Err() != nil {
		return false
	}
	switch ct.ReturnCode() {
	case packets.Accepted, packets.ErrNetworkError:
		return false
	}
	return true
}

type pahoConn struct {
	client paho.Client
	bufs   *Buffers
}

func (c *pahoConn) Publish(ctx context.Context, topic string, payload []byte) error {
	// QoS 1 (at-least-once), not retained
	if err := wait(ctx, c.client.Publish(topic, 1, false, payload)); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrConnectionFailed, topic, err)
	}
	return nil
}

// Ping only checks link state; it sends nothing. Paho sends its own
// PINGREQ after KeepAliveIdle and drops the connection when no PINGRESP
// arrives within OpTimeout, which is what this observes.
func (c *pahoConn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("%w: connection lost", ErrConnectionFailed)
	}
	return nil
}

func (c *pahoConn) Close() *Buffers {
	if c.bufs == nil {
		return nil
	}
	c.client.Disconnect(250)
	b := c.bufs
	c.bufs = nil
	return b
}

// wait blocks until tok completes or ctx is done.
func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func timeoutFrom(ctx context.Context, def time.Duration) time.Duration {
	if d, ok := ctx.Deadline(); ok {
		if left := time.Until(d); left > 0 && left < def {
			return left
		}
	}
	return def
}
