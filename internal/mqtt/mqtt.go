// Package mqtt owns the node's single broker connection: it turns queued
// publish requests into QoS 1 publishes, keeps the link alive, reconnects
// after failures and reports each send attempt back to the orchestrator.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ClientID is the fixed identity presented to the broker.
const ClientID = "clientId-ESP32-IIOT"

// Default timings.
const (
	ConnectTimeout = 10 * time.Second
	OpTimeout      = 5 * time.Second
	KeepAliveIdle  = 5 * time.Second
	TickInterval   = 500 * time.Millisecond
	ReceiveWait    = 5 * time.Second
	DrainYield     = 10 * time.Millisecond

	// brokerKeepAlive is the keep-alive the native transport advertises in
	// CONNECT. The manager pings well inside it.
	brokerKeepAlive = 30
)

var (
	// ErrConnectionFailed marks transport-level failures.
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	// ErrProtocol marks handshake and acknowledgment failures.
	ErrProtocol = errors.New("mqtt: protocol error")
)

// Dialer opens broker connections.
type Dialer interface {
	// Dial connects and completes the MQTT handshake. On success the
	// returned Conn owns bufs until Close hands them back; on failure the
	// dialer must not retain bufs.
	Dial(ctx context.Context, bufs *Buffers) (Conn, error)
}

// Conn is one established broker session.
type Conn interface {
	// Publish sends payload at QoS 1 without retain and waits for the ack.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Ping confirms the link is alive. The native transport sends PINGREQ
	// and waits for the response; library-backed transports report the
	// state of the client's own keep-alive loop.
	Ping(ctx context.Context) error

	// Close tears the session down and returns the scratch buffers.
	Close() *Buffers
}

// FormatPayload renders v as decimal ASCII into dst, which needs room for
// three bytes.
func FormatPayload(dst []byte, v uint8) []byte {
	return strconv.AppendUint(dst[:0], uint64(v), 10)
}

// Backend names accepted by NewDialer.
const (
	BackendNative = "native"
	BackendPaho   = "paho"
	BackendV5     = "v5"
)

// NewDialer builds the dialer for backend against a broker URL such as
// "tcp://100.64.0.8:1883".
func NewDialer(backend, broker, clientID string) (Dialer, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return nil, fmt.Errorf("parse broker %q: %w", broker, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("broker %q has no host", broker)
	}
	addr := u.Host
	if u.Port() == "" {
		addr += ":1883"
	}

	switch backend {
	case BackendNative, "":
		return &NativeDialer{Address: addr, ClientID: clientID}, nil
	case BackendPaho:
		return &PahoDialer{Broker: broker, ClientID: clientID}, nil
	case BackendV5:
		return &V5Dialer{Address: addr, ClientID: clientID}, nil
	}
	return nil, fmt.Errorf("unknown mqtt backend %q", backend)
}

// opDeadline returns the earlier of ctx's deadline and now+timeout.
func opDeadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}
