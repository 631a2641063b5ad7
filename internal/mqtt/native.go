package mqtt

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/256dpi/gomqtt/packet"
)

// NativeDialer speaks MQTT 3.1.1 directly over TCP, encoding every packet
// into the session's own Buffers.
type NativeDialer struct {
	Address  string
	ClientID string
	// KeepAlive is advertised in CONNECT, in seconds. Zero means 30.
	KeepAlive uint16
}

// Dial opens a TCP connection and completes CONNECT/CONNACK.
func (d *NativeDialer) Dial(ctx context.Context, bufs *Buffers) (Conn, error) {
	var nd net.Dialer
	sock, err := nd.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	c := &nativeConn{sock: sock, bufs: bufs}

	connect := packet.NewConnect()
	connect.ClientID = d.ClientID
	connect.KeepAlive = d.KeepAlive
	if connect.KeepAlive == 0 {
		connect.KeepAlive = brokerKeepAlive
	}
	connect.CleanSession = true

	if err := c.handshake(ctx, connect); err != nil {
		sock.Close()
		return nil, err
	}
	return c, nil
}

type nativeConn struct {
	sock   net.Conn
	bufs   *Buffers
	filled int // bytes of bufs.Read holding unparsed input
	lastID packet.ID
}

func (c *nativeConn) handshake(ctx context.Context, connect *packet.Connect) error {
	if err := c.send(ctx, connect); err != nil {
		return err
	}
	pkt, err := c.receive(ctx)
	if err != nil {
		return err
	}
	connack, ok := pkt.(*packet.Connack)
	if !ok {
		return fmt.Errorf("%w: expected CONNACK, got %s", ErrProtocol, pkt.Type())
	}
	if connack.ReturnCode != packet.ConnectionAccepted {
		return fmt.Errorf("%w: connection refused: %v", ErrProtocol, connack.ReturnCode)
	}
	return nil
}

func (c *nativeConn) Publish(ctx context.Context, topic string, payload []byte) error {
	c.lastID++
	if c.lastID == 0 {
		c.lastID = 1
	}

	publish := packet.NewPublish()
	publish.ID = c.lastID
	publish.Message = packet.Message{
		Topic:   topic,
		Payload: payload,
		QOS:     packet.QOSAtLeastOnce,
	}
	if err := c.send(ctx, publish); err != nil {
		return err
	}

	for {
		pkt, err := c.receive(ctx)
		if err != nil {
			return err
		}
		if puback, ok := pkt.(*packet.Puback); ok && puback.ID == publish.ID {
			return nil
		}
	}
}

func (c *nativeConn) Ping(ctx context.Context) error {
	if err := c.send(ctx, packet.NewPingreq()); err != nil {
		return err
	}
	for {
		pkt, err := c.receive(ctx)
		if err != nil {
			return err
		}
		if _, ok := pkt.(*packet.Pingresp); ok {
			return nil
		}
	}
}

func (c *nativeConn) Close() *Buffers {
	if c.bufs == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = c.send(ctx, packet.NewDisconnect())
	cancel()
	c.sock.Close()

	b := c.bufs
	c.bufs = nil
	return b
}

// watch aborts blocked socket I/O once ctx is done.
func (c *nativeConn) watch(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		c.sock.SetDeadline(time.Unix(1, 0))
	})
}

func (c *nativeConn) send(ctx context.Context, pkt packet.Generic) error {
	n := pkt.Len()
	if n > len(c.bufs.Write) {
		return fmt.Errorf("%w: %s of %d bytes exceeds buffer", ErrProtocol, pkt.Type(), n)
	}
	if _, err := pkt.Encode(c.bufs.Write[:n]); err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrProtocol, pkt.Type(), err)
	}

	defer c.watch(ctx)()
	if err := c.sock.SetWriteDeadline(opDeadline(ctx, OpTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if _, err := c.sock.Write(c.bufs.Write[:n]); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrConnectionFailed, pkt.Type(), err)
	}
	return nil
}

// receive returns the next complete packet, reading more input as needed.
// Bytes following the packet stay in the buffer for the next call.
func (c *nativeConn) receive(ctx context.Context) (packet.Generic, error) {
	defer c.watch(ctx)()
	if err := c.sock.SetReadDeadline(opDeadline(ctx, OpTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	for {
		if c.filled > 0 {
			n, typ := packet.DetectPacket(c.bufs.Read[:c.filled])
			if n > len(c.bufs.Read) {
				return nil, fmt.Errorf("%w: incoming %s of %d bytes exceeds buffer", ErrProtocol, typ, n)
			}
			if n > 0 && n <= c.filled {
				return c.decode(typ, n)
			}
		}
		if c.filled == len(c.bufs.Read) {
			return nil, fmt.Errorf("%w: read buffer full", ErrProtocol)
		}

		m, err := c.sock.Read(c.bufs.Read[c.filled:])
		c.filled += m
		if err != nil {
			return nil, fmt.Errorf("%w: read: %v", ErrConnectionFailed, err)
		}
	}
}

func (c *nativeConn) decode(typ packet.Type, n int) (packet.Generic, error) {
	pkt, err := typ.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if _, err := pkt.Decode(c.bufs.Read[:n]); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrProtocol, typ, err)
	}
	c.filled = copy(c.bufs.Read, c.bufs.Read[n:c.filled])
	return pkt, nil
}
