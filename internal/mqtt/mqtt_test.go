package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPayload(t *testing.T) {
	tests := []struct {
		v    uint8
		want string
	}{
		{0, "0"},
		{1, "1"},
		{7, "7"},
		{42, "42"},
		{255, "255"},
	}
	var buf [3]byte
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(FormatPayload(buf[:], tt.v)), "FormatPayload(%d)", tt.v)
	}
}

func TestFormatPayloadDoesNotAllocate(t *testing.T) {
	var buf [3]byte
	allocs := testing.AllocsPerRun(100, func() {
		FormatPayload(buf[:], 200)
	})
	assert.Zero(t, allocs)
}

func TestBuffersZero(t *testing.T) {
	b := NewBuffers()
	require.True(t, b.IsZero(), "new buffers should be zero")

	copy(b.Read, "leftover")
	b.Write[PacketBufferSize-1] = 0xff
	require.False(t, b.IsZero(), "dirty buffers reported zero")

	b.Zero()
	assert.True(t, b.IsZero(), "Zero left data behind")
	assert.Len(t, b.Read, PacketBufferSize)
	assert.Len(t, b.Write, PacketBufferSize)
}

func TestNewDialer(t *testing.T) {
	tests := []struct {
		backend string
		broker  string
		want    Dialer
	}{
		{"", "tcp://10.0.0.1:1883", &NativeDialer{Address: "10.0.0.1:1883", ClientID: ClientID}},
		{BackendNative, "tcp://broker.local", &NativeDialer{Address: "broker.local:1883", ClientID: ClientID}},
		{BackendPaho, "tcp://10.0.0.1:1883", &PahoDialer{Broker: "tcp://10.0.0.1:1883", ClientID: ClientID}},
		{BackendV5, "tcp://10.0.0.1:1884", &V5Dialer{Address: "10.0.0.1:1884", ClientID: ClientID}},
	}
	for _, tt := range tests {
		d, err := NewDialer(tt.backend, tt.broker, ClientID)
		if assert.NoError(t, err, "NewDialer(%q, %q)", tt.backend, tt.broker) {
			assert.Equal(t, tt.want, d)
		}
	}

	_, err := NewDialer("carrier-pigeon", "tcp://x:1", ClientID)
	assert.Error(t, err, "unknown backend")
	_, err = NewDialer(BackendNative, "not a url", ClientID)
	assert.Error(t, err, "broker without host")
}
