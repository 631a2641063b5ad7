package mqtt

// PacketBufferSize bounds a single encoded packet. The node only sends
// short topics with at most three payload bytes.
const PacketBufferSize = 128

// Buffers are the session's reusable packet scratch space. Exactly one
// owner holds them at a time: the Manager while disconnected, the Conn
// while connected. Conn.Close hands them back.
type Buffers struct {
	Read  []byte
	Write []byte
}

// NewBuffers allocates a fresh set of buffers.
func NewBuffers() *Buffers {
	return &Buffers{
		Read:  make([]byte, PacketBufferSize),
		Write: make([]byte, PacketBufferSize),
	}
}

// Zero clears all buffer contents.
func (b *Buffers) Zero() {
	clear(b.Read)
	clear(b.Write)
}

// IsZero reports whether every byte is zero.
func (b *Buffers) IsZero() bool {
	for _, buf := range [][]byte{b.Read, b.Write} {
		for _, c := range buf {
			if c != 0 {
				return false
			}
		}
	}
	return true
}
