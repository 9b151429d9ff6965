package admission

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the three word greeting that opens every handshake.
var Magic = [3]uint32{0x634d7367, 0x20697320, 0x636f6f6c}

const (
	// ProtocolVersion is the only protocol version accepted.
	ProtocolVersion = 6

	// HandshakeBytes is the size of a handshake on the wire.
	HandshakeBytes = 32

	// MinBufferSize is the smallest buffer size a source may announce.
	MinBufferSize = 40
)

// A Handshake is what a source announces when it connects. On the wire it
// is eight big endian 32 bit words: the magic numbers, the protocol version,
// then the fields below in order.
type Handshake struct {
	CodaID         int32
	BufferSize     int32
	SocketCount    int32
	SocketPosition int32
}

// Encode returns the wire form of the handshake.
func (h Handshake) Encode() []byte {
	buf := make([]byte, 0, HandshakeBytes)
	for _, m := range Magic {
		buf = binary.BigEndian.AppendUint32(buf, m)
	}

	buf = binary.BigEndian.AppendUint32(buf, ProtocolVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.CodaID))
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.BufferSize))
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.SocketCount))
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.SocketPosition))

	return buf
}

// ReadHandshake reads and checks one handshake.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, &HandshakeError{Reason: "incomplete handshake", Err: err}
	}

	return DecodeHandshake(buf)
}

// DecodeHandshake checks and decodes a handshake. The returned error is a
// *HandshakeError without the remote address.
func DecodeHandshake(buf []byte) (Handshake, error) {
	if len(buf) != HandshakeBytes {
		return Handshake{}, &HandshakeError{
			Reason: fmt.Sprintf("handshake of %d bytes", len(buf)),
		}
	}

	word := func(i int) uint32 {
		return binary.BigEndian.Uint32(buf[i*4:])
	}

	for i, m := range Magic {
		if word(i) != m {
			return Handshake{}, &HandshakeError{Reason: "bad magic numbers"}
		}
	}

	if v := word(3); v != ProtocolVersion {
		return Handshake{}, &HandshakeError{
			Reason: fmt.Sprintf("version %d, need %d", v, ProtocolVersion),
		}
	}

	h := Handshake{
		CodaID:         int32(word(4)),
		BufferSize:     int32(word(5)),
		SocketCount:    int32(word(6)),
		SocketPosition: int32(word(7)),
	}

	switch {
	case h.CodaID < 0:
		return Handshake{}, &HandshakeError{
			Reason: fmt.Sprintf("bad CODA id %d", h.CodaID),
		}
	case h.BufferSize < MinBufferSize:
		return Handshake{}, &HandshakeError{
			Reason: fmt.Sprintf("buffer size %d below %d", h.BufferSize, MinBufferSize),
		}
	case h.SocketCount < 1:
		return Handshake{}, &HandshakeError{
			Reason: fmt.Sprintf("bad socket count %d", h.SocketCount),
		}
	case h.SocketPosition < 1 || h.SocketPosition > h.SocketCount:
		return Handshake{}, &HandshakeError{
			Reason: fmt.Sprintf("socket position %d outside 1..%d",
				h.SocketPosition, h.SocketCount),
		}
	}

	return h, nil
}
