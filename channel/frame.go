package channel

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameHeaderBytes is the size of the header in front of every payload.
const FrameHeaderBytes = 8

// DefaultMaxPayload bounds the payload a reader accepts.
const DefaultMaxPayload = 64 << 20

// A Frame is one unit of a stream. The header is one big endian 64 bit word:
// the high 32 bits carry the command in the lowest byte and the stream index
// in the next byte, the low 32 bits carry the payload size.
type Frame struct {
	Cmd     uint8
	Stream  uint8
	Payload []byte
}

// ReadFrame reads one frame. It returns io.EOF only when the stream ends
// cleanly before a header.
func ReadFrame(r io.Reader, maxPayload int) (Frame, error) {
	var header [FrameHeaderBytes]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}

		return Frame{}, &FrameError{Reason: "truncated header", Err: err}
	}

	return decodeFrame(header[:], r, maxPayload)
}

// DecodeFrame decodes a frame held in one datagram.
func DecodeFrame(buf []byte, maxPayload int) (Frame, error) {
	if len(buf) < FrameHeaderBytes {
		return Frame{}, &FrameError{Reason: "truncated header", Err: io.ErrUnexpectedEOF}
	}

	f, err := decodeFrame(buf[:FrameHeaderBytes],
		&exactReader{buf: buf[FrameHeaderBytes:]}, maxPayload)
	if err != nil {
		return Frame{}, err
	}

	if extra := len(buf) - FrameHeaderBytes - len(f.Payload); extra != 0 {
		return Frame{}, &FrameError{
			Reason: fmt.Sprintf("%d bytes after the payload", extra),
		}
	}

	return f, nil
}

func decodeFrame(header []byte, r io.Reader, maxPayload int) (Frame, error) {
	word := binary.BigEndian.Uint64(header)
	hi := uint32(word >> 32)
	size := uint32(word)

	if maxPayload > 0 && int64(size) > int64(maxPayload) {
		return Frame{}, &FrameError{
			Reason: fmt.Sprintf("payload of %d bytes exceeds %d", size, maxPayload),
		}
	}

	f := Frame{
		Cmd:     uint8(hi),
		Stream:  uint8(hi >> 8),
		Payload: make([]byte, size),
	}

	if _, err := io.ReadFull(r, f.Payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}

		return Frame{}, &FrameError{Reason: "truncated payload", Err: err}
	}

	return f, nil
}

// AppendFrame appends the encoded frame to buf.
func AppendFrame(buf []byte, f Frame) []byte {
	hi := uint64(f.Stream)<<8 | uint64(f.Cmd)
	buf = binary.BigEndian.AppendUint64(buf, hi<<32|uint64(uint32(len(f.Payload))))

	return append(buf, f.Payload...)
}

// WriteFrame writes one frame.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(AppendFrame(make([]byte, 0, FrameHeaderBytes+len(f.Payload)), f))
	return err
}

type exactReader struct {
	buf []byte
}

func (r *exactReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]

	return n, nil
}
