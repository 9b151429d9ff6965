package channel

import (
	"bytes"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Frame", func() {
	It("should put the command in the high word", func() {
		buf := AppendFrame(nil, Frame{Cmd: CmdEvio, Stream: 2, Payload: []byte{9, 9}})

		Expect(buf).To(Equal([]byte{0, 0, 2, 1, 0, 0, 0, 2, 9, 9}))
	})

	It("should read back what is written", func() {
		stream := new(bytes.Buffer)
		Expect(WriteFrame(stream, Frame{Cmd: CmdEvio, Payload: []byte("abcd")})).To(Succeed())
		Expect(WriteFrame(stream, Frame{Cmd: CmdEnd, Stream: 1})).To(Succeed())

		f, err := ReadFrame(stream, DefaultMaxPayload)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Cmd).To(Equal(CmdEvio))
		Expect(f.Payload).To(Equal([]byte("abcd")))

		f, err = ReadFrame(stream, DefaultMaxPayload)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Cmd).To(Equal(CmdEnd))
		Expect(f.Stream).To(Equal(uint8(1)))
		Expect(f.Payload).To(BeEmpty())

		_, err = ReadFrame(stream, DefaultMaxPayload)
		Expect(err).To(Equal(io.EOF))
	})

	It("should report truncated frames", func() {
		buf := AppendFrame(nil, Frame{Cmd: CmdEvio, Payload: []byte("abcd")})

		_, err := ReadFrame(bytes.NewReader(buf[:5]), DefaultMaxPayload)
		Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())

		_, err = ReadFrame(bytes.NewReader(buf[:10]), DefaultMaxPayload)
		Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())

		var frameErr *FrameError
		Expect(errors.As(err, &frameErr)).To(BeTrue())
		Expect(frameErr.Reason).To(Equal("truncated payload"))
	})

	It("should refuse oversized payloads", func() {
		buf := AppendFrame(nil, Frame{Cmd: CmdEvio, Payload: make([]byte, 100)})

		_, err := ReadFrame(bytes.NewReader(buf), 64)

		Expect(err).To(MatchError(ContainSubstring("exceeds 64")))
	})

	It("should decode datagrams", func() {
		buf := AppendFrame(nil, Frame{Cmd: CmdEvio, Payload: []byte("xy")})

		f, err := DecodeFrame(buf, DefaultMaxPayload)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Payload).To(Equal([]byte("xy")))

		_, err = DecodeFrame(append(buf, 0), DefaultMaxPayload)
		Expect(err).To(MatchError(ContainSubstring("1 bytes after the payload")))

		_, err = DecodeFrame(buf[:3], DefaultMaxPayload)
		Expect(err).To(HaveOccurred())
	})
})
