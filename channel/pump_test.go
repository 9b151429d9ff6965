package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func framed(frames ...Frame) *bytes.Buffer {
	buf := new(bytes.Buffer)
	for _, f := range frames {
		Expect(WriteFrame(buf, f)).To(Succeed())
	}

	return buf
}

var _ = Describe("Pump", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should move frames until END", func() {
		c := MakeBuilder().WithInputCapacity(8).Build("In")
		stream := framed(
			Frame{Cmd: CmdEvio, Payload: evioBlock(1)},
			Frame{Cmd: CmdEvio, Payload: evioBlock(2)},
			Frame{Cmd: CmdEnd},
			Frame{Cmd: CmdEvio, Payload: evioBlock(3)},
		)

		Expect(NewPump(stream, c).Run(ctx)).To(Succeed())

		ids := []uint64{}
		for {
			r, err := c.Receive(ctx)
			if errors.Is(err, ErrClosed) {
				break
			}

			Expect(err).NotTo(HaveOccurred())
			ids = append(ids, r.RecordID)
		}

		Expect(ids).To(Equal([]uint64{1, 2, 3}))
		Expect(c.Err()).To(BeNil())
		Expect(stream.Len()).NotTo(BeZero())
	})

	It("should route multiplexed frames by stream index", func() {
		a := MakeBuilder().WithStreamIndex(0).Build("In[0]")
		b := MakeBuilder().WithStreamIndex(1).Build("In[1]")
		stream := framed(
			Frame{Cmd: CmdEvio, Stream: 1, Payload: []byte("b")},
			Frame{Cmd: CmdEvio, Stream: 0, Payload: []byte("a")},
			Frame{Cmd: CmdEnd, Stream: 0},
			Frame{Cmd: CmdEnd, Stream: 1},
		)

		Expect(NewPump(stream, a, b).Run(ctx)).To(Succeed())

		r, _ := a.Receive(ctx)
		Expect(r.Payload).To(Equal([]byte("a")))

		r, _ = b.Receive(ctx)
		Expect(r.Payload).To(Equal([]byte("b")))
	})

	It("should fail on an unknown stream", func() {
		a := MakeBuilder().Build("In[0]")
		b := MakeBuilder().Build("In[1]")
		stream := framed(Frame{Cmd: CmdEvio, Stream: 2})

		err := NewPump(stream, a, b).Run(ctx)

		var frameErr *FrameError
		Expect(errors.As(err, &frameErr)).To(BeTrue())
		Expect(a.Err()).To(Equal(err))
		Expect(b.Err()).To(Equal(err))
	})

	It("should fail when a stream sends after its END", func() {
		a := MakeBuilder().Build("In[0]")
		b := MakeBuilder().Build("In[1]")
		stream := framed(Frame{Cmd: CmdEnd, Stream: 0}, Frame{Cmd: CmdEvio, Stream: 0})

		err := NewPump(stream, a, b).Run(ctx)

		Expect(err).To(MatchError(ContainSubstring("after its END")))
	})

	It("should close only its own channels when the stream breaks", func() {
		own := MakeBuilder().Build("Own")
		sibling := MakeBuilder().Build("Sibling")
		stream := framed(Frame{Cmd: CmdEvio, Payload: []byte("x")})

		err := NewPump(stream, own).Run(ctx)

		Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
		Expect(own.Err()).To(Equal(err))
		Expect(sibling.Err()).To(BeNil())
		Expect(sibling.InputBuffer().Closed()).To(BeFalse())

		r, rerr := own.Receive(ctx)
		Expect(rerr).NotTo(HaveOccurred())
		Expect(r.Payload).To(Equal([]byte("x")))

		_, rerr = own.Receive(ctx)
		Expect(rerr).To(Equal(err))
	})

	It("should unblock when its channel is closed", func() {
		c := MakeBuilder().WithInputCapacity(1).Build("In")
		stream := framed(
			Frame{Cmd: CmdEvio, Payload: []byte("1")},
			Frame{Cmd: CmdEvio, Payload: []byte("2")},
		)

		done := make(chan error)
		go func() {
			done <- NewPump(stream, c).Run(ctx)
		}()

		Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

		c.Close()

		Eventually(done).Should(Receive(MatchError(ErrClosed)))
	})

	It("should stop when the context is done", func() {
		c := MakeBuilder().WithInputCapacity(1).Build("In")
		stream := framed(
			Frame{Cmd: CmdEvio, Payload: []byte("1")},
			Frame{Cmd: CmdEvio, Payload: []byte("2")},
		)

		cctx, cancel := context.WithCancel(ctx)
		done := make(chan error)
		go func() {
			done <- NewPump(stream, c).Run(cctx)
		}()

		Consistently(done, 20*time.Millisecond).ShouldNot(Receive())
		cancel()

		Eventually(done).Should(Receive(MatchError(context.Canceled)))
		Expect(c.Err()).To(MatchError(context.Canceled))
	})
})
