package aggregator

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/monitoring"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func bufferOutput(buf *bytes.Buffer) Output {
	return func() (io.WriteCloser, error) {
		return nopCloser{buf}, nil
	}
}

func feed(c channel.Channel, payloads ...string) {
	ctx := context.Background()

	for _, p := range payloads {
		Expect(c.Deliver(ctx, &channel.Record{
			Cmd:     channel.CmdEvio,
			Payload: []byte(p),
		})).To(Succeed())
	}
}

var _ = Describe("DrainMerger", func() {
	var (
		ctx context.Context
		out *bytes.Buffer
		m   *DrainMerger
	)

	build := func(id, index int) channel.Channel {
		return channel.MakeBuilder().
			WithID(id).
			WithStreamIndex(index).
			WithInputCapacity(8).
			Build("Aggregator.Input")
	}

	BeforeEach(func() {
		ctx = context.Background()
		out = new(bytes.Buffer)
		m = NewDrainMerger(bufferOutput(out))
	})

	It("should interleave channels in identity order", func() {
		late := build(5, 0)
		early := build(2, 1)

		feed(late, "5a", "5b", "5c")
		feed(early, "2a", "2b")
		Expect(late.Deliver(ctx, &channel.Record{Cmd: channel.CmdEnd})).To(Succeed())
		Expect(early.Deliver(ctx, &channel.Record{Cmd: channel.CmdEnd})).To(Succeed())

		Expect(m.Merge(ctx, []channel.Channel{late, early})).To(Succeed())
		Expect(out.String()).To(Equal("2a5a2b5b5c"))
		Expect(m.Records()).To(Equal(uint64(5)))
		Expect(m.Bytes()).To(Equal(uint64(10)))
	})

	It("should order streams of one source by stream index", func() {
		second := build(3, 1)
		first := build(3, 0)

		feed(second, "b")
		feed(first, "a")
		second.Close()
		first.Close()

		Expect(m.Merge(ctx, []channel.Channel{second, first})).To(Succeed())
		Expect(out.String()).To(Equal("ab"))
	})

	It("should keep draining when one channel fails", func() {
		broken := build(1, 0)
		healthy := build(2, 1)

		feed(healthy, "x", "y")
		healthy.Close()
		broken.CloseWithError(errors.New("connection reset"))

		err := m.Merge(ctx, []channel.Channel{broken, healthy})
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
		Expect(out.String()).To(Equal("xy"))
	})

	It("should stop when the context is canceled", func() {
		idle := build(1, 0)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := m.Merge(cctx, []channel.Channel{idle})
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})

	It("should report finished channels on the progress bar", func() {
		bar := &monitoring.ProgressBar{Total: 2}
		m.WithProgressBar(bar)

		a := build(1, 0)
		b := build(2, 1)
		a.Close()
		b.Close()

		Expect(m.Merge(ctx, []channel.Channel{a, b})).To(Succeed())
		Expect(bar.Finished).To(Equal(uint64(2)))
		Expect(bar.Done()).To(BeTrue())
	})

	It("should fail when the output cannot be opened", func() {
		m = NewDrainMerger(func() (io.WriteCloser, error) {
			return nil, errors.New("read-only file system")
		})

		Expect(m.Merge(ctx, nil)).To(MatchError("read-only file system"))
	})
})
