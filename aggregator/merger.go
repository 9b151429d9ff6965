package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync/atomic"

	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/monitoring"
)

// A Merger consumes the channels once every expected source is connected.
type Merger interface {
	Merge(ctx context.Context, channels []channel.Channel) error
}

// An Output opens the destination of a merge.
type Output func() (io.WriteCloser, error)

// FileOutput creates or truncates the file at path.
func FileOutput(path string) Output {
	return func() (io.WriteCloser, error) {
		return os.Create(path)
	}
}

// DrainMerger writes the evio payloads of all channels into one output. It
// takes one record from each channel in turn, channels ordered by source id
// and then stream index. A channel leaves the rotation at its END.
type DrainMerger struct {
	open     Output
	logger   *log.Logger
	progress *monitoring.ProgressBar

	records atomic.Uint64
	bytes   atomic.Uint64
}

// NewDrainMerger creates a merger writing into the output.
func NewDrainMerger(open Output) *DrainMerger {
	return &DrainMerger{
		open:   open,
		logger: log.New(io.Discard, "", 0),
	}
}

// WithLogger sets where channel failures are reported.
func (m *DrainMerger) WithLogger(l *log.Logger) *DrainMerger {
	m.logger = l
	return m
}

// WithProgressBar makes the merger count finished channels on the bar.
func (m *DrainMerger) WithProgressBar(bar *monitoring.ProgressBar) *DrainMerger {
	m.progress = bar
	return m
}

// Records returns the number of records written.
func (m *DrainMerger) Records() uint64 {
	return m.records.Load()
}

// Bytes returns the number of payload bytes written.
func (m *DrainMerger) Bytes() uint64 {
	return m.bytes.Load()
}

// Merge drains the channels until each has ended or failed. A failed channel
// does not stop the others; its error is returned once all are drained.
func (m *DrainMerger) Merge(ctx context.Context, channels []channel.Channel) error {
	out, err := m.open()
	if err != nil {
		return err
	}

	active := append([]channel.Channel(nil), channels...)
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].ID() != active[j].ID() {
			return active[i].ID() < active[j].ID()
		}

		return active[i].StreamIndex() < active[j].StreamIndex()
	})

	if m.progress != nil {
		m.progress.IncrementInProgress(uint64(len(active)))
	}

	var errs []error

	for len(active) > 0 {
		next := active[:0]

		for _, c := range active {
			done, err := m.step(ctx, out, c)
			if ctx.Err() != nil {
				return errors.Join(ctx.Err(), out.Close())
			}

			if err != nil {
				m.logger.Printf("dropping %s: %v", c.Name(), err)
				errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			}

			if done || err != nil {
				if m.progress != nil {
					m.progress.MoveInProgressToFinished(1)
				}

				continue
			}

			next = append(next, c)
		}

		active = next
	}

	errs = append(errs, out.Close())

	return errors.Join(errs...)
}

// step moves one record of the channel to the output and tells whether the
// channel is finished.
func (m *DrainMerger) step(
	ctx context.Context,
	out io.Writer,
	c channel.Channel,
) (bool, error) {
	r, err := c.Receive(ctx)
	if errors.Is(err, channel.ErrClosed) {
		return true, nil
	}

	if err != nil {
		return true, err
	}

	if r.IsEnd() {
		return true, nil
	}

	if _, err := out.Write(r.Payload); err != nil {
		return true, err
	}

	m.records.Add(1)
	m.bytes.Add(uint64(len(r.Payload)))

	return false, nil
}
