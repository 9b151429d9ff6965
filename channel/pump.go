package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
)

// A Dispatcher routes frames to the channels sharing one source. With a
// single target every frame goes to that channel. With several targets the
// stream index of the frame selects the channel.
type Dispatcher struct {
	targets   []Channel
	ended     []bool
	remaining int
	logger    *log.Logger
}

// NewDispatcher creates a dispatcher over the targets.
func NewDispatcher(targets ...Channel) *Dispatcher {
	if len(targets) == 0 {
		log.Panic("dispatcher needs at least one target channel")
	}

	return &Dispatcher{
		targets:   targets,
		ended:     make([]bool, len(targets)),
		remaining: len(targets),
	}
}

// WithLogger sets where the dispatcher reports stream ends.
func (d *Dispatcher) WithLogger(l *log.Logger) *Dispatcher {
	d.logger = l
	return d
}

// Targets returns the channels the dispatcher feeds.
func (d *Dispatcher) Targets() []Channel {
	return d.targets
}

// Dispatch delivers the frame to its channel.
func (d *Dispatcher) Dispatch(ctx context.Context, f Frame) error {
	i, err := d.route(f)
	if err != nil {
		return err
	}

	if d.ended[i] {
		return &FrameError{
			Reason: fmt.Sprintf("frame for stream %d after its END", f.Stream),
		}
	}

	err = d.targets[i].Deliver(ctx, &Record{
		Cmd:     f.Cmd,
		Stream:  f.Stream,
		Payload: f.Payload,
	})
	if err != nil {
		return err
	}

	if f.Cmd == CmdEnd {
		d.ended[i] = true
		d.remaining--

		if d.logger != nil {
			d.logger.Printf("%s got END", d.targets[i].Name())
		}
	}

	return nil
}

// Done tells if every target has received its END frame.
func (d *Dispatcher) Done() bool {
	return d.remaining == 0
}

// Finish closes all the targets, with the error if it is not nil. Other
// channels are never touched.
func (d *Dispatcher) Finish(err error) {
	for _, c := range d.targets {
		if err != nil {
			c.CloseWithError(err)
		} else {
			c.Close()
		}
	}
}

func (d *Dispatcher) route(f Frame) (int, error) {
	if len(d.targets) == 1 {
		return 0, nil
	}

	if int(f.Stream) >= len(d.targets) {
		return 0, &FrameError{
			Reason: fmt.Sprintf("stream %d on a connection carrying %d",
				f.Stream, len(d.targets)),
		}
	}

	return int(f.Stream), nil
}

// A Pump moves frames from one connection into the channels sharing it.
type Pump struct {
	r          io.Reader
	dispatcher *Dispatcher
	maxPayload int
}

// NewPump creates a pump reading from r.
func NewPump(r io.Reader, targets ...Channel) *Pump {
	return &Pump{
		r:          r,
		dispatcher: NewDispatcher(targets...),
		maxPayload: DefaultMaxPayload,
	}
}

// WithMaxPayload sets the largest payload accepted.
func (p *Pump) WithMaxPayload(n int) *Pump {
	p.maxPayload = n
	return p
}

// WithLogger sets where the pump reports stream ends.
func (p *Pump) WithLogger(l *log.Logger) *Pump {
	p.dispatcher.WithLogger(l)
	return p
}

// Run pumps frames until every target has received its END frame, the
// stream fails, or the context is done. When Run returns, all its targets
// are closed; on failure they are closed with the error.
func (p *Pump) Run(ctx context.Context) error {
	err := p.run(ctx)
	p.dispatcher.Finish(err)

	return err
}

func (p *Pump) run(ctx context.Context) error {
	for !p.dispatcher.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := ReadFrame(p.r, p.maxPayload)
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("stream closed before END: %w", io.ErrUnexpectedEOF)
		}

		if err != nil {
			return err
		}

		if err := p.dispatcher.Dispatch(ctx, f); err != nil {
			return err
		}
	}

	return nil
}
