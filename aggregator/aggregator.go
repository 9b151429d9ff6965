// Package aggregator wires a live run together: sources are admitted, the
// run waits until every expected source is connected, and the channels are
// then handed to the merge stage.
package aggregator

import (
	"context"
	"log"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/config"
	"github.com/JeffersonLab/SRO-RTDP-sub001/datarecording"
	"github.com/JeffersonLab/SRO-RTDP-sub001/monitoring"
	"github.com/JeffersonLab/SRO-RTDP-sub001/tracing"
	"golang.org/x/sync/errgroup"
)

// An Aggregator collects the streams of the expected sources.
type Aggregator struct {
	cfg      config.Config
	server   *admission.Server
	merger   Merger
	monitor  *monitoring.Monitor
	recorder datarecording.DataRecorder
	tracers  []tracing.Tracer
	logger   *log.Logger
	started  chan struct{}
}

// Config returns the options of the aggregator.
func (a *Aggregator) Config() config.Config {
	return a.cfg
}

// Server returns the admission server.
func (a *Aggregator) Server() *admission.Server {
	return a.server
}

// Merger returns the merge stage.
func (a *Aggregator) Merger() Merger {
	return a.merger
}

// Started is closed once the server is listening.
func (a *Aggregator) Started() <-chan struct{} {
	return a.started
}

// Run admits the sources, waits for all of them and merges their channels.
// It returns when the merge finishes, the admission deadline passes, or the
// context is canceled. The server is closed when Run returns.
func (a *Aggregator) Run(ctx context.Context) error {
	if a.monitor != nil {
		a.monitor.RegisterAdmission(a.server)
	}

	if a.recorder != nil {
		a.server.AcceptHook(datarecording.NewAdmissionRecorder(a.recorder))
	}

	if len(a.tracers) > 0 {
		a.server.AcceptHook(tracing.NewBufferTracer(a.tracers...))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.server.Start(runCtx); err != nil {
		return err
	}
	close(a.started)

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()

		channels, err := a.server.WaitForSources(gctx)
		if err != nil {
			return err
		}

		a.logger.Printf("released %d channels to the merge stage", len(channels))

		return a.merger.Merge(gctx, channels)
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.server.Close()
	})

	return g.Wait()
}
