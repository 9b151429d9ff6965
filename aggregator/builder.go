package aggregator

import (
	"log"
	"os"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/config"
	"github.com/JeffersonLab/SRO-RTDP-sub001/datarecording"
	"github.com/JeffersonLab/SRO-RTDP-sub001/monitoring"
	"github.com/JeffersonLab/SRO-RTDP-sub001/tracing"
)

// Builder can build aggregators.
type Builder struct {
	cfg      config.Config
	host     string
	merger   Merger
	monitor  *monitoring.Monitor
	recorder datarecording.DataRecorder
	tracers  []tracing.Tracer
	logger   *log.Logger
}

// MakeBuilder creates a builder with the default options.
func MakeBuilder() Builder {
	return Builder{cfg: config.Default()}
}

// WithConfig sets the options. They are expected to be resolved already.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithHost sets the address to listen on. The default is all interfaces.
func (b Builder) WithHost(host string) Builder {
	b.host = host
	return b
}

// WithMerger sets the stage that consumes the channels. The default drains
// them into the output target.
func (b Builder) WithMerger(m Merger) Builder {
	b.merger = m
	return b
}

// WithMonitor sets the monitor following the run.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithRecorder sets the database the admissions are recorded in.
func (b Builder) WithRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithTracers adds tracers following records through the channel buffers.
func (b Builder) WithTracers(tracers ...tracing.Tracer) Builder {
	b.tracers = append(append([]tracing.Tracer(nil), b.tracers...), tracers...)
	return b
}

// WithLogger sets the logger of the aggregator.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// Build creates the aggregator.
func (b Builder) Build() *Aggregator {
	logger := b.logger
	if logger == nil {
		logger = log.New(os.Stderr, b.cfg.ComponentName+": ", log.LstdFlags)
	}

	server := admission.MakeBuilder().
		WithHost(b.host).
		WithPort(b.cfg.Port).
		WithExpectedSources(b.cfg.ExpectedSourceCount).
		WithTransport(b.cfg.TransportMode).
		WithMultiplexing(b.cfg.MultiplexedSingleUpstream).
		WithPolicy(b.cfg.SaturationPolicy).
		WithHandshakeTimeout(b.cfg.HandshakeTimeout).
		WithAdmissionTimeout(b.cfg.AdmissionTimeout).
		WithVerbose(b.cfg.Verbose).
		WithLogger(logger).
		Build(b.cfg.ComponentName)

	merger := b.merger
	if merger == nil {
		drain := NewDrainMerger(FileOutput(b.cfg.OutputTarget)).
			WithLogger(logger)

		if b.monitor != nil {
			drain.WithProgressBar(
				b.monitor.CreateProgressBar("Channels drained",
					uint64(b.cfg.ExpectedSourceCount)))
		}

		merger = drain
	}

	return &Aggregator{
		cfg:      b.cfg,
		server:   server,
		merger:   merger,
		monitor:  b.monitor,
		recorder: b.recorder,
		tracers:  b.tracers,
		logger:   logger,
		started:  make(chan struct{}),
	}
}
