package admission

import (
	"log"
	"net"
	"os"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
)

// Builder can build admission servers.
type Builder struct {
	host             string
	port             int
	expected         int
	transport        Transport
	multiplexed      bool
	policy           Policy
	handshakeTimeout time.Duration
	admissionTimeout time.Duration
	noticeInterval   time.Duration
	channelBuilder   channel.Builder
	maxPayload       int
	datagramQueue    int
	verbose          bool
	logger           *log.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		port:             46100,
		expected:         1,
		handshakeTimeout: 3 * time.Second,
		admissionTimeout: 10 * time.Minute,
		noticeInterval:   10 * time.Second,
		channelBuilder:   channel.MakeBuilder(),
		maxPayload:       channel.DefaultMaxPayload,
		datagramQueue:    1024,
	}
}

// WithHost sets the address to listen on. Empty means all interfaces.
func (b Builder) WithHost(host string) Builder {
	b.host = host
	return b
}

// WithPort sets the port to listen on. Zero picks a free port.
func (b Builder) WithPort(port int) Builder {
	b.port = port
	return b
}

// WithExpectedSources sets how many sources release the barrier.
func (b Builder) WithExpectedSources(n int) Builder {
	b.expected = n
	return b
}

// WithTransport sets the transport.
func (b Builder) WithTransport(t Transport) Builder {
	b.transport = t
	return b
}

// WithMultiplexing makes every connection carry as many streams as its
// handshake announces sockets.
func (b Builder) WithMultiplexing(on bool) Builder {
	b.multiplexed = on
	return b
}

// WithPolicy sets what happens to connections arriving after saturation.
func (b Builder) WithPolicy(p Policy) Builder {
	b.policy = p
	return b
}

// WithHandshakeTimeout sets how long a new connection has to send its
// handshake. Zero waits forever.
func (b Builder) WithHandshakeTimeout(d time.Duration) Builder {
	b.handshakeTimeout = d
	return b
}

// WithAdmissionTimeout sets how long WaitForSources waits. Zero waits
// forever.
func (b Builder) WithAdmissionTimeout(d time.Duration) Builder {
	b.admissionTimeout = d
	return b
}

// WithNoticeInterval sets how often WaitForSources reports missing sources.
// Zero disables the notices.
func (b Builder) WithNoticeInterval(d time.Duration) Builder {
	b.noticeInterval = d
	return b
}

// WithChannelBuilder sets how the channels of admitted sources are built.
func (b Builder) WithChannelBuilder(cb channel.Builder) Builder {
	b.channelBuilder = cb
	return b
}

// WithMaxPayload sets the largest frame payload accepted.
func (b Builder) WithMaxPayload(n int) Builder {
	b.maxPayload = n
	return b
}

// WithDatagramQueue sets how many datagrams of one source may wait for its
// channel in connectionless mode. A source overflowing its queue fails with
// ErrDatagramOverflow.
func (b Builder) WithDatagramQueue(n int) Builder {
	b.datagramQueue = n
	return b
}

// WithVerbose turns on per-frame debug output.
func (b Builder) WithVerbose(on bool) Builder {
	b.verbose = on
	return b
}

// WithLogger sets the logger of the server.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// Build creates a server with the given name.
func (b Builder) Build(name string) *Server {
	logger := b.logger
	if logger == nil {
		logger = log.New(os.Stderr, name+": ", log.LstdFlags)
	}

	return &Server{
		NamedBase:        naming.MakeNamedBase(name),
		host:             b.host,
		port:             b.port,
		expected:         b.expected,
		transport:        b.transport,
		multiplexed:      b.multiplexed,
		policy:           b.policy,
		handshakeTimeout: b.handshakeTimeout,
		admissionTimeout: b.admissionTimeout,
		noticeInterval:   b.noticeInterval,
		channelBuilder:   b.channelBuilder,
		maxPayload:       b.maxPayload,
		datagramQueue:    max(b.datagramQueue, 1),
		verbose:          b.verbose,
		logger:           logger,
		barrier:          NewBarrier(b.expected),
		conns:            make(map[net.Conn]struct{}),
	}
}
