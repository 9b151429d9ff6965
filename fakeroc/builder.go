package fakeroc

import (
	"encoding/binary"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
)

// Builder can build fake readout controllers.
type Builder struct {
	host        string
	port        int
	transport   admission.Transport
	codaID      int32
	bufferSize  int32
	streams     int
	dialTimeout time.Duration
	order       binary.ByteOrder
	verbose     bool
	logger      *log.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		host:        "localhost",
		port:        46100,
		bufferSize:  4 << 20,
		streams:     1,
		dialTimeout: 5 * time.Second,
		order:       binary.BigEndian,
	}
}

// WithHost sets the host of the aggregator.
func (b Builder) WithHost(host string) Builder {
	b.host = host
	return b
}

// WithPort sets the port of the aggregator.
func (b Builder) WithPort(port int) Builder {
	b.port = port
	return b
}

// WithAddress sets the host and port of the aggregator from "host:port".
func (b Builder) WithAddress(addr string) Builder {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		log.Panic(err)
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		log.Panic(err)
	}

	b.host = host
	b.port = p

	return b
}

// WithTransport sets the transport used to reach the aggregator.
func (b Builder) WithTransport(t admission.Transport) Builder {
	b.transport = t
	return b
}

// WithCodaID sets the CODA id announced in the handshake.
func (b Builder) WithCodaID(id int32) Builder {
	if id < 0 {
		id = 0
	}

	b.codaID = id

	return b
}

// WithBufferSize sets the largest buffer size announced in the handshake.
func (b Builder) WithBufferSize(n int32) Builder {
	b.bufferSize = n
	return b
}

// WithStreams sets how many streams share the connection.
func (b Builder) WithStreams(n int) Builder {
	if n < 1 || n > 255 {
		log.Panicf("cannot carry %d streams on one connection", n)
	}

	b.streams = n

	return b
}

// WithDialTimeout bounds the time taken to connect.
func (b Builder) WithDialTimeout(d time.Duration) Builder {
	b.dialTimeout = d
	return b
}

// WithByteOrder sets the byte order of the evio blocks sent.
func (b Builder) WithByteOrder(order binary.ByteOrder) Builder {
	b.order = order
	return b
}

// WithVerbose turns on per-block logging.
func (b Builder) WithVerbose(on bool) Builder {
	b.verbose = on
	return b
}

// WithLogger sets the logger of the source.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// Build creates a source with the given name.
func (b Builder) Build(name string) *Source {
	logger := b.logger
	if logger == nil {
		logger = log.New(os.Stderr, name+": ", log.LstdFlags)
	}

	return &Source{
		NamedBase: naming.MakeNamedBase(name),
		addr:      net.JoinHostPort(b.host, strconv.Itoa(b.port)),
		transport: b.transport,
		handshake: admission.Handshake{
			CodaID:         b.codaID,
			BufferSize:     b.bufferSize,
			SocketCount:    int32(b.streams),
			SocketPosition: 1,
		},
		dialTimeout:  b.dialTimeout,
		order:        b.order,
		verbose:      b.verbose,
		logger:       logger,
		blockNumbers: make([]uint32, b.streams),
		ended:        make([]bool, b.streams),
	}
}
