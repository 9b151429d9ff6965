// Package fakeroc impersonates readout controllers: it connects to an
// aggregator, announces itself with the handshake and uploads evio blocks
// as frames, ending each stream with END.
package fakeroc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
)

// ErrNotConnected is returned when sending before Connect.
var ErrNotConnected = errors.New("fakeroc: not connected")

// A Source is a fake readout controller. Its streams are numbered from 0.
type Source struct {
	naming.NamedBase

	addr        string
	transport   admission.Transport
	handshake   admission.Handshake
	dialTimeout time.Duration
	order       binary.ByteOrder
	verbose     bool
	logger      *log.Logger

	lock         sync.Mutex
	conn         net.Conn
	blockNumbers []uint32
	ended        []bool
	sent         int
}

// Handshake returns the handshake the source announces.
func (s *Source) Handshake() admission.Handshake {
	return s.handshake
}

// Streams returns the number of streams of the source.
func (s *Source) Streams() int {
	return int(s.handshake.SocketCount)
}

// BlocksSent returns the number of evio blocks sent so far.
func (s *Source) BlocksSent() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.sent
}

// Connect dials the aggregator and sends the handshake.
func (s *Source) Connect(ctx context.Context) error {
	network := "tcp"
	if s.transport == admission.TransportUDP {
		network = "udp"
	}

	dialer := net.Dialer{Timeout: s.dialTimeout}

	conn, err := dialer.DialContext(ctx, network, s.addr)
	if err != nil {
		return err
	}

	if _, err := conn.Write(s.handshake.Encode()); err != nil {
		conn.Close()
		return err
	}

	s.lock.Lock()
	s.conn = conn
	s.lock.Unlock()

	s.logger.Printf("connected to %s/%s as CODA id %d with %d streams",
		s.addr, s.transport, s.handshake.CodaID, s.Streams())

	return nil
}

// SendBlock sends one encoded evio block on a stream.
func (s *Source) SendBlock(ctx context.Context, stream int, block []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.send(stream, channel.CmdEvio, block); err != nil {
		return err
	}

	s.lock.Lock()
	s.sent++
	s.lock.Unlock()

	if s.verbose {
		s.logger.Printf("sent %d bytes on stream %d", len(block), stream)
	}

	return nil
}

// SendEvents groups the events into blocks of perBlock events and sends
// them on a stream. Blocks are numbered from 1 on each stream.
func (s *Source) SendEvents(
	ctx context.Context,
	stream int,
	perBlock int,
	events []*evio.Node,
) error {
	if perBlock < 1 {
		perBlock = 1
	}

	for len(events) > 0 {
		n := min(perBlock, len(events))

		block, err := s.encode(stream, events[:n])
		if err != nil {
			return err
		}

		if err := s.SendBlock(ctx, stream, block); err != nil {
			return err
		}

		events = events[n:]
	}

	return nil
}

// SendFile reads the events of an evio file and sends them on a stream,
// perBlock events per block. It returns the number of events sent.
func (s *Source) SendFile(
	ctx context.Context,
	stream int,
	perBlock int,
	r io.Reader,
) (int, error) {
	reader := evio.NewReader(r)
	count := 0
	pending := make([]*evio.Node, 0, perBlock)

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return count, err
		}

		pending = append(pending, event)
		if len(pending) < perBlock {
			continue
		}

		if err := s.SendEvents(ctx, stream, perBlock, pending); err != nil {
			return count, err
		}

		count += len(pending)
		pending = pending[:0]
	}

	if len(pending) > 0 {
		if err := s.SendEvents(ctx, stream, perBlock, pending); err != nil {
			return count, err
		}

		count += len(pending)
	}

	return count, nil
}

// End sends END on a stream. Nothing more can be sent on it afterwards.
func (s *Source) End(stream int) error {
	if err := s.send(stream, channel.CmdEnd, nil); err != nil {
		return err
	}

	s.lock.Lock()
	s.ended[stream] = true
	s.lock.Unlock()

	return nil
}

// EndAll sends END on every stream not yet ended.
func (s *Source) EndAll() error {
	for i := 0; i < s.Streams(); i++ {
		s.lock.Lock()
		ended := s.ended[i]
		s.lock.Unlock()

		if ended {
			continue
		}

		if err := s.End(i); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the connection.
func (s *Source) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil

	return err
}

func (s *Source) encode(stream int, events []*evio.Node) ([]byte, error) {
	if err := s.checkStream(stream); err != nil {
		return nil, err
	}

	s.lock.Lock()
	s.blockNumbers[stream]++
	number := s.blockNumbers[stream]
	s.lock.Unlock()

	return evio.EncodeBlock(s.order, number, false, events...)
}

func (s *Source) checkStream(stream int) error {
	if stream < 0 || stream >= s.Streams() {
		return fmt.Errorf("fakeroc: stream %d out of range [0, %d)",
			stream, s.Streams())
	}

	return nil
}

// send writes one frame. Over UDP every frame travels in its own datagram.
func (s *Source) send(stream int, cmd uint8, payload []byte) error {
	if err := s.checkStream(stream); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	if s.ended[stream] {
		return fmt.Errorf("fakeroc: stream %d already ended", stream)
	}

	frame := channel.Frame{Cmd: cmd, Stream: uint8(stream), Payload: payload}

	if s.transport == admission.TransportUDP {
		_, err := s.conn.Write(channel.AppendFrame(nil, frame))
		return err
	}

	return channel.WriteFrame(s.conn, frame)
}
