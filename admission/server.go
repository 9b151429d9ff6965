package admission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
	"github.com/rs/xid"
)

var (
	// HookPosSourceAdmitted marks a source that passed admission. The item
	// is the *Admission.
	HookPosSourceAdmitted = &hooking.HookPos{Name: "Source Admitted"}

	// HookPosSourceRejected marks a connection refused during admission.
	// The item is the remote address and the detail the error.
	HookPosSourceRejected = &hooking.HookPos{Name: "Source Rejected"}

	// HookPosSaturated marks the admission of the last expected source.
	// The item is the list of channels.
	HookPosSaturated = &hooking.HookPos{Name: "Admission Saturated"}

	// HookPosStreamDone marks the end of the stream of an admitted source.
	// The item is the *Admission and the detail the error, nil on a clean
	// END.
	HookPosStreamDone = &hooking.HookPos{Name: "Stream Done"}
)

const (
	maxDatagram     = 65535
	maxRefusedPeers = 1024
)

// An Admission describes one admitted source.
type Admission struct {
	Session   string
	Index     int
	Remote    string
	Handshake Handshake
	Channels  []channel.Channel
	Time      time.Time
}

// A Server accepts sources, gives each one or more channels, and releases
// its barrier once the expected number of channels exist.
type Server struct {
	naming.NamedBase
	hooking.HookableBase

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

	barrier *Barrier

	lock       sync.Mutex
	started    bool
	closing    bool
	state      State
	admitted   int
	channels   []channel.Channel
	admissions []*Admission
	listener   net.Listener
	packetConn *net.UDPConn
	conns      map[net.Conn]struct{}

	wg sync.WaitGroup
}

// Start binds the listening endpoint and starts admitting sources in the
// background. Canceling the context closes the server.
func (s *Server) Start(ctx context.Context) error {
	s.lock.Lock()
	if s.started {
		s.lock.Unlock()
		return fmt.Errorf("admission: server %s already started", s.Name())
	}
	s.started = true
	s.lock.Unlock()

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	switch s.transport {
	case TransportUDP:
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return err
		}

		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return err
		}

		s.lock.Lock()
		s.packetConn = conn
		s.lock.Unlock()

		s.wg.Add(1)
		go s.serveUDP(ctx)
	default:
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}

		s.lock.Lock()
		s.listener = l
		s.lock.Unlock()

		s.wg.Add(1)
		go s.acceptLoop(ctx)
	}

	context.AfterFunc(ctx, func() { _ = s.Close() })

	s.logger.Printf("listening on %s/%s for %d sources",
		s.Addr(), s.transport, s.expected)

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.packetConn != nil {
		return s.packetConn.LocalAddr()
	}

	if s.listener != nil {
		return s.listener.Addr()
	}

	return nil
}

// Barrier returns the barrier released by the last expected source.
func (s *Server) Barrier() *Barrier {
	return s.barrier
}

// Expected returns the number of channels that release the barrier.
func (s *Server) Expected() int {
	return s.expected
}

// State returns the admission state.
func (s *Server) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

// Admitted returns the number of channels created so far.
func (s *Server) Admitted() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.admitted
}

// Channels returns the channels created so far, in arrival order.
func (s *Server) Channels() []channel.Channel {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]channel.Channel(nil), s.channels...)
}

// Admissions returns the admitted sources, in arrival order.
func (s *Server) Admissions() []*Admission {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]*Admission(nil), s.admissions...)
}

// WaitForSources blocks until all expected sources are admitted and returns
// their channels in arrival order. It returns a *LivenessError if the
// admission timeout passes first, and ErrShutdown if the server is closed.
func (s *Server) WaitForSources(ctx context.Context) ([]channel.Channel, error) {
	start := time.Now()
	parent := ctx

	if s.admissionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.admissionTimeout)
		defer cancel()
	}

	for {
		waitCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.noticeInterval > 0 {
			waitCtx, cancel = context.WithTimeout(ctx, s.noticeInterval)
		}

		err := s.barrier.Wait(waitCtx)
		cancel()

		switch {
		case err == nil:
			return s.Channels(), nil
		case errors.Is(err, ErrShutdown):
			return nil, err
		case parent.Err() != nil:
			return nil, parent.Err()
		case ctx.Err() != nil:
			return nil, &LivenessError{
				Expected: s.expected,
				Admitted: s.Admitted(),
				Waited:   time.Since(start),
			}
		}

		s.logger.Printf("waiting for %d more sources (%d of %d connected)",
			s.barrier.Remaining(), s.Admitted(), s.expected)
	}
}

// Close stops admitting, closes every connection and channel, and shuts the
// barrier down if it has not released. It waits for the background
// goroutines to finish.
func (s *Server) Close() error {
	s.lock.Lock()
	if s.closing {
		s.lock.Unlock()
		s.wg.Wait()

		return nil
	}

	s.closing = true

	if s.listener != nil {
		_ = s.listener.Close()
	}

	if s.packetConn != nil {
		_ = s.packetConn.Close()
	}

	for conn := range s.conns {
		_ = conn.Close()
	}

	for _, c := range s.channels {
		c.CloseWithError(ErrShutdown)
	}
	s.lock.Unlock()

	s.barrier.Shutdown()
	s.wg.Wait()

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.listenerClosedOnPurpose() {
				s.logger.Printf("accept failed: %v", err)
			}

			return
		}

		if s.State() == StateSaturated {
			s.reject(conn.RemoteAddr().String(),
				&HandshakeError{Reason: "all sources already connected"})
			_ = conn.Close()

			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) isClosing() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.closing
}

func (s *Server) listenerClosedOnPurpose() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.closing ||
		(s.state == StateSaturated && s.policy == PolicyStopListening)
}

func (s *Server) track(conn net.Conn) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closing {
		return false
	}

	s.conns[conn] = struct{}{}

	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.lock.Lock()
	delete(s.conns, conn)
	s.lock.Unlock()

	_ = conn.Close()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	remote := conn.RemoteAddr().String()

	if s.handshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	}

	hs, err := ReadHandshake(conn)
	if err != nil {
		s.reject(remote, err)
		return
	}

	_ = conn.SetReadDeadline(time.Time{})

	adm, err := s.admit(remote, hs)
	if err != nil {
		s.reject(remote, err)
		return
	}

	err = channel.NewPump(conn, adm.Channels...).
		WithMaxPayload(s.maxPayload).
		WithLogger(s.debugLogger()).
		Run(ctx)
	s.streamDone(adm, err)
}

// A udpPeer is an admitted datagram source. The socket reader only queues
// its datagrams; a goroutine per peer moves them into the channels.
type udpPeer struct {
	admission *Admission
	queue     chan []byte
	done      chan struct{}

	// Owned by the socket reader.
	closed bool
	err    error
}

// stop ends the queue. The pump drains what is queued and then finishes with
// err.
func (p *udpPeer) stop(err error) {
	if p.closed {
		return
	}

	p.closed = true
	p.err = err
	close(p.queue)
}

func (p *udpPeer) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return p.closed
	}
}

// refusedSet remembers a bounded number of refused remotes, oldest first out.
type refusedSet struct {
	order []string
	set   map[string]struct{}
}

func (r *refusedSet) add(remote string) {
	if r.set == nil {
		r.set = make(map[string]struct{})
	}

	if len(r.order) >= maxRefusedPeers {
		delete(r.set, r.order[0])
		r.order = r.order[1:]
	}

	r.order = append(r.order, remote)
	r.set[remote] = struct{}{}
}

func (r *refusedSet) contains(remote string) bool {
	_, ok := r.set[remote]
	return ok
}

func (s *Server) serveUDP(ctx context.Context) {
	defer s.wg.Done()

	peers := make(map[string]*udpPeer)
	refused := &refusedSet{}
	buf := make([]byte, maxDatagram)

	for {
		n, addr, err := s.packetConn.ReadFromUDP(buf)
		if err != nil {
			if s.listenerClosedOnPurpose() {
				err = ErrShutdown
			} else {
				s.logger.Printf("receive failed: %v", err)
			}

			for _, p := range peers {
				p.stop(err)
			}

			return
		}

		remote := addr.String()

		p, ok := peers[remote]
		if !ok {
			if refused.contains(remote) {
				continue
			}

			p, err = s.greetUDP(remote, buf[:n])
			if err != nil {
				s.reject(remote, err)
				refused.add(remote)

				continue
			}

			peers[remote] = p
			s.wg.Add(1)
			go s.pumpUDP(ctx, p)

			continue
		}

		if p.finished() {
			continue
		}

		select {
		case p.queue <- append([]byte(nil), buf[:n]...):
		default:
			p.stop(ErrDatagramOverflow)
		}
	}
}

func (s *Server) greetUDP(remote string, datagram []byte) (*udpPeer, error) {
	hs, err := DecodeHandshake(datagram)
	if err != nil {
		return nil, err
	}

	adm, err := s.admit(remote, hs)
	if err != nil {
		return nil, err
	}

	return &udpPeer{
		admission: adm,
		queue:     make(chan []byte, s.datagramQueue),
		done:      make(chan struct{}),
	}, nil
}

func (s *Server) pumpUDP(ctx context.Context, p *udpPeer) {
	defer s.wg.Done()
	defer close(p.done)

	d := channel.NewDispatcher(p.admission.Channels...).
		WithLogger(s.debugLogger())

	err := func() error {
		for {
			select {
			case datagram, ok := <-p.queue:
				if !ok {
					return p.err
				}

				f, err := channel.DecodeFrame(datagram, s.maxPayload)
				if err == nil {
					err = d.Dispatch(ctx, f)
				}

				if err != nil {
					return err
				}

				if d.Done() {
					return nil
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}()

	d.Finish(err)
	s.streamDone(p.admission, err)
}

// admit creates the channels of a source and counts them down on the
// barrier.
func (s *Server) admit(remote string, hs Handshake) (*Admission, error) {
	streams := 1
	if s.multiplexed {
		streams = int(hs.SocketCount)
	}

	s.lock.Lock()

	if s.closing {
		s.lock.Unlock()
		return nil, ErrShutdown
	}

	if s.state == StateSaturated {
		s.lock.Unlock()
		return nil, &HandshakeError{Reason: "all sources already connected"}
	}

	if free := s.expected - s.admitted; streams > free {
		s.lock.Unlock()

		return nil, &HandshakeError{
			Reason: fmt.Sprintf("announces %d streams, only %d slots left",
				streams, free),
		}
	}

	adm := &Admission{
		Session:   xid.New().String(),
		Index:     s.admitted,
		Remote:    remote,
		Handshake: hs,
		Time:      time.Now(),
	}

	for i := 0; i < streams; i++ {
		c := s.channelBuilder.
			WithID(int(hs.CodaID)).
			WithStreamIndex(s.admitted).
			Build(naming.BuildWithIndex(s.Name(), "Input", s.admitted))

		adm.Channels = append(adm.Channels, c)
		s.channels = append(s.channels, c)
		s.admitted++
		s.barrier.CountDown()
	}

	s.admissions = append(s.admissions, adm)
	s.state = StateAdmitting

	saturated := s.admitted == s.expected
	if saturated {
		s.state = StateSaturated

		if s.policy == PolicyStopListening && s.listener != nil {
			_ = s.listener.Close()
		}
	}

	channels := append([]channel.Channel(nil), s.channels...)
	s.lock.Unlock()

	s.logger.Printf("admitted source %d from %s as %s (%d of %d)",
		hs.CodaID, remote, adm.Channels[0].Name(), adm.Index+streams, s.expected)

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosSourceAdmitted,
		Item:   adm,
	})

	if saturated {
		s.logger.Printf("all %d sources connected", s.expected)

		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosSaturated,
			Item:   channels,
		})
	}

	return adm, nil
}

func (s *Server) reject(remote string, err error) {
	var hsErr *HandshakeError
	if errors.As(err, &hsErr) && hsErr.Remote == "" {
		hsErr.Remote = remote
	}

	s.logger.Printf("refused %s: %v", remote, err)

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosSourceRejected,
		Item:   remote,
		Detail: err,
	})
}

func (s *Server) streamDone(adm *Admission, err error) {
	if err != nil && !s.isClosing() {
		s.logger.Printf("stream of source %d from %s failed: %v",
			adm.Handshake.CodaID, adm.Remote, err)
	} else if s.verbose {
		s.logger.Printf("stream of source %d from %s ended",
			adm.Handshake.CodaID, adm.Remote)
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosStreamDone,
		Item:   adm,
		Detail: err,
	})
}

func (s *Server) debugLogger() *log.Logger {
	if s.verbose {
		return s.logger
	}

	return nil
}
