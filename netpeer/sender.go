package netpeer

import (
	"bufio"
	"log"
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// HeadNode is the reserved logical destination that always routes to the
// first sender stream in insertion order, regardless of that stream's
// real address. It exists so the heartbeat scheduler can target "some
// reachable peer" without knowing its address; callers should use this
// named constant rather than the bare string in application code.
const HeadNode = "HEAD_NODE"

// outboundFrame is one item enqueued for the send loop: dest is nil for
// a broadcast, or names a peer address (possibly HeadNode) for a
// unicast.
type outboundFrame struct {
	dest   *string
	packet *Packet
}

// senderStream is one outbound TCP connection the Sender owns. Broken is
// set on any write/flush failure; a broken stream is retained (never
// removed) and written to again on every future send, with further
// failures on it dropped silently (only the first one is logged),
// matching the permissive error-handling spec.md §4.3 calls for.
type senderStream struct {
	addr   string
	conn   net.Conn
	writer *bufio.Writer
	broken bool
}

// Sender owns the ordered sequence of outbound TCP streams for one peer
// and the goroutines that populate and drain it: the AcceptLoop, which
// appends a stream for every accepted connection, and the send loop,
// which dequeues one outboundFrame at a time and fans it out.
//
// The sender-sequence mutex is held for the entire fan-out of one
// packet, not per-stream — this serialises all outbound frames on this
// peer cluster-wide. It is the simplest correct design given that a
// single TCP stream's frames must never interleave, and per spec.md §9
// an implementer may refine to per-stream queues as long as per-sender
// FIFO per connection is preserved; this implementation keeps the
// teacher's single-lock shape instead.
type Sender struct {
	mu      sync.RWMutex
	streams []*senderStream
	seq     uint32

	// limiter, if non-nil, throttles outbound frame writes. Modelled on
	// BX-D-mini-RPC/middleware/rate_limit_middleware.go's token bucket:
	// created once and shared, never recreated per call. A throttled
	// write is dropped (logged), not blocked — broadcast is best-effort,
	// so a missed frame due to rate limiting behaves exactly like a
	// missed frame due to a slow/broken stream.
	limiter *rate.Limiter
}

// NewSender returns an empty Sender. If ratePerSec > 0, outbound writes
// are throttled to that many frames per second across all destinations,
// with a burst of burst frames.
func NewSender(ratePerSec float64, burst int) *Sender {
	s := &Sender{}
	if ratePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return s
}

// Subscribers returns the addresses of all streams in first-acceptance
// order. The slice is a snapshot; it is never reordered as new streams
// are appended.
func (s *Sender) Subscribers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.streams))
	for i, st := range s.streams {
		out[i] = st.addr
	}
	return out
}

// Len returns the number of streams currently held, used by Network's
// readiness barrier.
func (s *Sender) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// acceptLoop blocks on listener.Accept, appending one stream per
// accepted connection. If newPeerCh is non-nil (two-way mode), the
// accepted remote address is also forwarded so the receiver launcher
// opens a connection back to it. The send loop is not started until the
// first connection is accepted, since only then is a local address known
// to log against.
func (s *Sender) acceptLoop(listener net.Listener, outboundCh <-chan outboundFrame, newPeerCh chan<- net.Addr) {
	sendLoopStarted := false
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("[sender] accept error: %v", err)
			continue
		}
		remoteAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
		if !ok {
			log.Printf("[sender] accepted connection with non-TCP remote address %v, dropping", conn.RemoteAddr())
			conn.Close()
			continue
		}
		ip := remoteAddr.IP.String()
		st := &senderStream{addr: ip, conn: conn, writer: bufio.NewWriter(conn)}

		s.mu.Lock()
		s.streams = append(s.streams, st)
		s.mu.Unlock()
		log.Printf("[sender] accepted connection from %s -> %s, now %d subscriber(s)", ip, conn.LocalAddr(), s.Len())

		if newPeerCh != nil {
			newPeerCh <- conn.RemoteAddr()
		}

		if !sendLoopStarted {
			sendLoopStarted = true
			localAddr := conn.LocalAddr().String()
			go s.sendLoop(localAddr, outboundCh)
		}
	}
}

// sendLoop drains outboundCh until it is closed, fanning out each frame
// in turn.
func (s *Sender) sendLoop(localName string, outboundCh <-chan outboundFrame) {
	log.Printf("[sender] send loop started as %s", localName)
	for msg := range outboundCh {
		s.dispatch(msg)
	}
	log.Printf("[sender] outbound channel closed, send loop exiting")
}

// dispatch writes one frame to every stream matching msg.dest (all
// streams, for a broadcast). The whole fan-out runs under the writer
// lock, so frames from concurrent Send/heartbeat calls never interleave
// on any single stream.
func (s *Sender) dispatch(msg outboundFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq
	s.seq++

	data, err := encodeFrame(seq, msg.packet)
	if err != nil {
		log.Printf("[sender] failed to serialise packet %d: %v", seq, err)
		return
	}

	for i, st := range s.streams {
		if msg.dest != nil {
			isHead := *msg.dest == HeadNode && i == 0
			if !isHead && *msg.dest != st.addr {
				continue
			}
		}
		if s.limiter != nil && !s.limiter.Allow() {
			log.Printf("[sender] rate limit exceeded, dropping frame %d to %s", seq, st.addr)
			continue
		}
		wasBroken := st.broken
		if _, err := st.writer.Write(data); err != nil {
			if !wasBroken {
				log.Printf("[sender] write failed to %s, marking stream broken: %v", st.addr, err)
			}
			st.broken = true
			continue
		}
		if err := st.writer.Flush(); err != nil {
			if !wasBroken {
				log.Printf("[sender] flush failed to %s, marking stream broken: %v", st.addr, err)
			}
			st.broken = true
			continue
		}
	}
}
