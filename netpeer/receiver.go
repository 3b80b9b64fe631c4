package netpeer

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"time"
)

const (
	connectRetries    = 3
	connectRetryDelay = 2 * time.Second
)

// ReceiveCallback is invoked once per inbound packet with the sender's
// IP-only address. It is called for every packet type, not just
// Message — Network wraps this to filter to Message-only and update
// PerfStats for every packet.
type ReceiveCallback func(senderAddr string, packet *Packet)

// receiverLauncher consumes SocketAddr values from newPeerCh and spawns
// one worker per distinct address. Two peers behind the same NAT IP
// collapse for Sender addressing purposes (which is IP-only, see
// sender.go), but not here: the dedup set below is keyed on the full
// net.Addr.String(), including port, exactly as the original source's
// dedup set is keyed on the full SocketAddr. This is the hazard noted in
// spec.md §9 ("Two-way promotion") and intentionally not "fixed".
func receiverLauncher(newPeerCh <-chan net.Addr, port int, outboundCh chan<- outboundFrame, onPacket ReceiveCallback) {
	seen := make(map[string]bool)
	for addr := range newPeerCh {
		key := addr.String()
		if seen[key] {
			log.Printf("[receiver] skipped, receiver already exists for %s", key)
			continue
		}
		seen[key] = true

		tcpAddr, ok := addr.(*net.TCPAddr)
		if !ok {
			log.Printf("[receiver] non-TCP address %v, skipping", addr)
			continue
		}
		dialAddr := &net.TCPAddr{IP: tcpAddr.IP, Port: port}
		go connectAndReceive(dialAddr, outboundCh, onPacket)
	}
}

// connectAndReceive dials remoteAddr with up to connectRetries attempts,
// sleeping connectRetryDelay between them. On success it runs the
// per-peer receive loop until the connection fails or is closed; on
// exhausted retries it logs and gives up permanently for this address —
// the peer remains reachable for sending (if it connected to us) but
// never for receiving.
func connectAndReceive(remoteAddr *net.TCPAddr, outboundCh chan<- outboundFrame, onPacket ReceiveCallback) {
	var conn net.Conn
	var err error
	for attempt := 1; attempt <= connectRetries; attempt++ {
		conn, err = net.Dial("tcp", remoteAddr.String())
		if err == nil {
			break
		}
		log.Printf("[receiver] (retry %d/%d in %s) failed to connect to remote address %s: %v",
			attempt, connectRetries, connectRetryDelay, remoteAddr, err)
		if attempt < connectRetries {
			time.Sleep(connectRetryDelay)
		}
	}
	if err != nil {
		log.Printf("[receiver] failed to connect to remote address %s, giving up", remoteAddr)
		return
	}

	senderAddr := remoteAddr.IP.String()
	log.Printf("[receiver] connected to %s", remoteAddr)
	receiveLoop(senderAddr, conn, outboundCh, onPacket)
}

// receiveLoop reads one frame per line from conn until the connection
// errors, dispatching each packet to onPacket and emitting an echo
// receipt (if any) on outboundCh.
//
// Open question (spec.md §9, resolved): the original leaves ambiguous
// whether a closed connection should cause the loop to spin on empty
// reads forever. Go's net.Conn deterministically returns io.EOF on a
// closed read side, so this implementation terminates the goroutine on
// EOF (or any other read error) instead of spinning — a confirmed-dead
// socket has nothing left to read, ever.
func receiveLoop(senderAddr string, conn net.Conn, outboundCh chan<- outboundFrame, onPacket ReceiveCallback) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		f, ok, err := readFrame(r)
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				// Parse failure on an otherwise well-read line: log and keep
				// the connection, per spec.md §4.4 step 3.
				log.Printf("[receiver] malformed frame from %s: %v", senderAddr, err)
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Printf("[receiver] connection from %s closed", senderAddr)
			} else {
				log.Printf("[receiver] read error from %s: %v", senderAddr, err)
			}
			return
		}
		if !ok {
			// Empty line: log and continue, matching the original's trace-level skip.
			log.Printf("[receiver] empty line from %s, skipping", senderAddr)
			continue
		}

		packet := f.Packet
		packet.MarkReceived()

		receipt := packet.Receipt()

		onPacket(senderAddr, packet)

		if receipt != nil {
			dest := senderAddr
			select {
			case outboundCh <- outboundFrame{dest: &dest, packet: receipt}:
			default:
				log.Printf("[receiver] outbound channel full, dropping receipt for frame %d from %s", f.Seq, senderAddr)
			}
		}
	}
}
