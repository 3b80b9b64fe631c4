package netpeer

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"time"
)

// Config configures a Network. Port is the local TCP port to listen on;
// RemoteIPs is the initial set of peers to dial. RatePerSec/Burst, if
// RatePerSec > 0, throttle outbound writes (see NewSender). TwoWay
// controls whether an accepted inbound connection is also dialled back
// (see the doc comment on the TwoWay field below for the rationale).
type Config struct {
	Name      string
	Port      int
	RemoteIPs []string

	RatePerSec float64
	Burst      int

	HeartbeatInterval time.Duration

	// TwoWay, when true, reproduces the "two-way" mode of the original
	// source's start_network(is_two_way): every inbound connection
	// accepted by the Sender's listener is promoted into an outbound
	// connection back to the same peer, so that a peer which only
	// dialled in (and never appeared in this node's RemoteIPs) still
	// gets a receiver. When false (the default, matching "one-way"
	// mode), only the configured RemoteIPs are ever dialled.
	TwoWay bool
}

// Network is the payload-agnostic broadcast façade: it owns a Sender, a
// PerfStats, a heartbeat scheduler, and the receiver goroutines for every
// configured (and, in two-way mode, every accepted) peer. Grounded on
// real_network.rs's RealNetwork — the readiness barrier, the
// wrap-the-callback-with-PerfStats.Update behaviour, and the inline
// heartbeat loop are all carried over structurally.
type Network struct {
	name   string
	sender *Sender
	stats  *PerfStats
	hb     *heartbeatScheduler

	outboundCh chan outboundFrame
	userFn     func(senderAddr string, payload string)
}

// NewNetwork starts listening on cfg.Port, dials every address in
// cfg.RemoteIPs, and blocks (polling every 500ms, matching the original's
// readiness loop) until every configured peer has a live sender stream.
// onMessage is invoked once per inbound Message packet with the sender's
// IP-only address and the payload's JSON text exactly as Send encoded it
// (the substrate does not decode it into an application type); it is
// never invoked for Echo, Heartbeat, or HeartbeatEcho traffic.
func NewNetwork(cfg Config, onMessage func(senderAddr string, payload string)) (*Network, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("netpeer: failed to listen on port %d: %w", cfg.Port, err)
	}

	n := &Network{
		name:       cfg.Name,
		sender:     NewSender(cfg.RatePerSec, cfg.Burst),
		stats:      NewPerfStats(),
		outboundCh: make(chan outboundFrame, 1024),
		userFn:     onMessage,
	}

	var newPeerCh chan net.Addr
	if cfg.TwoWay {
		newPeerCh = make(chan net.Addr, 64)
	}
	go n.sender.acceptLoop(listener, n.outboundCh, newPeerCh)

	peerCh := make(chan net.Addr, len(cfg.RemoteIPs)+64)
	for _, ip := range cfg.RemoteIPs {
		peerCh <- &net.TCPAddr{IP: net.ParseIP(ip)}
	}
	if cfg.TwoWay {
		go func() {
			for addr := range newPeerCh {
				peerCh <- addr
			}
		}()
	} else {
		close(peerCh)
	}
	go receiverLauncher(peerCh, cfg.Port, n.outboundCh, n.handleInbound)

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	n.hb = newHeartbeatScheduler(interval, n.stats, n.outboundCh)
	go n.hb.run()

	n.awaitReady(len(cfg.RemoteIPs))
	log.Printf("[network] %s ready on :%d with %d peer(s)", n.name, cfg.Port, len(cfg.RemoteIPs))

	return n, nil
}

// awaitReady blocks, polling every 500ms, until the Sender holds at least
// want live streams. Matches real_network.rs's readiness loop
// (`while network.connected_peers() < num_remote`).
func (n *Network) awaitReady(want int) {
	if want <= 0 {
		return
	}
	for n.sender.Len() < want {
		time.Sleep(500 * time.Millisecond)
	}
}

// handleInbound is the wrapped callback passed to the receiver: it
// updates PerfStats for every packet, and only forwards the payload's
// JSON text (undecoded) to the user callback for Message packets.
func (n *Network) handleInbound(senderAddr string, packet *Packet) {
	n.stats.Update(senderAddr, packet)
	if !packet.IsWorkload() || n.userFn == nil {
		return
	}
	if packet.Content == nil {
		log.Printf("[network] message packet from %s had no content", senderAddr)
		return
	}
	n.userFn(senderAddr, *packet.Content)
}

// Send broadcasts payload, JSON-encoded, to every live stream.
func (n *Network) Send(payload any) error {
	return n.sendTo(nil, payload)
}

// SendTo unicasts payload to the single peer at addr (or HeadNode).
func (n *Network) SendTo(addr string, payload any) error {
	return n.sendTo(&addr, payload)
}

func (n *Network) sendTo(dest *string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("netpeer: failed to encode payload: %w", err)
	}
	n.outboundCh <- outboundFrame{dest: dest, packet: NewMessage(string(data))}
	return nil
}

// Subscribers returns the addresses of every peer with a sender stream,
// including streams marked broken, in first-acceptance order.
func (n *Network) Subscribers() []string {
	return n.sender.Subscribers()
}

// SetHeartbeatInterval reconfigures the heartbeat period at runtime.
func (n *Network) SetHeartbeatInterval(d time.Duration) {
	n.hb.SetInterval(d)
}

// GetHealth returns a deep copy of the local PerfStats, safe to inspect
// without racing the receive path.
func (n *Network) GetHealth() *PerfStats {
	return n.stats.Clone()
}

// Close stops the heartbeat scheduler and the outbound send loop. The
// listener and any open connections are not forcibly closed — broadcast
// peers are expected to run for the process lifetime, matching the
// original's lack of a shutdown path.
func (n *Network) Close() {
	n.hb.stop()
	close(n.outboundCh)
}
