package netpeer

import (
	"log"
	"sync"
	"time"
)

// heartbeatScheduler periodically sends a Heartbeat packet carrying the
// local PerfStats snapshot to HeadNode, so that at least one reachable
// peer always observes this node's liveness and health even if no
// application traffic is flowing. Grounded on the original source's
// inline `thread::spawn` heartbeat loop in real_network.rs, which fires
// on a fixed interval under a mutex-guarded duration that can be
// reconfigured at runtime.
type heartbeatScheduler struct {
	mu       sync.RWMutex
	interval time.Duration

	stats      *PerfStats
	outboundCh chan<- outboundFrame
	stopCh     chan struct{}
}

// newHeartbeatScheduler returns a scheduler that has not yet been
// started; call run in its own goroutine.
func newHeartbeatScheduler(interval time.Duration, stats *PerfStats, outboundCh chan<- outboundFrame) *heartbeatScheduler {
	return &heartbeatScheduler{
		interval:   interval,
		stats:      stats,
		outboundCh: outboundCh,
		stopCh:     make(chan struct{}),
	}
}

// SetInterval changes the heartbeat period; it takes effect after the
// current sleep completes.
func (h *heartbeatScheduler) SetInterval(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interval = d
}

func (h *heartbeatScheduler) currentInterval() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.interval
}

// run sends a heartbeat immediately, then one more per interval until
// stopped, matching real_network.rs's scheduler firing as soon as the
// network comes up rather than waiting out a full interval first. It
// must be started in its own goroutine.
func (h *heartbeatScheduler) run() {
	for {
		payload, err := h.stats.LocalJSON()
		if err != nil {
			log.Printf("[heartbeat] failed to serialise local stats: %v", err)
		} else {
			dest := HeadNode
			h.outboundCh <- outboundFrame{dest: &dest, packet: NewHeartbeat(payload)}
		}

		select {
		case <-h.stopCh:
			return
		case <-time.After(h.currentInterval()):
		}
	}
}

// stop terminates the scheduler's goroutine. It is safe to call at most
// once.
func (h *heartbeatScheduler) stop() {
	close(h.stopCh)
}
