package netpeer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// OutboxEntry is one recorded outbound send: Dest is nil for a broadcast
// send, or names the destination address (possibly HeadNode) for a
// unicast send, mirroring mock_network.rs's mock_get returning
// `(Option<String>, Packet)`.
type OutboxEntry struct {
	Dest   *string
	Packet *Packet
}

// MockNetwork is an in-process test double for Network: instead of
// opening real TCP connections, outbound sends are appended to an
// internal queue and inbound delivery is driven synchronously by the
// test via Inject. Grounded on mock_network.rs's MockNetwork, including
// its fixed single-subscriber view (the original hard-codes
// `vec!["mock".to_string()]`) and its GetHealth, which always returns a
// fresh, empty PerfStats rather than tracking real counters.
type MockNetwork struct {
	mu     sync.Mutex
	outbox []OutboxEntry
	userFn func(senderAddr string, payload string)
}

// NewMockNetwork returns a ready-to-use MockNetwork. onMessage is invoked
// synchronously, on the caller's goroutine, by Inject.
func NewMockNetwork(onMessage func(senderAddr string, payload string)) *MockNetwork {
	return &MockNetwork{userFn: onMessage}
}

// Send records a broadcast Message packet carrying payload in the
// outbound queue, without touching the network.
func (m *MockNetwork) Send(payload any) error {
	return m.sendTo(nil, payload)
}

// SendTo records a Message packet carrying payload addressed to dest (or
// HeadNode) in the outbound queue, without touching the network. Mirrors
// mock_network.rs's send(dest: Option<String>, ...).
func (m *MockNetwork) SendTo(dest string, payload any) error {
	return m.sendTo(&dest, payload)
}

func (m *MockNetwork) sendTo(dest *string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("netpeer: failed to encode payload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, OutboxEntry{Dest: dest, Packet: NewMessage(string(data))})
	return nil
}

// Outbox returns, and clears, every (dest, packet) pair queued by Send or
// SendTo so far, in send order. It takes the whole queue in one call,
// not one entry per call as mock_network.rs's mock_get does.
func (m *MockNetwork) Outbox() []OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.outbox
	m.outbox = nil
	return out
}

// Inject simulates an inbound Message packet from senderAddr, invoking
// the user callback synchronously on the caller's goroutine. Mirrors
// mock_network.rs's mock_send, which calls the callback directly without
// touching PerfStats.
func (m *MockNetwork) Inject(senderAddr string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("netpeer: failed to encode payload: %w", err)
	}
	if m.userFn != nil {
		m.userFn(senderAddr, string(data))
	}
	return nil
}

// Subscribers always returns the single fixed name "mock", matching the
// original's hard-coded subscriber list.
func (m *MockNetwork) Subscribers() []string {
	return []string{"mock"}
}

// GetHealth always returns a fresh, empty PerfStats — the mock never
// tracks real counters, matching mock_network.rs's get_health.
func (m *MockNetwork) GetHealth() *PerfStats {
	return NewPerfStats()
}

// SetHeartbeatInterval is a no-op, matching mock_network.rs's
// set_health_parameter — the mock has no heartbeat scheduler to configure.
func (m *MockNetwork) SetHeartbeatInterval(time.Duration) {}
