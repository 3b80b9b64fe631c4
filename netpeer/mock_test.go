package netpeer

import "testing"

func TestMockNetworkSendQueuesOutbox(t *testing.T) {
	m := NewMockNetwork(nil)
	if err := m.Send("one"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if err := m.Send("two"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	outbox := m.Outbox()
	if len(outbox) != 2 {
		t.Fatalf("expected 2 queued packets, got %d", len(outbox))
	}
	if outbox[0].Dest != nil || outbox[1].Dest != nil {
		t.Fatalf("expected a broadcast Send to leave Dest nil, got %v", outbox)
	}
	if *outbox[0].Packet.Content != `"one"` || *outbox[1].Packet.Content != `"two"` {
		t.Fatalf("unexpected outbox contents: %v", outbox)
	}

	if drained := m.Outbox(); len(drained) != 0 {
		t.Fatalf("expected Outbox to drain the queue, got %v", drained)
	}
}

func TestMockNetworkSendToRecordsDestination(t *testing.T) {
	m := NewMockNetwork(nil)
	if err := m.SendTo("peerY", "out"); err != nil {
		t.Fatalf("SendTo returned error: %v", err)
	}

	outbox := m.Outbox()
	if len(outbox) != 1 {
		t.Fatalf("expected 1 queued packet, got %d", len(outbox))
	}
	entry := outbox[0]
	if entry.Dest == nil || *entry.Dest != "peerY" {
		t.Fatalf("expected SendTo to record dest %q, got %v", "peerY", entry.Dest)
	}
	if entry.Packet.PacketType != PacketMessage || entry.Packet.Content == nil || *entry.Packet.Content != `"out"` {
		t.Fatalf("unexpected queued packet: %+v", entry.Packet)
	}
}

func TestMockNetworkInjectInvokesCallback(t *testing.T) {
	var gotSender, gotPayload string
	m := NewMockNetwork(func(senderAddr, payload string) {
		gotSender, gotPayload = senderAddr, payload
	})

	if err := m.Inject("peer-x", "hello"); err != nil {
		t.Fatalf("Inject returned error: %v", err)
	}
	if gotSender != "peer-x" || gotPayload != `"hello"` {
		t.Fatalf("unexpected callback invocation: sender=%q payload=%q", gotSender, gotPayload)
	}

	health := m.GetHealth()
	if health.NumMsg != 0 {
		t.Fatalf("expected GetHealth to always report an empty PerfStats, got NumMsg=%d", health.NumMsg)
	}
}

func TestMockNetworkSubscribersFixed(t *testing.T) {
	m := NewMockNetwork(nil)
	subs := m.Subscribers()
	if len(subs) != 1 || subs[0] != "mock" {
		t.Fatalf(`expected Subscribers to be ["mock"], got %v`, subs)
	}
}
