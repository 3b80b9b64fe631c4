package netpeer

import (
	"net"
	"testing"
	"time"
)

func TestReceiveLoopDispatchesAndEchoes(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	outboundCh := make(chan outboundFrame, 8)
	received := make(chan *Packet, 8)
	go receiveLoop("127.0.0.1", serverSide, outboundCh, func(addr string, p *Packet) {
		received <- p
	})

	go func() {
		data, err := encodeFrame(0, NewMessage("payload"))
		if err != nil {
			t.Errorf("encodeFrame returned error: %v", err)
			return
		}
		if _, err := clientSide.Write(data); err != nil {
			t.Errorf("write returned error: %v", err)
		}
	}()

	select {
	case p := <-received:
		if p.PacketType != PacketMessage || p.Content == nil || *p.Content != "payload" {
			t.Fatalf("unexpected dispatched packet: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dispatch")
	}

	select {
	case out := <-outboundCh:
		if out.packet.PacketType != PacketEcho {
			t.Fatalf("expected an Echo receipt, got %s", out.packet.PacketType)
		}
		if out.dest == nil || *out.dest != "127.0.0.1" {
			t.Fatalf("expected the receipt addressed back to the sender, got %v", out.dest)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the echo receipt")
	}

	clientSide.Close()
}

func TestReceiveLoopHeartbeatNeverMessageCallback(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	outboundCh := make(chan outboundFrame, 8)
	called := false
	go receiveLoop("10.0.0.5", serverSide, outboundCh, func(addr string, p *Packet) {
		called = p.PacketType == PacketMessage
	})

	go func() {
		data, _ := encodeFrame(0, NewHeartbeat("{}"))
		clientSide.Write(data)
	}()

	select {
	case out := <-outboundCh:
		if out.packet.PacketType != PacketHeartbeatEcho {
			t.Fatalf("expected a HeartbeatEcho receipt, got %s", out.packet.PacketType)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the heartbeat receipt")
	}
	if called {
		t.Fatalf("onPacket should never classify a Heartbeat as a Message")
	}
}

func TestReceiveLoopSurvivesMalformedFrame(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	outboundCh := make(chan outboundFrame, 8)
	received := make(chan *Packet, 8)
	go receiveLoop("127.0.0.1", serverSide, outboundCh, func(addr string, p *Packet) {
		received <- p
	})

	go func() {
		clientSide.Write([]byte("not json\n"))
		data, _ := encodeFrame(1, NewMessage("still alive"))
		clientSide.Write(data)
	}()

	select {
	case p := <-received:
		if p.Content == nil || *p.Content != "still alive" {
			t.Fatalf("expected the connection to survive a malformed frame and dispatch the next one, got %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dispatch after a malformed frame; the connection was likely dropped")
	}
}

func TestConnectAndReceiveGivesUpAfterRetries(t *testing.T) {
	outboundCh := make(chan outboundFrame, 1)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}

	done := make(chan struct{})
	go func() {
		connectAndReceive(addr, outboundCh, func(string, *Packet) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(connectRetries*connectRetryDelay + 3*time.Second):
		t.Fatalf("expected connectAndReceive to give up after %d retries", connectRetries)
	}
}
