// Package netpeer implements a peer-to-peer broadcast messaging substrate.
//
// Each peer dials a configured set of neighbours and accepts inbound
// connections from them, then fans out typed packets over every live
// connection (or to a single addressed destination). A callback on the
// local peer is invoked for every inbound Message packet; Echo and
// Heartbeat traffic is handled internally to maintain a rolling view of
// per-peer health (PerfStats).
package netpeer

import "time"

// PacketType distinguishes the four kinds of frame that travel the wire.
type PacketType string

const (
	// PacketMessage carries an application payload.
	PacketMessage PacketType = "Message"
	// PacketEcho is returned by the receiver of a Message, copying its
	// timestamps so the sender can measure roundtrip time.
	PacketEcho PacketType = "Echo"
	// PacketHeartbeat carries a serialised PerfStats snapshot.
	PacketHeartbeat PacketType = "Heartbeat"
	// PacketHeartbeatEcho is returned by the receiver of a Heartbeat.
	PacketHeartbeatEcho PacketType = "HeartbeatEcho"
)

// Packet is the wire record exchanged between peers. Content is a string
// because the application payload is itself JSON-encoded into it by
// Network.Send — the substrate never interprets it.
type Packet struct {
	Content     *string    `json:"content"`
	SentTime    time.Time  `json:"sent_time"`
	ReceiveTime *time.Time `json:"receive_time"`
	PacketType  PacketType `json:"packet_type"`
}

// NewMessage builds a Message packet carrying payload, stamped with the
// current time.
func NewMessage(payload string) *Packet {
	return &Packet{
		Content:    &payload,
		SentTime:   time.Now(),
		PacketType: PacketMessage,
	}
}

// NewHeartbeat builds a Heartbeat packet carrying the given serialised
// PerfStats payload.
func NewHeartbeat(statsJSON string) *Packet {
	return &Packet{
		Content:    &statsJSON,
		SentTime:   time.Now(),
		PacketType: PacketHeartbeat,
	}
}

// MarkReceived stamps the packet with the current time. The receive loop
// calls this exactly once per inbound packet, before dispatching it.
func (p *Packet) MarkReceived() {
	now := time.Now()
	p.ReceiveTime = &now
}

// Receipt returns the echo packet to send back to the originator, or nil
// if p is itself an echo (Echo and HeartbeatEcho never generate a further
// receipt). The returned packet copies the original's SentTime and
// ReceiveTime verbatim — it must not re-stamp SentTime, since the
// originator uses both timestamps to compute roundtrip duration on
// arrival.
func (p *Packet) Receipt() *Packet {
	var echoType PacketType
	switch p.PacketType {
	case PacketMessage:
		echoType = PacketEcho
	case PacketHeartbeat:
		echoType = PacketHeartbeatEcho
	default:
		return nil
	}
	return &Packet{
		Content:     nil,
		SentTime:    p.SentTime,
		ReceiveTime: p.ReceiveTime,
		PacketType:  echoType,
	}
}

// IsWorkload reports whether p carries an application payload, i.e. is a
// Message packet rather than protocol-internal traffic.
func (p *Packet) IsWorkload() bool {
	return p.PacketType == PacketMessage
}

// Duration returns the roundtrip time between SentTime and ReceiveTime.
// It panics if ReceiveTime has not been set — callers must only invoke it
// on packets that have passed through MarkReceived (Echo and
// HeartbeatEcho packets always have, since they carry the original's
// receive stamp).
func (p *Packet) Duration() time.Duration {
	if p.ReceiveTime == nil {
		panic("netpeer: Duration called before MarkReceived")
	}
	return p.ReceiveTime.Sub(p.SentTime)
}
