package netpeer

import (
	"encoding/json"
	"sync"
)

// PerfStats aggregates counts and roundtrip durations observed on the
// receive path of a single peer, plus the most recent stats each remote
// peer has reported of itself via heartbeat piggy-back.
//
// Invariant: Total always equals NumMsg+NumMsgEcho+NumHB+NumHBEcho.
type PerfStats struct {
	mu sync.RWMutex

	Total      uint64 `json:"total"`
	NumMsg     uint64 `json:"num_msg"`
	NumMsgEcho uint64 `json:"num_msg_echo"`
	NumHB      uint64 `json:"num_hb"`
	NumHBEcho  uint64 `json:"num_hb_echo"`

	// MsgDurationMicros and HBDurationMicros are cumulative roundtrip
	// durations, in microseconds, accumulated on every Echo/HeartbeatEcho.
	MsgDurationMicros uint64 `json:"msg_duration"`
	HBDurationMicros  uint64 `json:"hb_duration"`

	// Others holds the most recent PerfStats snapshot reported by each
	// remote peer via a Heartbeat packet's payload. Stripped to empty on
	// the serialised form used as a heartbeat payload itself, so a
	// heartbeat never recursively embeds the whole cluster's stats.
	Others map[string]*PerfStats `json:"others"`
}

// NewPerfStats returns an empty, ready-to-use PerfStats.
func NewPerfStats() *PerfStats {
	return &PerfStats{Others: make(map[string]*PerfStats)}
}

// perfStatsWire is the JSON shape of PerfStats — a plain struct mirror
// lets MarshalJSON/UnmarshalJSON avoid copying the mutex and avoid
// recursing through custom marshalling for the nested Others map.
type perfStatsWire struct {
	Total             uint64                    `json:"total"`
	NumMsg            uint64                    `json:"num_msg"`
	NumMsgEcho        uint64                    `json:"num_msg_echo"`
	NumHB             uint64                    `json:"num_hb"`
	NumHBEcho         uint64                    `json:"num_hb_echo"`
	MsgDurationMicros uint64                    `json:"msg_duration"`
	HBDurationMicros  uint64                    `json:"hb_duration"`
	Others            map[string]*perfStatsWire `json:"others"`
}

// MarshalJSON implements json.Marshaler under the read lock.
func (s *PerfStats) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.toWireLocked())
}

func (s *PerfStats) toWireLocked() *perfStatsWire {
	w := &perfStatsWire{
		Total:             s.Total,
		NumMsg:            s.NumMsg,
		NumMsgEcho:        s.NumMsgEcho,
		NumHB:             s.NumHB,
		NumHBEcho:         s.NumHBEcho,
		MsgDurationMicros: s.MsgDurationMicros,
		HBDurationMicros:  s.HBDurationMicros,
		Others:            make(map[string]*perfStatsWire, len(s.Others)),
	}
	for name, other := range s.Others {
		other.mu.RLock()
		w.Others[name] = other.toWireLocked()
		other.mu.RUnlock()
	}
	return w
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PerfStats) UnmarshalJSON(data []byte) error {
	var w perfStatsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fromWireLocked(&w)
	return nil
}

func (s *PerfStats) fromWireLocked(w *perfStatsWire) {
	s.Total = w.Total
	s.NumMsg = w.NumMsg
	s.NumMsgEcho = w.NumMsgEcho
	s.NumHB = w.NumHB
	s.NumHBEcho = w.NumHBEcho
	s.MsgDurationMicros = w.MsgDurationMicros
	s.HBDurationMicros = w.HBDurationMicros
	s.Others = make(map[string]*PerfStats, len(w.Others))
	for name, otherWire := range w.Others {
		other := NewPerfStats()
		other.fromWireLocked(otherWire)
		s.Others[name] = other
	}
}

// Update folds one observed packet into the stats, attributing Heartbeat
// piggy-back data to senderName.
func (s *PerfStats) Update(senderName string, packet *Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Total++
	switch packet.PacketType {
	case PacketMessage:
		s.NumMsg++
	case PacketEcho:
		s.NumMsgEcho++
		s.MsgDurationMicros += uint64(packet.Duration().Microseconds())
	case PacketHeartbeat:
		s.NumHB++
		other := NewPerfStats()
		if packet.Content != nil {
			if err := json.Unmarshal([]byte(*packet.Content), other); err == nil {
				s.Others[senderName] = other
			}
		}
	case PacketHeartbeatEcho:
		s.NumHBEcho++
		s.HBDurationMicros += uint64(packet.Duration().Microseconds())
	}
}

// AvgRoundtripMsg returns the average Message roundtrip, in microseconds.
func (s *PerfStats) AvgRoundtripMsg() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.NumMsgEcho == 0 {
		return 0
	}
	return float64(s.MsgDurationMicros) / float64(s.NumMsgEcho)
}

// AvgRoundtripHeartbeat returns the average Heartbeat roundtrip, in
// microseconds.
func (s *PerfStats) AvgRoundtripHeartbeat() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.NumHBEcho == 0 {
		return 0
	}
	return float64(s.HBDurationMicros) / float64(s.NumHBEcho)
}

// LocalJSON serialises the stats with Others zeroed out — the projection
// used for the payload of an outgoing Heartbeat packet, preventing a
// heartbeat from recursively embedding the whole cluster's stats.
func (s *PerfStats) LocalJSON() (string, error) {
	s.mu.RLock()
	w := s.toWireLocked()
	s.mu.RUnlock()
	w.Others = map[string]*perfStatsWire{}
	data, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Clone returns a deep copy, including Others, suitable for returning
// from Network.GetHealth without exposing the live, lock-guarded struct.
func (s *PerfStats) Clone() *PerfStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := NewPerfStats()
	c.fromWireLocked(s.toWireLocked())
	return c
}
