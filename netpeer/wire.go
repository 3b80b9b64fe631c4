package netpeer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFrame wraps a JSON-unmarshal failure on an otherwise
// successfully read line. Callers use errors.Is to distinguish this from
// a real I/O error on the underlying connection: a malformed frame is
// logged and the connection is kept (spec.md §4.4 step 3), while an I/O
// error (e.g. io.EOF) is terminal for the per-peer receive loop.
var ErrMalformedFrame = errors.New("netpeer: malformed frame")

// frame is the wire shape of one line: a (sequence index, packet) pair,
// JSON-array encoded as `[seq, packet]\n`. There is no length prefix; the
// receiver reads one line and parses it — matching the original source's
// `serde_json::to_string(&(idx, packet))` line-oriented framing.
type frame struct {
	Seq    uint32
	Packet *Packet
}

// MarshalJSON encodes the frame as a two-element JSON array.
func (f frame) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{f.Seq, f.Packet})
}

// UnmarshalJSON decodes a two-element JSON array into the frame.
func (f *frame) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &f.Seq); err != nil {
		return err
	}
	f.Packet = &Packet{}
	return json.Unmarshal(raw[1], f.Packet)
}

// encodeFrame serialises a (seq, packet) pair into one newline-terminated
// line, ready to be written to a connection.
func encodeFrame(seq uint32, p *Packet) ([]byte, error) {
	data, err := json.Marshal(frame{Seq: seq, Packet: p})
	if err != nil {
		return nil, fmt.Errorf("netpeer: failed to serialise packet: %w", err)
	}
	return append(data, '\n'), nil
}

// readFrame reads one line from r and parses it as a frame. An empty
// line (after trimming) is reported via ok=false with a nil error — the
// caller should log and continue, not treat it as a protocol violation.
func readFrame(r *bufio.Reader) (f frame, ok bool, err error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return frame{}, false, err
	}
	if strings.TrimSpace(line) == "" {
		return frame{}, false, nil
	}
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		return frame{}, false, fmt.Errorf("%w %q: %v", ErrMalformedFrame, strings.TrimSpace(line), err)
	}
	return f, true, nil
}
