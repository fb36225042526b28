package peerwire

import (
	"fmt"

	"github.com/cenkalti/demagnetize/internal/bencode"
)

// ExtendedHandshake is the BEP 10 "m"-dictionary handshake sent as the
// payload of an Extended message with ID 0.
type ExtendedHandshake struct {
	// M maps a BEP 10 extension name (e.g. "ut_metadata") to the message
	// ID its sender has assigned it locally.
	M               map[string]int64
	V               string
	HasV            bool
	MetadataSize    int64
	HasMetadataSize bool
}

// UTMetadataID returns the remote peer's assigned message ID for the
// ut_metadata extension, if it advertised one.
func (h ExtendedHandshake) UTMetadataID() (int64, bool) {
	id, ok := h.M["ut_metadata"]
	return id, ok
}

// Compose renders the handshake as a bencoded dict, the payload of an
// Extended message with ExtendedID 0.
func (h ExtendedHandshake) Compose() []byte {
	mDict := make(map[string]any, len(h.M))
	for k, v := range h.M {
		mDict[k] = v
	}
	data := map[string]any{"m": mDict}
	if h.HasV {
		data["v"] = h.V
	}
	if h.HasMetadataSize {
		data["metadata_size"] = h.MetadataSize
	}
	out, err := bencode.Marshal(data)
	if err != nil {
		// Every field above is a supported Marshal type; a failure here
		// would be a bug in this function, not bad input.
		panic("peerwire: failed to bencode extended handshake: " + err.Error())
	}
	return out
}

// ParseExtendedHandshake decodes the payload of an Extended message with
// ExtendedID 0.
func ParseExtendedHandshake(payload []byte) (ExtendedHandshake, error) {
	var h ExtendedHandshake
	decoded, err := bencode.Unmarshal(payload)
	if err != nil {
		return h, fmt.Errorf("invalid bencoded data: %w", err)
	}
	data, ok := decoded.(map[string]any)
	if !ok {
		return h, fmt.Errorf("extended handshake is not a dict")
	}
	mRaw, ok := data["m"].(map[string]any)
	if !ok {
		return h, fmt.Errorf("extended handshake missing 'm' dictionary")
	}
	h.M = make(map[string]int64, len(mRaw))
	for k, v := range mRaw {
		id, ok := v.(int64)
		if !ok {
			continue
		}
		h.M[k] = id
	}
	if v, ok := data["v"].([]byte); ok {
		h.V = string(v)
		h.HasV = true
	}
	if size, ok := data["metadata_size"].(int64); ok {
		h.MetadataSize = size
		h.HasMetadataSize = true
	}
	return h, nil
}

// BEP9Message is a ut_metadata extension message (request, data, or
// reject), the payload of an Extended message whose ExtendedID matches
// the negotiated ut_metadata ID.
type BEP9Message struct {
	MsgType      BEP9MsgType
	Piece        int64
	TotalSize    int64
	HasTotalSize bool
	Payload      []byte // trailing bytes: the piece data for BEP9Data, kept as-is for unknown types
}

// Compose renders the message's bencoded header, followed by Payload
// verbatim for a data message (BEP 9's trailing raw bytes).
func (m BEP9Message) Compose() []byte {
	data := map[string]any{
		"msg_type": int64(m.MsgType),
		"piece":    m.Piece,
	}
	if m.HasTotalSize {
		data["total_size"] = m.TotalSize
	}
	header, err := bencode.Marshal(data)
	if err != nil {
		panic("peerwire: failed to bencode ut_metadata message: " + err.Error())
	}
	if m.MsgType != BEP9Data {
		return header
	}
	out := make([]byte, len(header)+len(m.Payload))
	copy(out, header)
	copy(out[len(header):], m.Payload)
	return out
}

// ParseBEP9Message decodes a ut_metadata extension message. A data
// message must have trailing bytes after its bencoded header (the piece
// payload); request and reject messages must not. A message with an
// unknown msg_type is accepted with any trailing bytes in Payload.
func ParseBEP9Message(payload []byte) (BEP9Message, error) {
	var m BEP9Message
	decoded, trailing, err := bencode.UnmarshalPartial(payload)
	if err != nil {
		return m, fmt.Errorf("ut_metadata message does not start with valid bencode: %w", err)
	}
	data, ok := decoded.(map[string]any)
	if !ok {
		return m, fmt.Errorf("ut_metadata message does not start with a dict")
	}
	mt, ok := data["msg_type"].(int64)
	if !ok {
		return m, fmt.Errorf("ut_metadata message lacks valid 'msg_type' field")
	}
	// An unknown msg_type is not a parse error: the caller is expected to
	// inspect MsgType and ignore anything it doesn't recognize.
	m.MsgType = BEP9MsgType(mt)
	piece, ok := data["piece"].(int64)
	if !ok {
		return m, fmt.Errorf("ut_metadata message lacks valid 'piece' field")
	}
	m.Piece = piece
	if ts, ok := data["total_size"].(int64); ok {
		m.TotalSize = ts
		m.HasTotalSize = true
	}
	switch m.MsgType {
	case BEP9Data:
		if len(trailing) == 0 {
			return m, fmt.Errorf("ut_metadata data message lacks trailing data")
		}
		m.Payload = trailing
	case BEP9Request, BEP9Reject:
		if len(trailing) != 0 {
			return m, fmt.Errorf("non-data ut_metadata message has trailing bytes")
		}
	default:
		// Unknown msg_type: trailing bytes, if any, are not ours to
		// interpret; keep them in case a future extension wants them.
		m.Payload = trailing
	}
	return m, nil
}
