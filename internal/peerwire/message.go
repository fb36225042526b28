package peerwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType is the single-byte type field of a framed peer message.
type MessageType byte

const (
	MsgChoke         MessageType = 0
	MsgUnchoke       MessageType = 1
	MsgInterested    MessageType = 2
	MsgNotInterested MessageType = 3
	MsgHave          MessageType = 4
	MsgBitfield      MessageType = 5
	MsgRequest       MessageType = 6
	MsgPiece         MessageType = 7
	MsgCancel        MessageType = 8
	MsgSuggestPiece  MessageType = 0x0D
	MsgHaveAll       MessageType = 0x0E
	MsgHaveNone      MessageType = 0x0F
	MsgReject        MessageType = 0x10
	MsgAllowedFast   MessageType = 0x11
	MsgExtended      MessageType = 20
)

// MaxMessageLength is the largest length prefix this client will trust;
// anything larger is treated as a hostile or broken peer.
const MaxMessageLength = 65535

// Message is a single framed peer-wire message (or nil for a keepalive).
// Only the fields relevant to Type are populated; the rest are zero.
type Message struct {
	Type       MessageType
	Index      uint32
	Begin      uint32
	Length     uint32
	ExtendedID byte
	Payload    []byte // bitfield bits, piece/extended payload bytes
}

func (m Message) String() string {
	switch m.Type {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not interested"
	case MsgHave:
		return fmt.Sprintf("have piece %d", m.Index)
	case MsgBitfield:
		return fmt.Sprintf("bitfield (%d bytes)", len(m.Payload))
	case MsgRequest:
		return fmt.Sprintf("request piece %d, offset %d, length %d", m.Index, m.Begin, m.Length)
	case MsgPiece:
		return fmt.Sprintf("piece %d, offset %d, length %d", m.Index, m.Begin, len(m.Payload))
	case MsgCancel:
		return fmt.Sprintf("cancel piece %d, offset %d, length %d", m.Index, m.Begin, m.Length)
	case MsgSuggestPiece:
		return fmt.Sprintf("suggest piece %d", m.Index)
	case MsgHaveAll:
		return "have all"
	case MsgHaveNone:
		return "have none"
	case MsgReject:
		return fmt.Sprintf("reject piece %d, offset %d, length %d", m.Index, m.Begin, m.Length)
	case MsgAllowedFast:
		return fmt.Sprintf("allowed fast piece %d", m.Index)
	case MsgExtended:
		return fmt.Sprintf("extended message, ID %d", m.ExtendedID)
	default:
		return fmt.Sprintf("unknown message type %d", m.Type)
	}
}

// WriteMessage frames and writes msg. A nil msg writes a keepalive
// (a bare zero length prefix).
func WriteMessage(w io.Writer, msg *Message) error {
	if msg == nil {
		_, err := w.Write([]byte{0, 0, 0, 0})
		return err
	}
	payload := encodePayload(msg)
	length := 1 + len(payload)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], uint32(length))
	buf[4] = byte(msg.Type)
	copy(buf[5:], payload)
	_, err := w.Write(buf)
	return err
}

func encodePayload(msg *Message) []byte {
	switch msg.Type {
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested, MsgHaveAll, MsgHaveNone:
		return nil
	case MsgHave, MsgSuggestPiece, MsgAllowedFast:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, msg.Index)
		return buf
	case MsgBitfield:
		return msg.Payload
	case MsgRequest, MsgCancel, MsgReject:
		buf := make([]byte, 12)
		binary.BigEndian.PutUint32(buf[0:4], msg.Index)
		binary.BigEndian.PutUint32(buf[4:8], msg.Begin)
		binary.BigEndian.PutUint32(buf[8:12], msg.Length)
		return buf
	case MsgPiece:
		buf := make([]byte, 8+len(msg.Payload))
		binary.BigEndian.PutUint32(buf[0:4], msg.Index)
		binary.BigEndian.PutUint32(buf[4:8], msg.Begin)
		copy(buf[8:], msg.Payload)
		return buf
	case MsgExtended:
		buf := make([]byte, 1+len(msg.Payload))
		buf[0] = msg.ExtendedID
		copy(buf[1:], msg.Payload)
		return buf
	default:
		return msg.Payload
	}
}

// ReadMessage reads one length-prefixed frame, returning (nil, nil) for
// a keepalive.
func ReadMessage(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, nil
	}
	if length > MaxMessageLength {
		return nil, fmt.Errorf("peer sent overly large message of %d bytes", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decodeMessage(MessageType(body[0]), body[1:])
}

func decodeMessage(t MessageType, payload []byte) (*Message, error) {
	switch t {
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested, MsgHaveAll, MsgHaveNone:
		return &Message{Type: t}, nil
	case MsgHave, MsgSuggestPiece, MsgAllowedFast:
		if len(payload) != 4 {
			return nil, fmt.Errorf("invalid length for message type %d: expected 4 bytes, got %d", t, len(payload))
		}
		return &Message{Type: t, Index: binary.BigEndian.Uint32(payload)}, nil
	case MsgBitfield:
		return &Message{Type: t, Payload: payload}, nil
	case MsgRequest, MsgCancel, MsgReject:
		if len(payload) != 12 {
			return nil, fmt.Errorf("invalid length for message type %d: expected 12 bytes, got %d", t, len(payload))
		}
		return &Message{
			Type:   t,
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case MsgPiece:
		if len(payload) < 8 {
			return nil, fmt.Errorf("invalid length for piece message: expected 8+ bytes, got %d", len(payload))
		}
		return &Message{
			Type:    t,
			Index:   binary.BigEndian.Uint32(payload[0:4]),
			Begin:   binary.BigEndian.Uint32(payload[4:8]),
			Payload: payload[8:],
		}, nil
	case MsgExtended:
		if len(payload) < 1 {
			return nil, fmt.Errorf("invalid length for extended message: expected 1+ bytes, got %d", len(payload))
		}
		return &Message{Type: t, ExtendedID: payload[0], Payload: payload[1:]}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %d", t)
	}
}

// ignorable reports whether a message can be silently skipped while
// waiting for a specific reply (the extended handshake, or a ut_metadata
// data/reject response) -- mirrors the set of message types a metadata-only
// fetch has no use for but must still tolerate from a chatty peer.
func ignorable(msg *Message) bool {
	if msg == nil {
		return true // keepalive
	}
	switch msg.Type {
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested,
		MsgHave, MsgHaveAll, MsgHaveNone, MsgBitfield, MsgPiece,
		MsgAllowedFast, MsgSuggestPiece:
		return true
	default:
		return false
	}
}
