package peerwire

import (
	"fmt"

	"github.com/cenkalti/demagnetize/internal/infohash"
)

const handshakeHeader = "\x13BitTorrent protocol"

// HandshakeLength is the fixed size of the wire handshake: a 20-byte
// header, 8 reserved bytes, a 20-byte info hash, and a 20-byte peer ID.
const HandshakeLength = len(handshakeHeader) + 8 + 20 + 20

// Handshake is the fixed-length message every peer connection opens
// with, before any length-prefixed message framing begins.
type Handshake struct {
	Extensions Extensions
	InfoHash   infohash.InfoHash
	PeerID     [20]byte
}

// Marshal renders the handshake's 68-byte wire form.
func (h Handshake) Marshal() []byte {
	buf := make([]byte, 0, HandshakeLength)
	buf = append(buf, handshakeHeader...)
	buf = append(buf, h.Extensions[:]...)
	buf = append(buf, h.InfoHash.Bytes()...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// ParseHandshake validates and decodes a received handshake.
func ParseHandshake(blob []byte) (Handshake, error) {
	var h Handshake
	if len(blob) != HandshakeLength {
		return h, fmt.Errorf("handshake wrong length: got %d, expected %d", len(blob), HandshakeLength)
	}
	if string(blob[:len(handshakeHeader)]) != handshakeHeader {
		return h, fmt.Errorf("handshake had invalid protocol declaration")
	}
	offset := len(handshakeHeader)
	copy(h.Extensions[:], blob[offset:offset+8])
	offset += 8
	ih, err := infohash.FromBytes(blob[offset : offset+20])
	if err != nil {
		return h, err
	}
	h.InfoHash = ih
	offset += 20
	copy(h.PeerID[:], blob[offset:offset+20])
	return h, nil
}
