// Package infohash provides the InfoHash and Key identifiers used
// throughout the tracker and peer-wire protocols.
package infohash

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// InfoHash is the SHA-1 digest of a torrent's bencoded info dictionary.
type InfoHash [20]byte

// Parse accepts a 40-character hex string or a 32-character base32 string,
// the two textual forms a magnet URI's "xt" parameter may use.
func Parse(s string) (InfoHash, error) {
	var ih InfoHash
	switch len(s) {
	case 40:
		b, err := hex.DecodeString(s)
		if err != nil {
			return ih, fmt.Errorf("invalid info hash %q: %w", s, err)
		}
		copy(ih[:], b)
		return ih, nil
	case 32:
		b, err := base32.StdEncoding.DecodeString(s)
		if err != nil {
			return ih, fmt.Errorf("invalid info hash %q: %w", s, err)
		}
		if len(b) != 20 {
			return ih, fmt.Errorf("invalid info hash %q: decodes to %d bytes", s, len(b))
		}
		copy(ih[:], b)
		return ih, nil
	default:
		return ih, fmt.Errorf("invalid info hash %q: expected 40 hex or 32 base32 characters", s)
	}
}

// FromBytes validates and wraps a 20-byte digest.
func FromBytes(b []byte) (InfoHash, error) {
	var ih InfoHash
	if len(b) != 20 {
		return ih, fmt.Errorf("invalid info hash: expected 20 bytes, got %d", len(b))
	}
	copy(ih[:], b)
	return ih, nil
}

func (ih InfoHash) String() string {
	return hex.EncodeToString(ih[:])
}

// Bytes returns the raw 20-byte digest.
func (ih InfoHash) Bytes() []byte {
	return ih[:]
}

// Key is a per-process 32-bit value sent verbatim to trackers so they can
// correlate announces from a client behind NAT.
type Key uint32

// GenerateKey samples a fresh random Key.
func GenerateKey() Key {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("infohash: failed to read random bytes: " + err.Error())
	}
	return Key(binary.BigEndian.Uint32(b[:]))
}

func (k Key) String() string {
	return fmt.Sprintf("%08x", uint32(k))
}

// Bytes renders the key as the 4 big-endian bytes the UDP tracker
// protocol expects.
func (k Key) Bytes() []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(k))
	return b[:]
}
