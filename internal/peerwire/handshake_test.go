package peerwire_test

import (
	"bytes"
	"testing"

	"github.com/cenkalti/demagnetize/internal/infohash"
	"github.com/cenkalti/demagnetize/internal/peerwire"
)

func TestHandshakeRoundTrip(t *testing.T) {
	ih, err := infohash.FromBytes([]byte("k\xcb\xd4A\xd7\xa0\x88\xc6;\xa8\xf8\x82\xe3\x12\x91\xd3\x85\xa7\x96L"))
	if err != nil {
		t.Fatal(err)
	}
	blob := []byte("\x13BitTorrent protocol\x00\x00\x00\x00\x00\x10\x00\x05k\xcb\xd4A" +
		"\xd7\xa0\x88\xc6;\xa8\xf8\x82\xe3\x12\x91\xd3\x85\xa7\x96L-TR3000" +
		"-vfu1svh0ewb6")

	h, err := peerwire.ParseHandshake(blob)
	if err != nil {
		t.Fatalf("ParseHandshake: %v", err)
	}
	if h.InfoHash != ih {
		t.Errorf("InfoHash = %s, want %s", h.InfoHash, ih)
	}
	if !h.Extensions.BEP10() {
		t.Error("expected BEP10 bit set")
	}
	if !h.Extensions.Fast() {
		t.Error("expected Fast bit set")
	}
	if !h.Extensions.DHT() {
		t.Error("expected DHT bit set")
	}
	if string(h.PeerID[:]) != "-TR3000-vfu1svh0ewb6" {
		t.Errorf("PeerID = %q", h.PeerID)
	}

	out := h.Marshal()
	if !bytes.Equal(out, blob) {
		t.Errorf("Marshal round trip mismatch:\n got  %x\n want %x", out, blob)
	}
}

func TestParseHandshakeWrongLength(t *testing.T) {
	if _, err := peerwire.ParseHandshake([]byte("too short")); err == nil {
		t.Fatal("expected error for short blob")
	}
}

func TestParseHandshakeBadHeader(t *testing.T) {
	blob := make([]byte, peerwire.HandshakeLength)
	copy(blob, "\x13NotBitTorrent protoc")
	if _, err := peerwire.ParseHandshake(blob); err == nil {
		t.Fatal("expected error for bad protocol header")
	}
}
