package peerwire_test

import (
	"testing"

	"github.com/cenkalti/demagnetize/internal/peerwire"
)

func TestParseExtendedHandshake(t *testing.T) {
	payload := []byte("d12:complete_agoi1441e1:md11:lt_donthavei7e10:share_modei" +
		"8e11:upload_onlyi3e12:ut_holepunchi4e11:ut_metadatai2e6:u" +
		"t_pexi1ee13:metadata_sizei5436e4:reqqi500e11:upload_onlyi" +
		"1e1:v17:qBittorrent/4.3.66:yourip4:\x99\xa2D\x9be")

	h, err := peerwire.ParseExtendedHandshake(payload)
	if err != nil {
		t.Fatalf("ParseExtendedHandshake: %v", err)
	}
	if id, ok := h.UTMetadataID(); !ok || id != 2 {
		t.Errorf("UTMetadataID() = %d, %v, want 2, true", id, ok)
	}
	if !h.HasMetadataSize || h.MetadataSize != 5436 {
		t.Errorf("MetadataSize = %d, %v, want 5436, true", h.MetadataSize, h.HasMetadataSize)
	}
	if !h.HasV || h.V != "qBittorrent/4.3.6" {
		t.Errorf("V = %q, %v, want qBittorrent/4.3.6, true", h.V, h.HasV)
	}
}

func TestComposeExtendedHandshake(t *testing.T) {
	h := peerwire.ExtendedHandshake{
		M:               map[string]int64{"ut_metadata": 42},
		V:               "demagnetize",
		HasV:            true,
		MetadataSize:    100,
		HasMetadataSize: true,
	}
	out := h.Compose()
	back, err := peerwire.ParseExtendedHandshake(out)
	if err != nil {
		t.Fatalf("round trip parse: %v", err)
	}
	if id, ok := back.UTMetadataID(); !ok || id != 42 {
		t.Errorf("UTMetadataID() = %d, %v", id, ok)
	}
	if back.MetadataSize != 100 || !back.HasMetadataSize {
		t.Errorf("MetadataSize = %d, %v", back.MetadataSize, back.HasMetadataSize)
	}
	if back.V != "demagnetize" {
		t.Errorf("V = %q", back.V)
	}
}

func TestParseBEP9MessageRequest(t *testing.T) {
	payload := []byte("d8:msg_typei0e5:piecei0ee")
	m, err := peerwire.ParseBEP9Message(payload)
	if err != nil {
		t.Fatalf("ParseBEP9Message: %v", err)
	}
	if m.MsgType != peerwire.BEP9Request || m.Piece != 0 {
		t.Errorf("got %+v", m)
	}
}

func TestParseBEP9MessageData(t *testing.T) {
	payload := []byte("d8:msg_typei1e5:piecei0e10:total_sizei5436eed5:filesld6:l" +
		"engthi267661684e4:pathl72:...")
	m, err := peerwire.ParseBEP9Message(payload)
	if err != nil {
		t.Fatalf("ParseBEP9Message: %v", err)
	}
	if m.MsgType != peerwire.BEP9Data || m.Piece != 0 || !m.HasTotalSize || m.TotalSize != 5436 {
		t.Errorf("got %+v", m)
	}
	if len(m.Payload) == 0 {
		t.Error("expected trailing data payload")
	}
}

func TestBEP9MessageComposeRoundTrip(t *testing.T) {
	m := peerwire.BEP9Message{MsgType: peerwire.BEP9Data, Piece: 3, HasTotalSize: true, TotalSize: 9000, Payload: []byte("hello")}
	out := m.Compose()
	back, err := peerwire.ParseBEP9Message(out)
	if err != nil {
		t.Fatalf("ParseBEP9Message: %v", err)
	}
	if back.MsgType != m.MsgType || back.Piece != m.Piece || back.TotalSize != m.TotalSize || string(back.Payload) != "hello" {
		t.Errorf("got %+v", back)
	}
}

func TestParseBEP9MessageRejectsTrailingBytesOnRequest(t *testing.T) {
	payload := append([]byte("d8:msg_typei0e5:piecei0ee"), []byte("junk")...)
	if _, err := peerwire.ParseBEP9Message(payload); err == nil {
		t.Fatal("expected error for trailing bytes on a request message")
	}
}

func TestParseBEP9MessageRejectsMissingDataPayload(t *testing.T) {
	payload := []byte("d8:msg_typei1e5:piecei0ee")
	if _, err := peerwire.ParseBEP9Message(payload); err == nil {
		t.Fatal("expected error for data message with no trailing payload")
	}
}

func TestParseBEP9MessageUnknownMsgTypeIsNotAnError(t *testing.T) {
	payload := []byte("d8:msg_typei99e5:piecei0ee")
	m, err := peerwire.ParseBEP9Message(payload)
	if err != nil {
		t.Fatalf("ParseBEP9Message: unexpected error for unknown msg_type: %v", err)
	}
	if m.MsgType != peerwire.BEP9MsgType(99) || m.Piece != 0 {
		t.Errorf("got %+v, want MsgType=99, Piece=0", m)
	}
}
