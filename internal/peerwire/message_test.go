package peerwire_test

import (
	"bytes"
	"testing"

	"github.com/cenkalti/demagnetize/internal/peerwire"
)

func roundTrip(t *testing.T, msg *peerwire.Message, blob []byte) {
	t.Helper()
	var buf bytes.Buffer
	if err := peerwire.WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), blob) {
		t.Errorf("WriteMessage = %x, want %x", buf.Bytes(), blob)
	}
	got, err := peerwire.ReadMessage(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got == nil {
		t.Fatal("ReadMessage returned nil for non-keepalive frame")
	}
	if got.Type != msg.Type || got.Index != msg.Index || got.ExtendedID != msg.ExtendedID ||
		!bytes.Equal(got.Payload, msg.Payload) {
		t.Errorf("ReadMessage round trip = %+v, want %+v", got, msg)
	}
}

func TestMessageRoundTrips(t *testing.T) {
	roundTrip(t, &peerwire.Message{Type: peerwire.MsgHaveAll}, []byte("\x00\x00\x00\x01\x0e"))
	roundTrip(t, &peerwire.Message{Type: peerwire.MsgHaveNone}, []byte("\x00\x00\x00\x01\x0f"))

	extPayload := []byte("d12:complete_agoi1441e1:md11:lt_donthavei7e10:share_modei" +
		"8e11:upload_onlyi3e12:ut_holepunchi4e11:ut_metadatai2e6:u" +
		"t_pexi1ee13:metadata_sizei5436e4:reqqi500e11:upload_onlyi" +
		"1e1:v17:qBittorrent/4.3.66:yourip4:\x99\xa2D\x9be")
	extBlob := append([]byte("\x00\x00\x00\xd5\x14\x00"), extPayload...)
	roundTrip(t, &peerwire.Message{Type: peerwire.MsgExtended, ExtendedID: 0, Payload: extPayload}, extBlob)
}

func TestReadMessageKeepalive(t *testing.T) {
	msg, err := peerwire.ReadMessage(bytes.NewReader([]byte{0, 0, 0, 0}))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil for keepalive, got %+v", msg)
	}
}

func TestWriteMessageKeepalive(t *testing.T) {
	var buf bytes.Buffer
	if err := peerwire.WriteMessage(&buf, nil); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0, 0, 0, 0}) {
		t.Errorf("WriteMessage(nil) = %x", buf.Bytes())
	}
}

func TestReadMessageOverlyLarge(t *testing.T) {
	var lenBuf [4]byte
	lenBuf[0] = 0xff // absurdly large length prefix
	if _, err := peerwire.ReadMessage(bytes.NewReader(lenBuf[:])); err == nil {
		t.Fatal("expected error for oversized message")
	}
}
