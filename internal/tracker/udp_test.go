package tracker

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/cenkalti/demagnetize/internal/infohash"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex fixture: %s", err)
	}
	return b
}

func TestBuildConnectionRequest(t *testing.T) {
	got := buildConnectionRequest(0x5C310D73)
	want := mustHex(t, "0000041727101980000000005c310d73")
	if string(got) != string(want) {
		t.Errorf("buildConnectionRequest = %x, want %x", got, want)
	}
}

func TestParseConnectionResponse(t *testing.T) {
	resp := mustHex(t, "000000005c310d735ccbdfdb157c25ba")
	val, retry, err := parseConnectionResponse(resp, 0x5C310D73)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if retry {
		t.Fatal("unexpected retry")
	}
	if got := val.(int64); got != 0x5CCBDFDB157C25BA {
		t.Errorf("connection id = %#x, want %#x", got, int64(0x5CCBDFDB157C25BA))
	}
}

func TestBuildAnnounceRequest(t *testing.T) {
	ih, err := infohash.Parse("4c3e215f9e50b06d708a74c9b0e66e08bce520aa")
	if err != nil {
		t.Fatalf("infohash.Parse: %s", err)
	}
	var peerID [20]byte
	copy(peerID[:], "-TR3000-12nig788rk3b")
	key := infohash.Key(0x2C545EDE)

	got := buildAnnounceRequest(int64(0x5CCBDFDB157C25BA), int32(-1523061017) /* 0xa537eee7 */, ih, peerID, key, 60069, EventStarted)
	if len(got) != 98 {
		t.Fatalf("buildAnnounceRequest length = %d, want 98", len(got))
	}
	if string(got[0:8]) != string(mustHex(t, "5ccbdfdb157c25ba")) {
		t.Errorf("connection_id field = %x", got[0:8])
	}
	if string(got[8:12]) != string(mustHex(t, "00000001")) {
		t.Errorf("action field = %x, want action=1", got[8:12])
	}
	if string(got[12:16]) != string(mustHex(t, "a537eee7")) {
		t.Errorf("transaction_id field = %x", got[12:16])
	}
	if string(got[16:36]) != string(ih.Bytes()) {
		t.Errorf("info_hash field = %x", got[16:36])
	}
	if string(got[36:56]) != string(peerID[:]) {
		t.Errorf("peer_id field = %q", got[36:56])
	}
	if string(got[88:92]) != string(mustHex(t, "2c545ede")) {
		t.Errorf("key field = %x", got[88:92])
	}
	if string(got[96:98]) != string(mustHex(t, "eaa5")) {
		t.Errorf("port field = %x, want eaa5 (60069)", got[96:98])
	}
}

func TestParseAnnounceResponse(t *testing.T) {
	resp := mustHex(t, "00000001a537eee700000708000000030000001a175172ebc92cbf65fee06007b915d89509849a1572648ffed598bbeb48dab29b8ba888b7c34e36d37fa4ac62474e56e1b07fe6c629aad46625baca7fa0b2bccb1ae1b915d8868016330f68ca384c5d2392d443422ef603cde3aab915d94de10656605ce5c8d55106279bc8d5b94187b1e7b74e8917164dfcc113ce2f1ae1b9260ebfc6345ff56cfde177b999b33cf23057f98613d8b29a0d0187c8d5b99f9e39821a8ac737259753")
	val, retry, err := parseUDPAnnounceResponse(resp, int32(-1523061017) /* 0xa537eee7 */, false)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if retry {
		t.Fatal("unexpected retry")
	}
	ar := val.(*AnnounceResponse)
	if ar.Interval != 1800*time.Second {
		t.Errorf("Interval = %s, want 1800s", ar.Interval)
	}
	if ar.Leechers != 3 {
		t.Errorf("Leechers = %d, want 3", ar.Leechers)
	}
	if ar.Seeders != 26 {
		t.Errorf("Seeders = %d, want 26", ar.Seeders)
	}
	if len(ar.Peers) != 28 {
		t.Fatalf("len(Peers) = %d, want 28", len(ar.Peers))
	}
	if first := ar.Peers[0]; first.Host != "23.81.114.235" || first.Port != 51500 {
		t.Errorf("first peer = %s:%d, want 23.81.114.235:51500", first.Host, first.Port)
	}
	if last := ar.Peers[27]; last.Host != "138.199.55.37" || last.Port != 38739 {
		t.Errorf("last peer = %s:%d, want 138.199.55.37:38739", last.Host, last.Port)
	}
}

func TestParseAnnounceResponseNoPeers(t *testing.T) {
	resp := mustHex(t, "00000001ca15467a00000708000000020000001a")
	val, retry, err := parseUDPAnnounceResponse(resp, int32(int64(-904575366)), false)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if retry {
		t.Fatal("unexpected retry")
	}
	ar := val.(*AnnounceResponse)
	if ar.Interval != 1800*time.Second || ar.Leechers != 2 || ar.Seeders != 26 || len(ar.Peers) != 0 {
		t.Errorf("unexpected response: %+v", ar)
	}
}

func TestParseAnnounceResponseFailure(t *testing.T) {
	resp := mustHex(t, "00000003000000017472795f616761696e5f6c61746572")
	_, _, err := parseUDPAnnounceResponse(resp, 1, false)
	if err == nil {
		t.Fatal("expected a Failure error")
	}
	fail, ok := err.(*Failure)
	if !ok {
		t.Fatalf("error is %T, want *Failure", err)
	}
	if fail.Message != "try_again_later" {
		t.Errorf("Message = %q", fail.Message)
	}
}

func TestParseResponseRetriesOnTransactionIDMismatch(t *testing.T) {
	resp := mustHex(t, "000000005c310d745ccbdfdb157c25ba")
	_, retry, err := parseConnectionResponse(resp, 0x5C310D73)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !retry {
		t.Fatal("expected retry on transaction ID mismatch")
	}
}

func TestBackoffSchedule(t *testing.T) {
	want := []time.Duration{
		15 * time.Second,
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
		960 * time.Second,
		1920 * time.Second,
		3840 * time.Second,
		3840 * time.Second, // n is clamped at 8, so further retries don't grow
	}
	n := 0
	for i, w := range want {
		if got := backoff(n); got != w {
			t.Errorf("backoff(%d) = %s, want %s", n, got, w)
		}
		if n < maxBackoffStep {
			n++
		}
		_ = i
	}
}
