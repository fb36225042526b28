package tracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/demagnetize/internal/bencode"
	"github.com/cenkalti/demagnetize/internal/infohash"
	"github.com/cenkalti/demagnetize/internal/logger"
)

// ClientVersion is sent as the HTTP User-Agent for every announce and, by
// package peerwire, as the "v" field of the BEP 10 extended handshake. The
// root package overrides this from Config before any tracker is used.
var ClientVersion = "demagnetize"

const maxHTTPResponseBytes = 2 << 20 // 2 MiB; a tracker response this size is already pathological.

// HTTPTracker announces over the HTTP(S) tracker protocol.
type HTTPTracker struct {
	url *url.URL
	log *logger.Logger
}

// NewHTTPTracker wraps an http:// or https:// tracker URL.
func NewHTTPTracker(u *url.URL) *HTTPTracker {
	return &HTTPTracker{url: u, log: logger.New("tracker " + u.String())}
}

func (t *HTTPTracker) String() string {
	return t.url.String()
}

// GetPeers performs a "started" announce, streams the resulting peers
// into sink, and on success fires a best-effort "stopped" announce under
// a cancellation-shielded timeout.
func (t *HTTPTracker) GetPeers(ctx context.Context, ih infohash.InfoHash, peerID [20]byte, key infohash.Key, peerPort uint16, sink chan<- Peer) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	resp, err := t.announce(ctx, ih, peerID, key, peerPort, EventStarted)
	if err != nil {
		return err
	}
	if resp.Warning != "" {
		t.log.Warningln("tracker returned warning:", resp.Warning)
	}
	for _, p := range resp.Peers {
		select {
		case sink <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), StopTimeout)
	defer stopCancel()
	if _, err := t.announce(stopCtx, ih, peerID, key, peerPort, EventStopped); err != nil {
		t.log.Debugln("courtesy stopped announce failed:", err)
	}
	return nil
}

func (t *HTTPTracker) announce(ctx context.Context, ih infohash.InfoHash, peerID [20]byte, key infohash.Key, peerPort uint16, event Event) (*AnnounceResponse, error) {
	target := t.buildURL(ih, peerID, key, peerPort, event)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, newError(t.url.String(), ih, err.Error(), err)
	}
	req.Header.Set("User-Agent", ClientVersion)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, newError(t.url.String(), ih, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newError(t.url.String(), ih, fmt.Sprintf("request to tracker returned %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBytes))
	if err != nil {
		return nil, newError(t.url.String(), ih, fmt.Sprintf("reading response body: %s", err), err)
	}
	parsed, err := parseAnnounceResponse(body)
	if err != nil {
		if fail, ok := err.(*Failure); ok {
			fail.TrackerURL = t.url.String()
			return nil, fail
		}
		return nil, newError(t.url.String(), ih, fmt.Sprintf("bad response: %s", err), err)
	}
	return parsed, nil
}

// buildURL appends announce parameters to the tracker URL's existing
// query string, stripping any fragment. info_hash and peer_id are
// percent-encoded as raw bytes; every other parameter is plain ASCII.
func (t *HTTPTracker) buildURL(ih infohash.InfoHash, peerID [20]byte, key infohash.Key, peerPort uint16, event Event) string {
	u := *t.url
	u.Fragment = ""

	params := fmt.Sprintf(
		"info_hash=%s&peer_id=%s&port=%d&uploaded=0&downloaded=0&left=%d&numwant=%d&key=%s&compact=1",
		percentEncodeBytes(ih.Bytes()),
		percentEncodeBytes(peerID[:]),
		peerPort,
		Left,
		NumWant,
		key,
	)
	if ev := event.httpValue(); ev != "" {
		params += "&event=" + ev
	}
	if u.RawQuery != "" {
		return u.String() + "&" + params
	}
	return u.String() + "?" + params
}

// percentEncodeBytes percent-encodes raw bytes the way url.QueryEscape
// does for strings, without first requiring valid UTF-8 -- info hashes
// and peer IDs are arbitrary 20-byte blobs.
func percentEncodeBytes(b []byte) string {
	const hexDigits = "0123456789ABCDEF"
	var sb strings.Builder
	for _, c := range b {
		if isUnreserved(c) {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0xF])
		}
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func parseAnnounceResponse(body []byte) (*AnnounceResponse, error) {
	decoded, err := bencode.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("invalid bencoded data: %w", err)
	}
	dict, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response is not a dict")
	}
	if reason, ok := dict["failure reason"]; ok {
		return nil, &Failure{Message: stringify(reason)}
	}

	interval := 1800
	if iv, ok := dict["interval"].(int64); ok {
		interval = int(iv)
	}

	resp := &AnnounceResponse{Interval: secondsToDuration(interval)}
	if warn, ok := dict["warning message"].([]byte); ok {
		resp.Warning = string(warn)
	}
	if mi, ok := dict["min interval"].(int64); ok {
		resp.MinInterval = secondsToDuration(int(mi))
	}
	if tid, ok := dict["tracker id"].([]byte); ok {
		resp.TrackerID = string(tid)
	}
	if c, ok := dict["complete"].(int64); ok {
		resp.Complete = int(c)
		resp.Seeders = int(c)
	}
	if ic, ok := dict["incomplete"].(int64); ok {
		resp.Incomplete = int(ic)
		resp.Leechers = int(ic)
	}

	if raw, ok := dict["peers"]; ok {
		switch v := raw.(type) {
		case []byte:
			peers, err := unpackPeers(v)
			if err != nil {
				return nil, err
			}
			resp.Peers = append(resp.Peers, peers...)
		case []any:
			for _, item := range v {
				pd, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("invalid 'peers' list")
				}
				ipBytes, ok := pd["ip"].([]byte)
				if !ok {
					return nil, fmt.Errorf("invalid 'peers' list entry: missing ip")
				}
				portVal, ok := pd["port"].(int64)
				if !ok {
					return nil, fmt.Errorf("invalid 'peers' list entry: missing port")
				}
				p := Peer{Host: string(ipBytes), Port: uint16(portVal)}
				if id, ok := pd["peer id"].([]byte); ok {
					p.ID = id
				}
				resp.Peers = append(resp.Peers, p)
			}
		default:
			return nil, fmt.Errorf("invalid 'peers' field type %T", raw)
		}
	}
	if raw, ok := dict["peers6"]; ok {
		v, ok := raw.([]byte)
		if !ok {
			return nil, fmt.Errorf("invalid 'peers6' field type %T", raw)
		}
		peers6, err := unpackPeers6(v)
		if err != nil {
			return nil, err
		}
		resp.Peers = append(resp.Peers, peers6...)
	}
	return resp, nil
}

func stringify(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
