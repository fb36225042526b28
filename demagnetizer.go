package demagnetize

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/cenkalti/demagnetize/internal/metainfo"
	"github.com/cenkalti/demagnetize/internal/tracker"
)

const peerIDAlnum = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// generatePeerID renders a 20-byte peer ID: prefix verbatim, padded with
// random alphanumeric characters to fill the remaining bytes.
func generatePeerID(prefix string) ([20]byte, error) {
	var id [20]byte
	n := copy(id[:], prefix)
	if n >= len(id) {
		return id, nil
	}
	buf := make([]byte, len(id)-n)
	if _, err := rand.Read(buf); err != nil {
		return id, fmt.Errorf("could not generate peer id: %w", err)
	}
	for i, b := range buf {
		id[n+i] = peerIDAlnum[int(b)%len(peerIDAlnum)]
	}
	return id, nil
}

// Demagnetizer is the single entry point a CLI or batch driver uses to
// turn one magnet into a complete torrent metainfo.
type Demagnetizer struct {
	Config *Config
}

// NewDemagnetizer constructs a Demagnetizer with cfg, or DefaultConfig
// if cfg is nil.
func NewDemagnetizer(cfg *Config) *Demagnetizer {
	if cfg == nil {
		c := DefaultConfig
		cfg = &c
	}
	tracker.ClientVersion = cfg.ClientVersion
	return &Demagnetizer{Config: cfg}
}

// Demagnetize fetches m's info dictionary from its trackers and peers,
// then composes a complete metainfo.MetaInfo from it.
func (d *Demagnetizer) Demagnetize(ctx context.Context, m Magnet) (*metainfo.MetaInfo, error) {
	mi, _, err := d.demagnetize(ctx, m, nil)
	return mi, err
}

// demagnetize is the shared implementation behind Demagnetize and Batch:
// it accepts seed peers from a peercache.Cache and reports back the peer
// that ultimately won, so a caller can record it for next time.
func (d *Demagnetizer) demagnetize(ctx context.Context, m Magnet, seeds []tracker.Peer) (*metainfo.MetaInfo, tracker.Peer, error) {
	if len(m.Trackers) == 0 {
		return nil, tracker.Peer{}, newDemagnetizeError(m.InfoHash, fmt.Errorf("magnet has no trackers"))
	}

	peerID, err := generatePeerID(d.Config.PeerIDPrefix)
	if err != nil {
		return nil, tracker.Peer{}, newDemagnetizeError(m.InfoHash, err)
	}

	session := newTorrentSession(d.Config, m.InfoHash, m.Trackers, peerID)
	rawInfo, winner, err := session.GetInfo(ctx, seeds)
	if err != nil {
		return nil, tracker.Peer{}, newDemagnetizeError(m.InfoHash, err)
	}

	mi, err := metainfo.Compose(rawInfo, m.Trackers, d.Config.ClientVersion, time.Now().Unix())
	if err != nil {
		return nil, tracker.Peer{}, newDemagnetizeError(m.InfoHash, err)
	}
	return mi, winner, nil
}
