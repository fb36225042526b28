package peerwire

import (
	"fmt"

	"github.com/cenkalti/demagnetize/internal/infohash"
)

// PeerError is raised for any handshake failure, protocol violation,
// invalid digest, or closed/timed-out connection while talking to one
// peer. It is always logged and swallowed by the caller -- one bad peer
// must not abort the magnet fetch.
type PeerError struct {
	Peer     string
	InfoHash infohash.InfoHash
	Msg      string
	Err      error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %s: %s (info hash %s)", e.Peer, e.Msg, e.InfoHash)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}

func newPeerError(peer string, ih infohash.InfoHash, msg string, err error) *PeerError {
	return &PeerError{Peer: peer, InfoHash: ih, Msg: msg, Err: err}
}
