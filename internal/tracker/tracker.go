// Package tracker implements the HTTP(S) and UDP tracker announce
// protocols, producing the peer lists a TorrentSession fans out to.
package tracker

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/demagnetize/internal/infohash"
)

// Timeouts and limits pinned to the reference implementation.
const (
	Timeout     = 30 * time.Second
	StopTimeout = 3 * time.Second
	NumWant     = 50
	Left        = 65535
)

// Event is the "event" announce parameter.
type Event int

const (
	EventNone Event = iota
	EventCompleted
	EventStarted
	EventStopped
)

// httpValue is the string sent in an HTTP announce's "event" parameter;
// the zero event omits the parameter entirely.
func (e Event) httpValue() string {
	switch e {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventCompleted:
		return "completed"
	default:
		return ""
	}
}

// udpValue encodes the event the way BEP 15 announce packets do:
// none=0, completed=1, started=2, stopped=3.
func (e Event) udpValue() int32 {
	switch e {
	case EventCompleted:
		return 1
	case EventStarted:
		return 2
	case EventStopped:
		return 3
	default:
		return 0
	}
}

// Peer is a peer address returned by a tracker. Equality and
// deduplication use (Host, Port) only; ID, when supplied, is advisory.
type Peer struct {
	Host string
	Port uint16
	ID   []byte
}

// Addr is the (host, port) pair used for deduplication.
type Addr struct {
	Host string
	Port uint16
}

func (p Peer) Addr() Addr {
	return Addr{Host: p.Host, Port: p.Port}
}

func (p Peer) String() string {
	if hasColon(p.Host) {
		return fmt.Sprintf("[%s]:%d", p.Host, p.Port)
	}
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

func hasColon(s string) bool {
	for _, c := range s {
		if c == ':' {
			return true
		}
	}
	return false
}

// DialAddr returns the host:port string suitable for net.Dial.
func (p Peer) DialAddr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// AnnounceResponse is the parsed result of a tracker announce.
type AnnounceResponse struct {
	Interval    time.Duration
	Peers       []Peer
	Warning     string
	MinInterval time.Duration
	TrackerID   string
	Complete    int
	Incomplete  int
	Leechers    int
	Seeders     int
}

// Tracker streams peers for a single info hash into sink, bounding its
// own lifetime and swallowing its own errors into the returned error
// value -- callers are expected to log and continue, never abort the
// whole session over one bad tracker.
type Tracker interface {
	GetPeers(ctx context.Context, ih infohash.InfoHash, peerID [20]byte, key infohash.Key, peerPort uint16, sink chan<- Peer) error
	String() string
}

// Error is raised for any transport, HTTP, UDP, or parse failure talking
// to a tracker. It carries enough context to log and classify.
type Error struct {
	TrackerURL string
	InfoHash   infohash.InfoHash
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error announcing to %s for %s: %s", e.TrackerURL, e.InfoHash, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(trackerURL string, ih infohash.InfoHash, msg string, err error) *Error {
	return &Error{TrackerURL: trackerURL, InfoHash: ih, Msg: msg, Err: err}
}

// Failure is raised when a tracker explicitly reports a failure (HTTP
// "failure reason" or UDP action=3).
type Failure struct {
	TrackerURL string
	Message    string
}

func (e *Failure) Error() string {
	return fmt.Sprintf("tracker %s replied with failure: %s", e.TrackerURL, e.Message)
}

// New constructs the appropriate Tracker implementation for a tracker
// URL's scheme (http, https, or udp).
func New(rawURL string) (Tracker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPTracker(u), nil
	case "udp":
		return NewUDPTracker(u)
	default:
		return nil, fmt.Errorf("unsupported tracker URL scheme %q", u.Scheme)
	}
}

func unpackPeers(data []byte) ([]Peer, error) {
	if len(data)%6 != 0 {
		return nil, fmt.Errorf("invalid compact peers list: length %d is not a multiple of 6", len(data))
	}
	peers := make([]Peer, 0, len(data)/6)
	for i := 0; i+6 <= len(data); i += 6 {
		ip := net.IP(data[i : i+4])
		port := uint16(data[i+4])<<8 | uint16(data[i+5])
		peers = append(peers, Peer{Host: ip.String(), Port: port})
	}
	return peers, nil
}

func unpackPeers6(data []byte) ([]Peer, error) {
	if len(data)%18 != 0 {
		return nil, fmt.Errorf("invalid compact peers6 list: length %d is not a multiple of 18", len(data))
	}
	peers := make([]Peer, 0, len(data)/18)
	for i := 0; i+18 <= len(data); i += 18 {
		ip := net.IP(data[i : i+16])
		port := uint16(data[i+16])<<8 | uint16(data[i+17])
		peers = append(peers, Peer{Host: ip.String(), Port: port})
	}
	return peers, nil
}
