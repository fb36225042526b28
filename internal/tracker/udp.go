package tracker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/demagnetize/internal/infohash"
	"github.com/cenkalti/demagnetize/internal/logger"
)

// See <https://www.bittorrent.org/beps/bep_0015.html>.
const protocolID uint64 = 0x41727101980

const connectionLifetime = 60 * time.Second

// maxBackoffStep caps the 15*2^n retransmission schedule at n=8, i.e. a
// maximum 3840s wait between resends.
const maxBackoffStep = 8

var errConnectionExpired = errors.New("udp tracker connection expired mid-retransmission")

// UDPTracker announces over the BEP 15 UDP tracker protocol.
type UDPTracker struct {
	url  *url.URL
	host string
	port string
	log  *logger.Logger
}

// NewUDPTracker wraps a udp:// tracker URL.
func NewUDPTracker(u *url.URL) (*UDPTracker, error) {
	if u.Hostname() == "" {
		return nil, fmt.Errorf("udp tracker URL %q is missing a host", u.String())
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("udp tracker URL %q is missing a port", u.String())
	}
	return &UDPTracker{url: u, host: u.Hostname(), port: u.Port(), log: logger.New("tracker " + u.String())}, nil
}

func (t *UDPTracker) String() string {
	return t.url.String()
}

// GetPeers opens a UDP socket to the tracker, connects, announces, and
// streams the returned peers into sink. On success it makes a
// best-effort "stopped" announce over the same connection under a
// cancellation-shielded timeout.
func (t *UDPTracker) GetPeers(ctx context.Context, ih infohash.InfoHash, peerID [20]byte, key infohash.Key, peerPort uint16, sink chan<- Peer) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(t.host, t.port))
	if err != nil {
		return newError(t.url.String(), ih, fmt.Sprintf("dialing: %s", err), err)
	}
	defer conn.Close()

	sess := &udpTrackerSession{tracker: t, conn: conn, isIPv6: isIPv6Addr(conn.RemoteAddr())}

	resp, err := sess.announce(ctx, ih, peerID, key, peerPort, EventStarted)
	if err != nil {
		if fail, ok := err.(*Failure); ok {
			fail.TrackerURL = t.url.String()
			return fail
		}
		return newError(t.url.String(), ih, err.Error(), err)
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
	if _, err := sess.announce(stopCtx, ih, peerID, key, peerPort, EventStopped); err != nil {
		t.log.Debugln("courtesy stopped announce failed:", err)
	}
	return nil
}

func isIPv6Addr(addr net.Addr) bool {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return false
	}
	return udpAddr.IP.To4() == nil
}

type udpConnection struct {
	id        int64
	expiresAt time.Time
}

type udpTrackerSession struct {
	tracker    *UDPTracker
	conn       net.Conn
	isIPv6     bool
	connection *udpConnection
}

func (s *udpTrackerSession) getConnection(ctx context.Context) (*udpConnection, error) {
	if s.connection != nil && time.Now().Before(s.connection.expiresAt) {
		return s.connection, nil
	}
	txID, err := randomTransactionID()
	if err != nil {
		return nil, err
	}
	req := buildConnectionRequest(txID)
	val, err := s.sendReceive(ctx, req, time.Time{}, func(resp []byte) (any, bool, error) {
		return parseConnectionResponse(resp, txID)
	})
	if err != nil {
		return nil, err
	}
	s.connection = &udpConnection{id: val.(int64), expiresAt: time.Now().Add(connectionLifetime)}
	return s.connection, nil
}

// announce connects (if needed) and announces, transparently reconnecting
// whenever the connection expires mid-retransmission.
func (s *udpTrackerSession) announce(ctx context.Context, ih infohash.InfoHash, peerID [20]byte, key infohash.Key, peerPort uint16, event Event) (*AnnounceResponse, error) {
	for {
		conn, err := s.getConnection(ctx)
		if err != nil {
			return nil, err
		}
		txID, err := randomTransactionID()
		if err != nil {
			return nil, err
		}
		req := buildAnnounceRequest(conn.id, txID, ih, peerID, key, peerPort, event)
		val, err := s.sendReceive(ctx, req, conn.expiresAt, func(resp []byte) (any, bool, error) {
			return parseUDPAnnounceResponse(resp, txID, s.isIPv6)
		})
		if err != nil {
			if errors.Is(err, errConnectionExpired) {
				s.connection = nil
				continue
			}
			return nil, err
		}
		return val.(*AnnounceResponse), nil
	}
}

// sendReceive implements the retransmission loop common to connect and
// announce requests: send msg, wait up to 15*2^n seconds for a response
// (n capped at 8), and resend on timeout. A malformed response or one
// with a mismatched transaction ID is silently discarded and the wait
// resumes without incrementing n. If hardDeadline is non-zero, the whole
// loop aborts with errConnectionExpired once it passes -- this bounds an
// announce to the lifetime of the connection it was sent over.
func (s *udpTrackerSession) sendReceive(ctx context.Context, msg []byte, hardDeadline time.Time, parse func([]byte) (any, bool, error)) (any, error) {
	n := 0
	buf := make([]byte, 2048)
	resend := true
	for {
		if !hardDeadline.IsZero() && !time.Now().Before(hardDeadline) {
			return nil, errConnectionExpired
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if resend {
			if _, err := s.conn.Write(msg); err != nil {
				return nil, err
			}

			readDeadline := time.Now().Add(backoff(n))
			if d, ok := ctx.Deadline(); ok && d.Before(readDeadline) {
				readDeadline = d
			}
			if !hardDeadline.IsZero() && hardDeadline.Before(readDeadline) {
				readDeadline = hardDeadline
			}
			if err := s.conn.SetReadDeadline(readDeadline); err != nil {
				return nil, err
			}
		}

		nRead, err := s.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if !hardDeadline.IsZero() && !time.Now().Before(hardDeadline) {
					return nil, errConnectionExpired
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				if n < maxBackoffStep {
					n++
				}
				resend = true
				continue
			}
			return nil, err
		}

		value, retry, perr := parse(buf[:nRead])
		if perr != nil {
			return nil, perr
		}
		if retry {
			resend = false
			continue
		}
		return value, nil
	}
}

func backoff(n int) time.Duration {
	return (15 * time.Second) << n
}

func randomTransactionID() (int32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func buildConnectionRequest(txID int32) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], protocolID)
	binary.BigEndian.PutUint32(buf[8:12], 0)
	binary.BigEndian.PutUint32(buf[12:16], uint32(txID))
	return buf
}

// parseConnectionResponse returns (connID int64, retry, err). action==3
// is a tracker failure reply; anything else malformed or mismatched is
// reported with retry set, so the caller discards it and keeps waiting.
func parseConnectionResponse(resp []byte, txID int32) (any, bool, error) {
	if len(resp) < 8 {
		return nil, true, nil
	}
	action := int32(binary.BigEndian.Uint32(resp[0:4]))
	if action == 3 {
		return nil, false, &Failure{Message: string(resp[8:])}
	}
	if len(resp) < 16 {
		return nil, true, nil
	}
	gotTxID := int32(binary.BigEndian.Uint32(resp[4:8]))
	if gotTxID != txID || action != 0 {
		return nil, true, nil
	}
	return int64(binary.BigEndian.Uint64(resp[8:16])), false, nil
}

func buildAnnounceRequest(connID int64, txID int32, ih infohash.InfoHash, peerID [20]byte, key infohash.Key, peerPort uint16, event Event) []byte {
	buf := make([]byte, 98)
	binary.BigEndian.PutUint64(buf[0:8], uint64(connID))
	binary.BigEndian.PutUint32(buf[8:12], 1)
	binary.BigEndian.PutUint32(buf[12:16], uint32(txID))
	copy(buf[16:36], ih.Bytes())
	copy(buf[36:56], peerID[:])
	binary.BigEndian.PutUint64(buf[56:64], 0)           // downloaded
	binary.BigEndian.PutUint64(buf[64:72], uint64(Left)) // left
	binary.BigEndian.PutUint64(buf[72:80], 0)           // uploaded
	binary.BigEndian.PutUint32(buf[80:84], uint32(event.udpValue()))
	// ip_address left as 0: let the tracker use the packet's source address.
	binary.BigEndian.PutUint32(buf[84:88], 0)
	copy(buf[88:92], key.Bytes())
	binary.BigEndian.PutUint32(buf[92:96], uint32(NumWant))
	binary.BigEndian.PutUint16(buf[96:98], peerPort)
	return buf
}

func parseUDPAnnounceResponse(resp []byte, txID int32, isIPv6 bool) (any, bool, error) {
	if len(resp) < 8 {
		return nil, true, nil
	}
	action := int32(binary.BigEndian.Uint32(resp[0:4]))
	if action == 3 {
		return nil, false, &Failure{Message: string(resp[8:])}
	}
	if len(resp) < 20 {
		return nil, true, nil
	}
	gotTxID := int32(binary.BigEndian.Uint32(resp[4:8]))
	if gotTxID != txID || action != 1 {
		return nil, true, nil
	}
	interval := int32(binary.BigEndian.Uint32(resp[8:12]))
	leechers := int32(binary.BigEndian.Uint32(resp[12:16]))
	seeders := int32(binary.BigEndian.Uint32(resp[16:20]))

	var peers []Peer
	var err error
	if isIPv6 {
		peers, err = unpackPeers6(resp[20:])
	} else {
		peers, err = unpackPeers(resp[20:])
	}
	if err != nil {
		return nil, true, nil // malformed peer list: discard like any other bad reply
	}
	return &AnnounceResponse{
		Interval: time.Duration(interval) * time.Second,
		Leechers: int(leechers),
		Seeders:  int(seeders),
		Peers:    peers,
	}, false, nil
}
