// Package peerwire implements the BitTorrent peer wire protocol: the
// handshake, message framing, the BEP 10 extension protocol, and the
// BEP 9 metadata ("ut_metadata") request loop used to fetch an info
// dictionary from a single peer without downloading any file data.
package peerwire

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/demagnetize/internal/infohash"
	"github.com/cenkalti/demagnetize/internal/logger"
	"github.com/cenkalti/demagnetize/internal/piecer"
	"github.com/cenkalti/demagnetize/internal/tracker"
)

// HandshakeTimeout bounds opening the TCP connection and exchanging the
// fixed-length handshake.
const HandshakeTimeout = 60 * time.Second

// KeepAliveInterval is the period at which GetMetadata emits keepalive
// messages. They are sent on this fixed schedule whether or not other
// messages went out in between; idle time is not tracked.
const KeepAliveInterval = 120 * time.Second

// Conn is a handshaken connection to one peer, ready to fetch metadata.
type Conn struct {
	conn        net.Conn
	peerAddr    string
	infoHash    infohash.InfoHash
	localPeerID [20]byte
	extensions  Extensions
	log         *logger.Logger
}

// Dial opens a TCP connection to addr and performs the BitTorrent
// handshake, negotiating BEP 10 extensions and the Fast Extension.
func Dial(ctx context.Context, addr string, ih infohash.InfoHash, localPeerID [20]byte) (*Conn, error) {
	hsCtx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(hsCtx, "tcp", addr)
	if err != nil {
		return nil, newPeerError(addr, ih, fmt.Sprintf("could not connect to peer in time: %s", err), err)
	}
	if deadline, ok := hsCtx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}

	c := &Conn{conn: raw, peerAddr: addr, infoHash: ih, localPeerID: localPeerID, log: logger.New("peer " + addr)}
	if err := c.handshake(); err != nil {
		raw.Close()
		return nil, err
	}
	_ = raw.SetDeadline(time.Time{})
	return c, nil
}

// Close releases the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) error(msg string) error {
	return newPeerError(c.peerAddr, c.infoHash, msg, nil)
}

func (c *Conn) handshake() error {
	local := Handshake{Extensions: localExtensions(), InfoHash: c.infoHash, PeerID: c.localPeerID}
	if _, err := c.conn.Write(local.Marshal()); err != nil {
		return newPeerError(c.peerAddr, c.infoHash, "peer closed the connection early", err)
	}

	buf := make([]byte, HandshakeLength)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return newPeerError(c.peerAddr, c.infoHash, "peer closed the connection early", err)
	}
	remote, err := ParseHandshake(buf)
	if err != nil {
		return newPeerError(c.peerAddr, c.infoHash, fmt.Sprintf("peer sent bad handshake: %s", err), err)
	}
	if remote.InfoHash != c.infoHash {
		return c.error(fmt.Sprintf("peer replied with wrong info hash (got %s)", remote.InfoHash))
	}
	c.extensions = localExtensions().intersect(remote.Extensions)
	if !c.extensions.BEP10() {
		return c.error("peer does not support BEP 10 extensions")
	}

	eh := ExtendedHandshake{M: map[string]int64{"ut_metadata": localUTMetadataID}, V: tracker.ClientVersion, HasV: true}
	if err := c.sendExtended(0, eh.Compose()); err != nil {
		return err
	}
	if c.extensions.Fast() {
		if err := c.writeMessage(&Message{Type: MsgHaveNone}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) sendExtended(id byte, payload []byte) error {
	return c.writeMessage(&Message{Type: MsgExtended, ExtendedID: id, Payload: payload})
}

func (c *Conn) writeMessage(msg *Message) error {
	if err := WriteMessage(c.conn, msg); err != nil {
		return newPeerError(c.peerAddr, c.infoHash, "peer closed the connection early", err)
	}
	return nil
}

func (c *Conn) readMessage() (*Message, error) {
	msg, err := ReadMessage(c.conn)
	if err != nil {
		return nil, newPeerError(c.peerAddr, c.infoHash, "peer closed the connection early", err)
	}
	return msg, nil
}

// GetMetadata runs the full BEP 9 exchange: waits for the remote's
// extended handshake, then requests every metadata piece in order,
// validating the assembled info dictionary's SHA-1 digest against
// InfoHash before returning its raw bencoded bytes.
func (c *Conn) GetMetadata(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}
	stop := make(chan struct{})
	defer close(stop)
	go c.sendKeepalives(stop)

	handshake, err := c.awaitExtendedHandshake()
	if err != nil {
		return nil, err
	}
	utID, ok := handshake.UTMetadataID()
	if !ok {
		return nil, c.error("peer does not support metadata transfer")
	}
	if !handshake.HasMetadataSize {
		return nil, c.error("peer did not report info size in extended handshake")
	}

	pc := piecer.New(handshake.MetadataSize)
	for i := 0; i < pc.PieceCount(); i++ {
		req := BEP9Message{MsgType: BEP9Request, Piece: int64(i)}
		if err := c.sendExtended(byte(utID), req.Compose()); err != nil {
			return nil, err
		}
		if err := c.awaitPieceData(i, pc, byte(utID)); err != nil {
			return nil, err
		}
	}

	if got := pc.Digest(); got != c.infoHash.String() {
		return nil, c.error(fmt.Sprintf("received info with invalid digest; expected %s, got %s", c.infoHash, got))
	}
	return pc.Data(), nil
}

func (c *Conn) awaitExtendedHandshake() (ExtendedHandshake, error) {
	for {
		msg, err := c.readMessage()
		if err != nil {
			return ExtendedHandshake{}, err
		}
		if msg == nil {
			continue // keepalive
		}
		if msg.Type == MsgExtended && msg.ExtendedID == 0 {
			h, err := ParseExtendedHandshake(msg.Payload)
			if err != nil {
				return ExtendedHandshake{}, c.error(fmt.Sprintf("invalid extended handshake: %s", err))
			}
			return h, nil
		}
		if !ignorable(msg) {
			return ExtendedHandshake{}, c.error(fmt.Sprintf("peer sent unexpected message: %s", msg))
		}
	}
}

func (c *Conn) awaitPieceData(expected int, pc *piecer.InfoPiecer, utID byte) error {
	for {
		msg, err := c.readMessage()
		if err != nil {
			return err
		}
		if msg == nil {
			continue // keepalive
		}
		if msg.Type == MsgExtended && msg.ExtendedID == 0 {
			continue // a peer may resend its extended handshake; harmless
		}
		// The peer addresses ut_metadata messages to the ID we advertised in
		// our own extended handshake; utID is only for messages we send.
		if msg.Type != MsgExtended || msg.ExtendedID != localUTMetadataID {
			if ignorable(msg) {
				continue
			}
			return c.error(fmt.Sprintf("peer sent unexpected message: %s", msg))
		}

		bm, err := ParseBEP9Message(msg.Payload)
		if err != nil {
			return c.error(fmt.Sprintf("peer sent invalid ut_metadata message: %s", err))
		}
		switch bm.MsgType {
		case BEP9Data:
			if int(bm.Piece) != expected {
				return c.error(fmt.Sprintf("received data for info piece %d, which we did not request", bm.Piece))
			}
			if bm.HasTotalSize && bm.TotalSize != pc.TotalSize() {
				return c.error(fmt.Sprintf("'total_size' in info data message (%d) differs from previous value (%d)", bm.TotalSize, pc.TotalSize()))
			}
			if err := pc.AddPiece(bm.Payload); err != nil {
				return c.error(fmt.Sprintf("bad info piece: %s", err))
			}
			return nil
		case BEP9Reject:
			return c.error(fmt.Sprintf("peer rejected request for info piece %d", bm.Piece))
		case BEP9Request:
			reject := BEP9Message{MsgType: BEP9Reject, Piece: bm.Piece}
			if err := c.sendExtended(utID, reject.Compose()); err != nil {
				return err
			}
		default:
			// Unknown msg_type: ignore and keep waiting for our reply.
		}
	}
}

func (c *Conn) sendKeepalives(stop chan struct{}) {
	t := time.NewTicker(KeepAliveInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			_ = WriteMessage(c.conn, nil)
		}
	}
}
