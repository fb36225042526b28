package demagnetize

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/demagnetize/internal/infohash"
	"github.com/cenkalti/demagnetize/internal/logger"
	"github.com/cenkalti/demagnetize/internal/metrics"
	"github.com/cenkalti/demagnetize/internal/peerwire"
	"github.com/cenkalti/demagnetize/internal/tracker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TorrentSession is the per-magnet coordinator: it fans out to every
// tracker URL, de-duplicates the peers they produce, fans out to peers
// under a concurrency cap, and returns the first validated info
// dictionary any of them delivers.
type TorrentSession struct {
	cfg      *Config
	infoHash infohash.InfoHash
	trackers []string
	peerID   [20]byte
	key      infohash.Key
	metrics  *metrics.Counters
	log      *logger.Logger
}

func newTorrentSession(cfg *Config, ih infohash.InfoHash, trackers []string, peerID [20]byte) *TorrentSession {
	return &TorrentSession{
		cfg:      cfg,
		infoHash: ih,
		trackers: trackers,
		peerID:   peerID,
		key:      infohash.GenerateKey(),
		metrics:  metrics.New(),
		log:      logger.New("session " + ih.String()),
	}
}

// Metrics exposes this session's per-run counters.
func (s *TorrentSession) Metrics() *metrics.Counters {
	return s.metrics
}

// infoResult pairs the winning info dictionary with the peer that
// delivered it, so a caller can remember that peer in a cache.
type infoResult struct {
	info []byte
	peer tracker.Peer
}

// GetInfo runs the full tracker/peer fan-out and returns the raw
// bencoded info dictionary bytes the first successful peer delivered,
// plus that peer's address. seeds, if non-empty, are pushed onto the
// peer channel up front alongside whatever the trackers produce.
func (s *TorrentSession) GetInfo(ctx context.Context, seeds []tracker.Peer) ([]byte, tracker.Peer, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	peerCh := make(chan tracker.Peer, 64+len(seeds))
	resultCh := make(chan infoResult, 1)
	sem := semaphore.NewWeighted(int64(s.cfg.PeersPerMagnetLimit))

	for _, p := range seeds {
		peerCh <- p
	}

	trackerGroup, trackerCtx := errgroup.WithContext(ctx)
	for _, rawURL := range s.trackers {
		rawURL := rawURL
		trackerGroup.Go(func() error {
			s.runTracker(trackerCtx, rawURL, peerCh)
			return nil
		})
	}
	go func() {
		_ = trackerGroup.Wait()
		close(peerCh)
	}()

	var seenMu sync.Mutex
	seen := make(map[tracker.Addr]struct{})

	var peerGroup sync.WaitGroup
	fanoutDone := make(chan struct{})
	go func() {
		defer close(fanoutDone)
		for p := range peerCh {
			addr := p.Addr()
			seenMu.Lock()
			_, dup := seen[addr]
			if !dup {
				seen[addr] = struct{}{}
			}
			seenMu.Unlock()
			if dup {
				s.log.Debugln("dropping duplicate peer", p)
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return // context cancelled: a result already arrived
			}
			p := p
			peerGroup.Add(1)
			go func() {
				defer peerGroup.Done()
				defer sem.Release(1)
				s.runPeer(ctx, p, resultCh)
			}()
		}
	}()

	allDone := make(chan struct{})
	go func() {
		<-fanoutDone
		peerGroup.Wait()
		close(allDone)
	}()

	select {
	case result := <-resultCh:
		cancel()
		<-allDone
		return result.info, result.peer, nil
	case <-allDone:
		select {
		case result := <-resultCh:
			return result.info, result.peer, nil
		default:
			return nil, tracker.Peer{}, fmt.Errorf("no peer delivered a valid info dictionary")
		}
	case <-ctx.Done():
		<-allDone
		return nil, tracker.Peer{}, ctx.Err()
	}
}

func (s *TorrentSession) runTracker(ctx context.Context, rawURL string, peerCh chan<- tracker.Peer) {
	t, err := tracker.New(rawURL)
	if err != nil {
		s.log.Warningf("skipping invalid tracker %s: %s", rawURL, err)
		return
	}
	s.metrics.TrackersContacted.Inc(1)
	if err := t.GetPeers(ctx, s.infoHash, s.peerID, s.key, 0, peerCh); err != nil {
		s.metrics.TrackersFailed.Inc(1)
		s.log.Warningln(err)
	}
}

func (s *TorrentSession) runPeer(ctx context.Context, p tracker.Peer, resultCh chan<- infoResult) {
	addr := p.DialAddr()
	s.metrics.PeersContacted.Inc(1)

	hsCtx, cancel := context.WithTimeout(ctx, s.cfg.PeerHandshakeTimeout)
	conn, err := peerwire.Dial(hsCtx, addr, s.infoHash, s.peerID)
	cancel()
	if err != nil {
		s.metrics.PeersFailed.Inc(1)
		s.log.Warningln(err)
		return
	}
	defer conn.Close()

	info, err := conn.GetMetadata(ctx)
	if err != nil {
		s.metrics.PeersFailed.Inc(1)
		s.log.Warningln(err)
		return
	}
	s.metrics.PeersSucceeded.Inc(1)
	s.metrics.InfoBytesFetched.Inc(int64(len(info)))
	select {
	case resultCh <- infoResult{info: info, peer: p}:
	default:
		// Another peer already won the race.
	}
}
