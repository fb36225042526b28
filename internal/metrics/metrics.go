// Package metrics instruments a single magnet fetch with the same
// rcrowley/go-metrics counters cenkalti/rain/session wires into its
// torrent loop for download/upload speed tracking, repointed here at the
// coarser counts a fetch session cares about.
package metrics

import "github.com/rcrowley/go-metrics"

// Counters tracks per-run counts for one TorrentSession.
type Counters struct {
	registry         metrics.Registry
	TrackersContacted metrics.Counter
	TrackersFailed    metrics.Counter
	PeersContacted    metrics.Counter
	PeersFailed       metrics.Counter
	PeersSucceeded    metrics.Counter
	InfoBytesFetched  metrics.Counter
}

// New creates a fresh, independent set of counters.
func New() *Counters {
	r := metrics.NewRegistry()
	c := &Counters{
		registry:          r,
		TrackersContacted: metrics.NewCounter(),
		TrackersFailed:    metrics.NewCounter(),
		PeersContacted:    metrics.NewCounter(),
		PeersFailed:       metrics.NewCounter(),
		PeersSucceeded:    metrics.NewCounter(),
		InfoBytesFetched:  metrics.NewCounter(),
	}
	_ = r.Register("trackers.contacted", c.TrackersContacted)
	_ = r.Register("trackers.failed", c.TrackersFailed)
	_ = r.Register("peers.contacted", c.PeersContacted)
	_ = r.Register("peers.failed", c.PeersFailed)
	_ = r.Register("peers.succeeded", c.PeersSucceeded)
	_ = r.Register("info.bytes_fetched", c.InfoBytesFetched)
	return c
}

// Snapshot returns a point-in-time copy of every counter's value, keyed
// by the same names they were registered under.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	c.registry.Each(func(name string, i any) {
		if counter, ok := i.(metrics.Counter); ok {
			out[name] = counter.Count()
		}
	})
	return out
}
