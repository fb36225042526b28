package demagnetize

import (
	"context"
	"sync"

	"github.com/cenkalti/demagnetize/internal/logger"
	"github.com/cenkalti/demagnetize/internal/peercache"
	"github.com/cenkalti/demagnetize/internal/tracker"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/sync/semaphore"
)

// Batch applies a Demagnetizer to many magnets under a global
// concurrency cap -- the "trivial outer layer" spec.md permits as an
// external collaborator, supplied here since it needs nothing the core
// doesn't already expose.
type Batch struct {
	Demagnetizer *Demagnetizer
	Concurrency  int
	Cache        *peercache.Cache // optional; nil disables peer caching
}

// Run fetches every magnet concurrently, at most Concurrency at a time,
// and returns one Report entry per magnet in the same order as magnets.
func (b *Batch) Run(ctx context.Context, magnets []Magnet) Report {
	entries := make([]ReportEntry, len(magnets))
	sem := semaphore.NewWeighted(int64(b.Concurrency))
	var wg sync.WaitGroup

	for i, m := range magnets {
		i, m := i, m
		if err := sem.Acquire(ctx, 1); err != nil {
			entries[i] = ReportEntry{Magnet: m, Err: err}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			entries[i] = b.runOne(ctx, m)
		}()
	}
	wg.Wait()
	return Report{Entries: entries}
}

func (b *Batch) runOne(ctx context.Context, m Magnet) ReportEntry {
	runID := uuid.NewV1()
	log := logger.New("batch " + runID.String())

	var seeds []tracker.Peer
	if b.Cache != nil {
		if cached, err := b.Cache.Get(m.InfoHash); err != nil {
			log.Warningln("peer cache lookup failed:", err)
		} else {
			seeds = cached
		}
	}

	mi, winner, err := b.Demagnetizer.demagnetize(ctx, m, seeds)
	if err != nil {
		log.Warningln("demagnetize failed:", err)
		return ReportEntry{Magnet: m, Err: err}
	}
	if b.Cache != nil {
		if err := b.Cache.Put(m.InfoHash, winner); err != nil {
			log.Warningln("peer cache store failed:", err)
		}
	}
	return ReportEntry{Magnet: m, MetaInfo: mi}
}
