package demagnetize

import "github.com/cenkalti/demagnetize/internal/metainfo"

// ReportEntry is one magnet's outcome: either a composed MetaInfo or the
// error that prevented one. Writing MetaInfo to a named file remains the
// caller's job.
type ReportEntry struct {
	Magnet   Magnet
	MetaInfo *metainfo.MetaInfo
	Err      error
}

// Report is the aggregate outcome of running a batch of magnets.
type Report struct {
	Entries []ReportEntry
}

// Total is the number of magnets the batch was given.
func (r Report) Total() int {
	return len(r.Entries)
}

// Finished is the number of magnets that ran to completion, successfully
// or not (every entry in Entries, since a batch run always waits for
// every magnet before returning).
func (r Report) Finished() int {
	return len(r.Entries)
}

// OK is the number of magnets that produced a MetaInfo.
func (r Report) OK() int {
	n := 0
	for _, e := range r.Entries {
		if e.Err == nil {
			n++
		}
	}
	return n
}
