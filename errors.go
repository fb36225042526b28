package demagnetize

import (
	"fmt"

	"github.com/cenkalti/demagnetize/internal/infohash"
	"github.com/pkg/errors"
)

// DemagnetizeError is the only error a Demagnetizer surfaces to its
// caller: every tracker and peer failure along the way is local and
// already logged. It is returned when no tracker produced a peer that
// ultimately delivered a valid info dictionary, and also when the magnet
// has no trackers, a peer ID cannot be generated, or the fetched info
// cannot be composed into a MetaInfo.
type DemagnetizeError struct {
	InfoHash infohash.InfoHash
	Err      error
}

func (e *DemagnetizeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not fetch info for %s: %s", e.InfoHash, e.Err)
	}
	return fmt.Sprintf("could not fetch info for %s", e.InfoHash)
}

func (e *DemagnetizeError) Unwrap() error {
	return e.Err
}

func newDemagnetizeError(ih infohash.InfoHash, err error) *DemagnetizeError {
	if err != nil {
		err = errors.WithStack(err)
	}
	return &DemagnetizeError{InfoHash: ih, Err: err}
}
