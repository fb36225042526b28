package demagnetize

import (
	"fmt"

	"github.com/cenkalti/demagnetize/internal/infohash"
)

// Magnet is a parsed magnet link: an info hash, optional display name,
// and the tracker URLs to query. Parsing the raw magnet URI string is
// the caller's job; this type is the input Demagnetizer accepts.
type Magnet struct {
	InfoHash    infohash.InfoHash
	DisplayName string
	Trackers    []string
}

func (m Magnet) String() string {
	if m.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", m.DisplayName, m.InfoHash)
	}
	return m.InfoHash.String()
}
