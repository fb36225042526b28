// Package piecer assembles and validates a torrent's info dictionary from
// the fixed-size chunks delivered over BEP 9.
package piecer

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is the BitTorrent info-hash algorithm, not used for security here.
	"fmt"
	"hash"
)

// ChunkSize is the size of a BEP 9 metadata piece, except possibly the
// last one.
const ChunkSize = 16 * 1024

// InfoPiecer accumulates the pieces of an info dictionary in order,
// feeding a running SHA-1 digest as they arrive.
type InfoPiecer struct {
	totalSize int64
	sizes     []int
	data      []byte
	digest    hash.Hash
	next      int
	done      bool
}

// New creates an InfoPiecer for an info dictionary of the given total
// size, computing the schedule of expected piece sizes up front.
func New(totalSize int64) *InfoPiecer {
	p := &InfoPiecer{
		totalSize: totalSize,
		data:      make([]byte, 0, totalSize),
		digest:    sha1.New(), //nolint:gosec
	}
	full := int(totalSize / ChunkSize)
	residue := int(totalSize % ChunkSize)
	p.sizes = make([]int, 0, full+1)
	for i := 0; i < full; i++ {
		p.sizes = append(p.sizes, ChunkSize)
	}
	if residue != 0 {
		p.sizes = append(p.sizes, residue)
	}
	return p
}

// TotalSize returns the declared total size of the info dictionary.
func (p *InfoPiecer) TotalSize() int64 {
	return p.totalSize
}

// PieceCount returns ceil(total_size / ChunkSize).
func (p *InfoPiecer) PieceCount() int {
	return len(p.sizes)
}

// Done reports whether every scheduled piece has been added.
func (p *InfoPiecer) Done() bool {
	return p.next == len(p.sizes)
}

// NextIndex returns the index of the next piece AddPiece expects.
func (p *InfoPiecer) NextIndex() int {
	return p.next
}

// AddPiece appends the next piece of the info dictionary. blob must match
// the scheduled size for the current index exactly.
func (p *InfoPiecer) AddPiece(blob []byte) error {
	if p.done || p.next >= len(p.sizes) {
		return fmt.Errorf("piecer: too many pieces")
	}
	want := p.sizes[p.next]
	if len(blob) != want {
		return fmt.Errorf("piecer: piece %d is wrong length: expected %d bytes, got %d", p.next, want, len(blob))
	}
	p.data = append(p.data, blob...)
	p.digest.Write(blob)
	p.next++
	if p.next == len(p.sizes) {
		p.done = true
	}
	return nil
}

// Digest returns the hex SHA-1 of the bytes fed so far.
func (p *InfoPiecer) Digest() string {
	return fmt.Sprintf("%x", p.digest.Sum(nil))
}

// Data returns the concatenated bytes; only meaningful once Done.
func (p *InfoPiecer) Data() []byte {
	return p.data
}
