// Package metainfo renders a validated info dictionary into the
// bencoded-struct shape of a complete .torrent file.
package metainfo

import (
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/bencode"
)

// MetaInfo is the top-level dictionary of a .torrent file. RawInfo holds
// the exact bytes the info piecer validated against the magnet's info
// hash; Info is the same dictionary decoded into a struct for callers
// that want field access without re-parsing the raw bencode.
type MetaInfo struct {
	Info         *Info              `bencode:"-"`
	RawInfo      bencode.RawMessage `bencode:"info" json:"-"`
	Announce     string             `bencode:"announce"`
	AnnounceList [][]string         `bencode:"announce-list"`
	CreationDate int64              `bencode:"creation date"`
	Comment      string             `bencode:"comment"`
	CreatedBy    string             `bencode:"created by"`
	Encoding     string             `bencode:"encoding"`
}

// New decodes a complete .torrent file.
func New(r io.Reader) (*MetaInfo, error) {
	var m MetaInfo
	if err := bencode.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	if len(m.RawInfo) == 0 {
		return nil, errors.New("no info dict in torrent file")
	}
	info, err := NewInfo(m.RawInfo)
	if err != nil {
		return nil, err
	}
	m.Info = info
	return &m, nil
}

// Compose builds a MetaInfo from a validated raw info dict plus the
// tracker list and client identity a magnet fetch has on hand; this is
// the value a caller would write to a .torrent file.
func Compose(rawInfo []byte, trackers []string, clientID string, creationDate int64) (*MetaInfo, error) {
	info, err := NewInfo(rawInfo)
	if err != nil {
		return nil, err
	}
	m := &MetaInfo{
		Info:         info,
		RawInfo:      bencode.RawMessage(rawInfo),
		CreatedBy:    clientID,
		CreationDate: creationDate,
	}
	if len(trackers) > 0 {
		m.Announce = trackers[0]
	}
	if len(trackers) > 1 {
		m.AnnounceList = make([][]string, len(trackers))
		for i, t := range trackers {
			m.AnnounceList[i] = []string{t}
		}
	}
	return m, nil
}

// WriteTo bencodes m and writes it to w; naming and opening the file
// remains a caller concern.
func (m *MetaInfo) WriteTo(w io.Writer) error {
	return bencode.NewEncoder(w).Encode(m)
}

// File describes one member of a multi-file torrent.
type File struct {
	Length int64
	Path   []string
}

type fileDict struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// Info is the decoded "info" dictionary.
type Info struct {
	Name        string     `bencode:"name"`
	PieceLength int64      `bencode:"piece length"`
	Pieces      []byte     `bencode:"pieces"`
	Private     bool       `bencode:"private"`
	Length      int64      `bencode:"length"`
	RawFiles    []fileDict `bencode:"files"`

	NumPieces int    `bencode:"-"`
	Files     []File `bencode:"-"`
}

// NewInfo decodes and validates a raw info dictionary.
func NewInfo(raw []byte) (*Info, error) {
	var info Info
	if err := bencode.DecodeBytes(raw, &info); err != nil {
		return nil, fmt.Errorf("invalid info dict: %w", err)
	}
	if len(info.Pieces)%20 != 0 {
		return nil, fmt.Errorf("invalid info dict: pieces length %d is not a multiple of 20", len(info.Pieces))
	}
	info.NumPieces = len(info.Pieces) / 20
	info.Files = make([]File, len(info.RawFiles))
	for i, f := range info.RawFiles {
		info.Files[i] = File{Length: f.Length, Path: f.Path}
	}
	return &info, nil
}

// MultiFile reports whether this info dict uses the multi-file layout (a
// non-empty "files" list), even if that list holds a single file.
func (i *Info) MultiFile() bool {
	return len(i.Files) > 0
}

// TotalLength is the sum of all file lengths described by this info dict.
func (i *Info) TotalLength() int64 {
	if !i.MultiFile() {
		return i.Length
	}
	var total int64
	for _, f := range i.Files {
		total += f.Length
	}
	return total
}

// PieceHash returns the expected SHA-1 digest of piece n.
func (i *Info) PieceHash(n int) []byte {
	return i.Pieces[n*20 : (n+1)*20]
}
