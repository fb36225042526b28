// Package peercache remembers, per info hash, the peers a previous
// fetch actually succeeded with, so a retried magnet can seed its peer
// channel without waiting on trackers first.
package peercache

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/cenkalti/demagnetize/internal/infohash"
	"github.com/cenkalti/demagnetize/internal/tracker"
)

var peersBucket = []byte("peers")

// Cache is a bolt-backed store opened for the lifetime of a batch run.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bolt database at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(peersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying bolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}

type cachedPeer struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// Get returns the peers cached for ih, or nil if none are recorded.
func (c *Cache) Get(ih infohash.InfoHash) ([]tracker.Peer, error) {
	var peers []tracker.Peer
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(peersBucket).Get(ih.Bytes())
		if v == nil {
			return nil
		}
		var cached []cachedPeer
		if err := json.Unmarshal(v, &cached); err != nil {
			return err
		}
		peers = make([]tracker.Peer, len(cached))
		for i, cp := range cached {
			peers[i] = tracker.Peer{Host: cp.Host, Port: cp.Port}
		}
		return nil
	})
	return peers, err
}

// Put records peer as the (sole, most recent) good peer for ih.
func (c *Cache) Put(ih infohash.InfoHash, peer tracker.Peer) error {
	data, err := json.Marshal([]cachedPeer{{Host: peer.Host, Port: peer.Port}})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(peersBucket).Put(ih.Bytes(), data)
	})
}
