package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSeen     = []byte("seen")
	bucketObserved = []byte("observed")
)

const replayPruneInterval = time.Minute

// BoltReplayGuard is a bbolt-backed ReplayGuard. Entries older than the TTL
// are pruned lazily while observing new keys.
type BoltReplayGuard struct {
	db  *bolt.DB
	ttl time.Duration

	mu         sync.Mutex
	lastPruned time.Time
}

// OpenReplayGuard opens (or creates) the replay database at path.
func OpenReplayGuard(path string, ttl time.Duration) (*BoltReplayGuard, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("replay guard path required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open replay store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSeen, bucketObserved} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init replay store: %w", err)
	}
	return &BoltReplayGuard{db: db, ttl: ttl}, nil
}

// Close releases the database handle.
func (g *BoltReplayGuard) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

// Observe records key and reports whether it was already seen within the TTL.
func (g *BoltReplayGuard) Observe(ctx context.Context, key []byte, at time.Time) (bool, error) {
	if g == nil || g.db == nil {
		return false, fmt.Errorf("replay guard not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.maybePrune(ctx, at)

	nanos := at.UTC().UnixNano()
	seen := false
	err := g.db.Update(func(tx *bolt.Tx) error {
		seenBucket := tx.Bucket(bucketSeen)
		if existing := seenBucket.Get(key); existing != nil {
			observed := int64(binary.BigEndian.Uint64(existing))
			if nanos-observed < g.ttl.Nanoseconds() {
				seen = true
				return nil
			}
			if err := tx.Bucket(bucketObserved).Delete(observedIndexKey(observed, key)); err != nil {
				return err
			}
		}
		if err := seenBucket.Put(key, encodeNanos(nanos)); err != nil {
			return err
		}
		return tx.Bucket(bucketObserved).Put(observedIndexKey(nanos, key), nil)
	})
	if err != nil {
		return false, fmt.Errorf("record co-signature: %w", err)
	}
	return seen, nil
}

func (g *BoltReplayGuard) maybePrune(ctx context.Context, now time.Time) {
	g.mu.Lock()
	due := now.Sub(g.lastPruned) >= replayPruneInterval
	if due {
		g.lastPruned = now
	}
	g.mu.Unlock()
	if due {
		_ = g.Prune(ctx, now.Add(-g.ttl))
	}
}

// Prune deletes entries observed before cutoff.
func (g *BoltReplayGuard) Prune(ctx context.Context, cutoff time.Time) error {
	limit := encodeNanos(cutoff.UTC().UnixNano())
	return g.db.Update(func(tx *bolt.Tx) error {
		observed := tx.Bucket(bucketObserved)
		seen := tx.Bucket(bucketSeen)
		cursor := observed.Cursor()
		var stale [][]byte
		for k, _ := cursor.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, _ = cursor.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := observed.Delete(k); err != nil {
				return err
			}
			if err := seen.Delete(k[8:]); err != nil {
				return err
			}
		}
		return nil
	})
}

func observedIndexKey(nanos int64, key []byte) []byte {
	out := make([]byte, 0, 8+len(key))
	out = append(out, encodeNanos(nanos)...)
	return append(out, key...)
}

func encodeNanos(nanos int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nanos))
	return buf
}
