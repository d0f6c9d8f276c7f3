// Package eventbus implements the platform's two event surfaces: a
// durable, bounded, per-store append-only stream backed by bbolt, and a
// best-effort live fan-out channel for active subscribers. If the
// backing database cannot be opened, the bus degrades: durability is
// lost and callers are expected to refuse new live subscribers too,
// since a subscriber that joins mid-outage has no durable backlog to
// reconcile against once the bus recovers.
package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("events")

// Event is one entry on the bus, routed by Store name.
type Event struct {
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event"`
	Message   string    `json:"message,omitempty"`
}

// Bus is the durable-stream + live-fan-out event bus.
type Bus struct {
	db        *bolt.DB
	retention int

	mu       sync.RWMutex
	watchers []*watcher
	degraded bool
}

type watcher struct {
	store string // empty means "all stores"
	ch    chan Event
}

// Open opens (or creates) the bbolt-backed durable stream at path. If the
// database cannot be opened, Open still returns a usable Bus running in
// degraded mode: Publish keeps accepting events (durability is simply
// skipped) but Degraded() reports true so callers refuse new live
// subscribers.
func Open(path string, retention int) (*Bus, error) {
	if retention <= 0 {
		retention = 256
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return &Bus{retention: retention, degraded: true}, fmt.Errorf("opening event bus store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return &Bus{retention: retention, degraded: true}, fmt.Errorf("initializing event bus bucket: %w", err)
	}
	return &Bus{db: db, retention: retention}, nil
}

// Degraded reports whether durable persistence is unavailable.
func (b *Bus) Degraded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.degraded || b.db == nil
}

// Publish appends evt to store's durable stream (trimming the oldest
// entry past retention) and broadcasts it to live subscribers. Durable
// write failures are non-fatal: the bus falls back to best-effort and
// still fans the event out live.
func (b *Bus) Publish(evt Event) {
	if b.db != nil {
		if err := b.appendDurable(evt); err != nil {
			b.mu.Lock()
			b.degraded = true
			b.mu.Unlock()
		}
	}
	b.notify(evt)
}

func (b *Bus) appendDurable(evt Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	prefix := storePrefix(evt.Store)
	key := []byte(fmt.Sprintf("%s%020d", prefix, evt.Timestamp.UnixNano()))

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if err := bkt.Put(key, raw); err != nil {
			return err
		}
		return trimOldest(bkt, prefix, b.retention)
	})
}

func trimOldest(bkt *bolt.Bucket, prefix string, retention int) error {
	c := bkt.Cursor()
	var keys [][]byte
	pfx := []byte(prefix)
	for k, _ := c.Seek(pfx); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for len(keys) > retention {
		if err := bkt.Delete(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

// Tail returns the most recent (up to limit) durable entries for store,
// oldest first. If the database could not be opened, it returns nil and
// the caller is expected to fall back to the resource's own activity log;
// a bus degraded later by a failed write still returns what it holds.
func (b *Bus) Tail(store string, limit int) []Event {
	if b.db == nil {
		return nil
	}
	var out []Event
	prefix := storePrefix(store)
	_ = b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		c := bkt.Cursor()
		pfx := []byte(prefix)
		for k, v := c.Seek(pfx); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var evt Event
			if err := json.Unmarshal(v, &evt); err == nil {
				out = append(out, evt)
			}
		}
		return nil
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Subscribe registers a live watcher. store == "" subscribes to every
// store's events. The returned cancel function must be called exactly
// once to unregister and close the channel.
func (b *Bus) Subscribe(store string) (<-chan Event, func()) {
	w := &watcher{store: store, ch: make(chan Event, 64)}

	b.mu.Lock()
	b.watchers = append(b.watchers, w)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, existing := range b.watchers {
			if existing == w {
				b.watchers = append(b.watchers[:i], b.watchers[i+1:]...)
				close(w.ch)
				return
			}
		}
	}
	return w.ch, cancel
}

func (b *Bus) notify(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, w := range b.watchers {
		if w.store != "" && w.store != evt.Store {
			continue
		}
		select {
		case w.ch <- evt:
		default:
			// Slow subscriber; drop rather than block the producer.
		}
	}
}

// Close releases the bus's resources, closing every live watcher.
func (b *Bus) Close() error {
	b.mu.Lock()
	for _, w := range b.watchers {
		close(w.ch)
	}
	b.watchers = nil
	b.mu.Unlock()

	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func storePrefix(store string) string {
	return "/" + store + "/"
}
