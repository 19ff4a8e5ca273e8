// Package dedupe tracks which match identities a run has already claimed.
package dedupe

import (
	"context"
	"hash/maphash"
	"sort"
	"sync"
	"sync/atomic"
)

const defaultShards = 16

// Deduper records seen ids so each one is claimed by exactly one caller.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if the caller now owns it.
	SeenAndRecord(ctx context.Context, id string) bool

	// Contains reports whether id has been recorded.
	Contains(id string) bool

	// Keys returns every recorded id in sorted order.
	Keys() []string

	Size() int64
}

type shard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// Set is an unbounded, sharded Deduper. Entries live for the lifetime of the
// set; a run creates a fresh one.
type Set struct {
	seed   maphash.Seed
	shards []*shard
	size   atomic.Int64
}

// NewSet creates an empty set.
func NewSet(opts ...Option) *Set {
	s := &Set{seed: maphash.MakeSeed()}
	n := defaultShards
	for _, opt := range opts {
		opt(&n)
	}
	if n < 1 {
		n = 1
	}
	s.shards = make([]*shard, n)
	for i := range s.shards {
		s.shards[i] = &shard{seen: make(map[string]struct{})}
	}
	return s
}

func (s *Set) shardFor(id string) *shard {
	return s.shards[maphash.String(s.seed, id)%uint64(len(s.shards))]
}

// SeenAndRecord implements Deduper.
func (s *Set) SeenAndRecord(_ context.Context, id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.seen[id]; ok {
		return true
	}
	sh.seen[id] = struct{}{}
	s.size.Add(1)
	return false
}

// Contains implements Deduper.
func (s *Set) Contains(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.seen[id]
	return ok
}

// Keys implements Deduper.
func (s *Set) Keys() []string {
	out := make([]string, 0, s.size.Load())
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id := range sh.seen {
			out = append(out, id)
		}
		sh.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

// Size implements Deduper.
func (s *Set) Size() int64 {
	return s.size.Load()
}
