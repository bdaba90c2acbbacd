// Package store implements the append-only event store (C5): ULID
// generation, SQLite persistence, cross-process locking (C10), and the
// named-filter library (C6).
package store

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ulidGenerator produces strictly monotonically increasing ULIDs: within
// the same millisecond it increments the 80-bit entropy field by exactly 1
// (with carry into the timestamp field on overflow), rather than
// ulid.Monotonic's default of a random increment up to a configured ceiling.
// This gives the event store's append path a total order within one
// generator. The state is held in memory only, so ordering against IDs
// minted by an earlier process in the same millisecond is not guaranteed.
type ulidGenerator struct {
	mu   sync.Mutex
	last ulid.ULID
}

// newULIDGenerator seeds the generator so the first Next() call produces a
// fresh random ULID for the current instant.
func newULIDGenerator() *ulidGenerator {
	return &ulidGenerator{}
}

// Next returns a ULID strictly greater than every previously returned ULID
// from this generator, using now as the timestamp component when it has
// moved forward since the last call.
func (g *ulidGenerator) Next(now time.Time) ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(now)
	if ms > g.last.Time() {
		var id ulid.ULID
		if err := id.SetTime(ms); err != nil {
			id.SetTime(g.last.Time())
		}
		entropy := make([]byte, 10)
		if _, err := ulid.DefaultEntropy().Read(entropy); err == nil {
			id.SetEntropy(entropy)
		}
		g.last = id
		return id
	}

	g.last = incrementByOne(g.last)
	return g.last
}

// incrementByOne adds 1 to id's 80-bit entropy field, carrying into the
// 48-bit timestamp field on overflow, to keep IDs strictly increasing even
// when many are minted within the same millisecond.
func incrementByOne(id ulid.ULID) ulid.ULID {
	next := id
	for i := 15; i >= 6; i-- {
		next[i]++
		if next[i] != 0 {
			return next
		}
	}
	// Entropy overflowed all the way: carry into the timestamp bytes.
	for i := 5; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			return next
		}
	}
	// Timestamp overflowed too (48 bits exhausted): wrap, which cannot
	// happen before the year 10889 and is accepted as a known limit.
	return next
}
