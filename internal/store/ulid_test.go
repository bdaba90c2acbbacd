package store

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGeneratorMonotonicWithinSameMillisecond(t *testing.T) {
	gen := newULIDGenerator()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := gen.Next(now)
	second := gen.Next(now)
	third := gen.Next(now)

	assert.Equal(t, 1, second.Compare(first))
	assert.Equal(t, 1, third.Compare(second))
	assert.Equal(t, first.Time(), second.Time(), "same millisecond stays on the same timestamp field")
}

func TestULIDGeneratorAdvancesTimestampOnNewMillisecond(t *testing.T) {
	gen := newULIDGenerator()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Millisecond)

	first := gen.Next(t1)
	second := gen.Next(t2)

	assert.Equal(t, 1, second.Compare(first))
	assert.Greater(t, second.Time(), first.Time())
}

func TestIncrementByOneCarriesIntoTimestampOnEntropyOverflow(t *testing.T) {
	var id ulid.ULID
	require.NoError(t, id.SetTime(1000))
	entropy := make([]byte, 10)
	for i := range entropy {
		entropy[i] = 0xff
	}
	id.SetEntropy(entropy)

	next := incrementByOne(id)
	assert.Equal(t, uint64(1001), next.Time())
	for i := 6; i <= 15; i++ {
		assert.Equal(t, byte(0), next[i], "entropy wraps to zero on carry")
	}
}

func TestIncrementByOneNoCarry(t *testing.T) {
	var id ulid.ULID
	require.NoError(t, id.SetTime(1000))
	entropy := make([]byte, 10)
	entropy[9] = 0x01
	id.SetEntropy(entropy)

	next := incrementByOne(id)
	assert.Equal(t, uint64(1000), next.Time())
	assert.Equal(t, byte(0x02), next[15])
}
