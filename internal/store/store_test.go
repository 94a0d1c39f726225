package store

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyspaceSetGetExpiry(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("foo", Value{Kind: KindString, Str: "bar"}, time.Now().Add(50*time.Millisecond))

	v, ok := ks.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v.Str)

	time.Sleep(80 * time.Millisecond)
	_, ok = ks.Get("foo")
	assert.False(t, ok)
}

func TestKeyspaceNoExpiry(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("foo", Value{Kind: KindString, Str: "bar"}, time.Time{})
	v, ok := ks.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v.Str)
}

func TestKeyspaceTypeAndKeys(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("s", Value{Kind: KindString, Str: "x"}, time.Time{})
	_, _ = ks.GetOrCreateList("l")
	assert.Equal(t, "string", ks.Type("s"))
	assert.Equal(t, "list", ks.Type("l"))
	assert.Equal(t, "none", ks.Type("missing"))
	assert.ElementsMatch(t, []string{"s", "l"}, ks.Keys("*"))
}

func TestListPushPopRange(t *testing.T) {
	l := NewList()
	assert.Equal(t, 2, l.RPush("a", "b"))
	assert.Equal(t, 3, l.LPush("z"))
	assert.Equal(t, []string{"z", "a", "b"}, l.Range(0, -1))

	vals, ok := l.LPop(2)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a"}, vals)
	assert.Equal(t, 1, l.Len())
}

func TestListRangeNegativeAndEmpty(t *testing.T) {
	l := NewList()
	l.RPush("a", "b", "c")
	assert.Equal(t, []string{"b", "c"}, l.Range(-2, -1))
	assert.Equal(t, []string{}, l.Range(2, 1))
}

func TestStreamIDAllocation(t *testing.T) {
	s := NewStream()
	id, err := s.Append("0-1", []string{"k", "v"}, 1000)
	require.NoError(t, err)
	assert.Equal(t, "0-1", id.String())

	_, err = s.Append("0-1", []string{"k", "w"}, 1000)
	assert.ErrorIs(t, err, ErrStreamIDTooSmall)

	_, err = s.Append("0-0", nil, 1000)
	assert.ErrorIs(t, err, ErrStreamIDZero)
}

func TestStreamIDWild(t *testing.T) {
	s := NewStream()
	id1, err := s.Append("*", []string{"a", "1"}, 5)
	require.NoError(t, err)
	assert.Equal(t, StreamID{Ms: 5, Seq: 0}, id1)

	id2, err := s.Append("*", []string{"a", "2"}, 5)
	require.NoError(t, err)
	assert.Equal(t, StreamID{Ms: 5, Seq: 1}, id2)

	id3, err := s.Append("5-*", []string{"a", "3"}, 5)
	require.NoError(t, err)
	assert.Equal(t, StreamID{Ms: 5, Seq: 2}, id3)
}

func TestStreamMonotonicityAndRange(t *testing.T) {
	s := NewStream()
	for i := 1; i <= 5; i++ {
		_, err := s.Append("*", []string{"i", "v"}, uint64(i))
		require.NoError(t, err)
	}
	entries := s.Range(StreamID{Ms: 0}, StreamID{Ms: math.MaxInt64})
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].ID.Less(entries[i].ID))
	}
}

func TestStreamOddFieldsRejected(t *testing.T) {
	s := NewStream()
	_, err := s.Append("*", []string{"onlykey"}, 1)
	assert.Error(t, err)
}

func TestZSetDualIndexConsistency(t *testing.T) {
	z := NewZSet()
	added := z.Add("m1", 1.5)
	assert.True(t, added)
	added = z.Add("m1", 2.5)
	assert.False(t, added)
	z.Add("m2", 1.0)

	assert.Equal(t, 2, z.Card())
	assert.Equal(t, len(z.Members()), z.Card())

	removed := z.Rem("m1")
	assert.True(t, removed)
	assert.Equal(t, 1, z.Card())
	assert.Equal(t, len(z.ordered), len(z.scoreByMember))
}

func TestZSetRankAndRangeTieBreak(t *testing.T) {
	z := NewZSet()
	z.Add("b", 1.0)
	z.Add("a", 1.0)
	z.Add("c", 2.0)

	rank, ok := z.Rank("a")
	require.True(t, ok)
	assert.Equal(t, 0, rank)

	assert.Equal(t, []string{"a", "b", "c"}, z.Range(0, -1))
}

func TestZSetRankAbsent(t *testing.T) {
	z := NewZSet()
	_, ok := z.Rank("ghost")
	assert.False(t, ok)
}

func TestGeoRoundTrip(t *testing.T) {
	lon, lat := -74.006, 40.7128
	score := GeoEncode(lon, lat)
	gotLon, gotLat := GeoDecode(score)
	assert.InDelta(t, lon, gotLon, 1e-4)
	assert.InDelta(t, lat, gotLat, 1e-4)
}

func TestGeoValidateCoords(t *testing.T) {
	assert.True(t, ValidateCoords(0, 0))
	assert.False(t, ValidateCoords(200, 0))
	assert.False(t, ValidateCoords(0, 90))
}

func TestHaversineKnownDistance(t *testing.T) {
	// New York to roughly 111km north.
	d := HaversineMeters(-74.006, 40.7128, -74.006, 41.7128)
	assert.InDelta(t, 111195, d, 2000)
}
