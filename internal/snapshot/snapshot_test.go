package snapshot

import (
	"bytes"
	"testing"
	"time"

	"github.com/memnode/memnode/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	entries := map[string]store.Entry{
		"foo": {Value: store.Value{Kind: store.KindString, Str: "bar"}},
		"ttl": {
			Value:    store.Value{Kind: store.KindString, Str: "expiring"},
			ExpireAt: time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, entries))

	got, skipped, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, got, 2)

	assert.Equal(t, "bar", got["foo"].Value.Str)
	assert.True(t, got["foo"].ExpireAt.IsZero())

	assert.Equal(t, "expiring", got["ttl"].Value.Str)
	assert.False(t, got["ttl"].ExpireAt.IsZero())
	assert.WithinDuration(t, entries["ttl"].ExpireAt, got["ttl"].ExpireAt, time.Millisecond)
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, _, err := Read(bytes.NewReader([]byte("NOTAREDISFILE")))
	assert.Error(t, err)
}

func TestReadRejectsTruncatedFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, map[string]store.Entry{
		"k": {Value: store.Value{Kind: store.KindString, Str: "v"}},
	}))

	truncated := buf.Bytes()[:buf.Len()-4]
	_, _, err := Read(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestEmptyRDBIsWellFormed(t *testing.T) {
	entries, skipped, err := Read(bytes.NewReader(EmptyRDB))
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Empty(t, entries)
}

func TestWriteRejectsOversizedString(t *testing.T) {
	big := make([]byte, 64)
	for i := range big {
		big[i] = 'x'
	}
	var buf bytes.Buffer
	err := Write(&buf, map[string]store.Entry{
		string(big): {Value: store.Value{Kind: store.KindString, Str: "v"}},
	})
	assert.Error(t, err)
}
