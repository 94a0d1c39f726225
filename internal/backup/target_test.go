package backup

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3TargetRejectsEmptyBucket(t *testing.T) {
	_, err := NewS3Target(nil, S3TargetConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty bucket name")
}

func TestGzipCompressRoundTrip(t *testing.T) {
	compressed, err := gzipCompress([]byte("REDIS0011hello world"))
	require.NoError(t, err)

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer r.Close()

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "REDIS0011hello world", string(out))
}
