package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitReplicaOf(t *testing.T) {
	host, port, err := splitReplicaOf("127.0.0.1 6380")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 6380, port)
}

func TestSplitReplicaOfRejectsMalformed(t *testing.T) {
	_, _, err := splitReplicaOf("127.0.0.1")
	assert.Error(t, err)

	_, _, err = splitReplicaOf("127.0.0.1 not-a-port")
	assert.Error(t, err)
}
