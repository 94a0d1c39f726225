package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{ stats Stats }

func (f fakeSource) Stats() Stats { return f.stats }

func TestRefreshUpdatesGaugesAndExposesThemOverHTTP(t *testing.T) {
	src := fakeSource{stats: Stats{
		CommandsTotal:      10,
		WriteCommandsTotal: 4,
		ConnectedClients:   3,
		ReplicaCount:       1,
		KeyspaceSize:       42,
		MasterOffset:       1024,
	}}

	s, err := NewServer(":0", src)
	require.NoError(t, err)
	s.refresh()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "memnode_connected_clients 3")
	assert.Contains(t, body, "memnode_keyspace_size 42")
	assert.Contains(t, body, "memnode_master_offset_bytes 1024")
}
