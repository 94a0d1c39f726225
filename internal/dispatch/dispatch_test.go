package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/protocol"
)

func newTestServer() *Server {
	return NewServer(Config{Dir: "", DBFilename: "dump.rdb", IsMaster: true, ReplID: "testreplid"})
}

func reply(s *Server, c *conn.Conn, args ...string) protocol.Value {
	return s.Dispatch(context.Background(), c, args)
}

func TestPing(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)
	v := reply(s, c, "PING")
	assert.Equal(t, protocol.KindSimpleString, v.Kind)
	assert.Equal(t, "PONG", v.Str)
}

func TestSetGetWithExpiry(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)

	v := reply(s, c, "SET", "foo", "bar", "PX", "100")
	assert.Equal(t, "OK", v.Str)

	v = reply(s, c, "GET", "foo")
	assert.Equal(t, "bar", v.Str)

	time.Sleep(200 * time.Millisecond)
	v = reply(s, c, "GET", "foo")
	assert.Equal(t, protocol.KindNullBulkString, v.Kind)
}

func TestXAddDuplicateIDError(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)

	v := reply(s, c, "XADD", "s", "0-1", "k", "v")
	assert.Equal(t, "0-1", v.Str)

	v = reply(s, c, "XADD", "s", "0-1", "k", "w")
	assert.Equal(t, protocol.KindError, v.Kind)
	assert.Contains(t, v.Str, "equal or smaller than the target stream top item")
}

func TestTransaction(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)

	assert.Equal(t, "OK", reply(s, c, "MULTI").Str)
	assert.Equal(t, "QUEUED", reply(s, c, "INCR", "x").Str)
	assert.Equal(t, "QUEUED", reply(s, c, "INCR", "x").Str)

	v := reply(s, c, "EXEC")
	require.Equal(t, protocol.KindArray, v.Kind)
	require.Len(t, v.Array, 2)
	assert.Equal(t, int64(1), v.Array[0].Int)
	assert.Equal(t, int64(2), v.Array[1].Int)
}

func TestExecWithoutMulti(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)
	v := reply(s, c, "EXEC")
	assert.Equal(t, protocol.KindError, v.Kind)
	assert.Contains(t, v.Str, "EXEC without MULTI")
}

func TestBLPopFairness(t *testing.T) {
	s := newTestServer()
	a := conn.New(1)
	b := conn.New(2)

	resultsA := make(chan protocol.Value, 1)
	resultsB := make(chan protocol.Value, 1)

	go func() { resultsA <- reply(s, a, "BLPOP", "k", "0") }()
	time.Sleep(20 * time.Millisecond) // ensure A enqueues before B
	go func() { resultsB <- reply(s, b, "BLPOP", "k", "0") }()
	time.Sleep(20 * time.Millisecond)

	reply(s, conn.New(3), "RPUSH", "k", "one", "two")

	var gotA, gotB protocol.Value
	select {
	case gotA = <-resultsA:
	case <-time.After(time.Second):
		t.Fatal("A never woke")
	}
	select {
	case gotB = <-resultsB:
	case <-time.After(time.Second):
		t.Fatal("B never woke")
	}

	require.Equal(t, protocol.KindArray, gotA.Kind)
	assert.Equal(t, "one", gotA.Array[1].Str)
	require.Equal(t, protocol.KindArray, gotB.Kind)
	assert.Equal(t, "two", gotB.Array[1].Str)
}

func TestWaitWithNoReplicas(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)
	v := reply(s, c, "WAIT", "1", "50")
	assert.Equal(t, protocol.KindInteger, v.Kind)
	assert.Equal(t, int64(0), v.Int)
}

func TestWaitWithCaughtUpReplica(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)

	reply(s, c, "SET", "x", "1") // advances master offset

	rc := conn.New(2)
	reply(s, rc, "REPLCONF", "listening-port", "7001")
	s.Replicas.Ack(7001, s.MasterOffset())

	v := reply(s, c, "WAIT", "1", "200")
	assert.Equal(t, protocol.KindInteger, v.Kind)
	assert.Equal(t, int64(1), v.Int)
}

func TestGeoAddPosRoundTrip(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)

	v := reply(s, c, "GEOADD", "p", "-74.006", "40.7128", "ny")
	assert.Equal(t, int64(1), v.Int)

	v = reply(s, c, "GEOPOS", "p", "ny")
	require.Equal(t, protocol.KindArray, v.Kind)
	require.Len(t, v.Array, 1)
	coords := v.Array[0]
	require.Len(t, coords.Array, 2)
	assert.True(t, strings.HasPrefix(coords.Array[0].Str, "-74.0"))
	assert.True(t, strings.HasPrefix(coords.Array[1].Str, "40.7"))
}

func TestSubscriberModeRestriction(t *testing.T) {
	s := newTestServer()
	c := conn.New(1)
	reply(s, c, "SUBSCRIBE", "news")

	v := reply(s, c, "GET", "foo")
	assert.Equal(t, protocol.KindError, v.Kind)
	assert.Contains(t, v.Str, "only (P|S)SUBSCRIBE")
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	s := newTestServer()
	sub := conn.New(1)
	s.RegisterConn(sub)
	reply(s, sub, "SUBSCRIBE", "news")

	pub := conn.New(2)
	v := reply(s, pub, "PUBLISH", "news", "hello")
	assert.Equal(t, int64(1), v.Int)

	select {
	case frame := <-sub.Out:
		assert.Contains(t, string(frame), "hello")
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published frame")
	}
}
