package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSaver struct {
	calls int64
}

func (c *countingSaver) SaveNow() error {
	atomic.AddInt64(&c.calls, 1)
	return nil
}

func TestStartRunsSaveOnInterval(t *testing.T) {
	saver := &countingSaver{}
	require.NoError(t, Start(saver, 20*time.Millisecond))
	defer Shutdown()

	time.Sleep(100 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&saver.calls), int64(2))
}

func TestStartWithZeroIntervalDisablesAutosave(t *testing.T) {
	saver := &countingSaver{}
	require.NoError(t, Start(saver, 0))
	defer Shutdown()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&saver.calls))
}
