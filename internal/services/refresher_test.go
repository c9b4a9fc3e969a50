package services

import (
	"sync/atomic"
	"testing"
	"time"

	"auction-sync/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresherRejectsSubSecondInterval(t *testing.T) {
	r := NewRefresher(500*time.Millisecond, func() {}, logger.NewNop())
	assert.Error(t, r.Start())
	r.Stop()
}

func TestRefresherRefetchesOnSchedule(t *testing.T) {
	var calls atomic.Int32
	r := NewRefresher(time.Second, func() { calls.Add(1) }, logger.NewNop())

	require.NoError(t, r.Start())
	require.NoError(t, r.Start())
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	r.Stop()
	after := calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}
