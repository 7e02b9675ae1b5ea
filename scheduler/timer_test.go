package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTickerRejectsBadRate(t *testing.T) {
	_, err := NewTicker(0)
	assert.Error(t, err)
	_, err = NewTicker(-10)
	assert.Error(t, err)
	_, err = NewTicker(1e12)
	assert.Error(t, err)
}

func TestTickerPeriod(t *testing.T) {
	tk, err := NewTicker(10)
	require.NoError(t, err)
	defer tk.Stop()
	assert.Equal(t, 100*time.Millisecond, tk.Period())
}

func TestTickerFires(t *testing.T) {
	tk, err := NewTicker(200)
	require.NoError(t, err)
	defer tk.Stop()

	assert.False(t, tk.Fired(), "no tick straight away")
	assert.Eventually(t, tk.Fired, time.Second, time.Millisecond)
}

func TestIdleKeepsTheTick(t *testing.T) {
	tk, err := NewTicker(100)
	require.NoError(t, err)
	defer tk.Stop()

	idle := tk.Idle(time.Second)
	start := time.Now()
	idle()
	assert.Less(t, time.Since(start), 500*time.Millisecond, "woken by the tick")
	assert.True(t, tk.Fired())
	assert.False(t, tk.Fired())
}

func TestIdleTimesOut(t *testing.T) {
	tk, err := NewTicker(0.5)
	require.NoError(t, err)
	defer tk.Stop()

	idle := tk.Idle(5 * time.Millisecond)
	idle()
	idle()
	assert.False(t, tk.Fired())
}
