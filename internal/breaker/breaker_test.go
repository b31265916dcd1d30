package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.Record(false)
		require.Equal(t, Closed, b.State())
	}

	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.State())
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b := New(1, time.Minute)
	b.Allow()
	b.Record(false)
	require.Equal(t, Open, b.State())

	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b := New(1, time.Millisecond)
	b.Allow()
	b.Record(false)
	require.Equal(t, Open, b.State())

	time.Sleep(5 * time.Millisecond)

	assert.True(t, b.Allow())
	require.Equal(t, HalfOpen, b.State())

	// A concurrent attempt during the same half-open window is rejected.
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b := New(1, time.Millisecond)
	b.Allow()
	b.Record(false)
	time.Sleep(5 * time.Millisecond)

	require.True(t, b.Allow())
	b.Record(true)

	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(1, time.Millisecond)
	b.Allow()
	b.Record(false)
	time.Sleep(5 * time.Millisecond)

	require.True(t, b.Allow())
	b.Record(false)

	assert.Equal(t, Open, b.State())
}

func TestBreakerSuccessResetsConsecutiveFailures(t *testing.T) {
	b := New(2, time.Minute)
	b.Allow()
	b.Record(false)
	b.Allow()
	b.Record(true)
	b.Allow()
	b.Record(false)

	assert.Equal(t, Closed, b.State())
}
