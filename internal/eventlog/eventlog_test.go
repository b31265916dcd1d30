package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/tradecore/internal/events"
)

func TestAppendAssignsIDAndIndexes(t *testing.T) {
	s := NewMemoryStore(0)

	id, err := s.Append(events.Event{
		EventType:     events.OrderCreated,
		CorrelationID: "corr-1",
		OrderID:       "order-1",
		Payload:       events.OrderCreatedPayload{Symbol: "AAPL"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	byCorr, err := s.ByCorrelation("corr-1")
	require.NoError(t, err)
	require.Len(t, byCorr, 1)
	assert.Equal(t, id, byCorr[0].EventID)

	byOrder, err := s.ByOrder("order-1")
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
}

func TestAppendTimestampsAreStrictlyIncreasing(t *testing.T) {
	s := NewMemoryStore(0)

	var last time.Time
	for i := 0; i < 5; i++ {
		_, err := s.Append(events.Event{EventType: events.RiskCheckStarted, CorrelationID: "c", Payload: events.RiskCheckStartedPayload{}})
		require.NoError(t, err)
		all, _ := s.Recent(1)
		require.True(t, all[0].Timestamp.After(last), "timestamp %v must be strictly after previous %v", all[0].Timestamp, last)
		last = all[0].Timestamp
	}
}

func TestAppendRejectsOverCapacity(t *testing.T) {
	s := NewMemoryStore(1)

	_, err := s.Append(events.Event{EventType: events.OrderCreated, Payload: events.OrderCreatedPayload{}})
	require.NoError(t, err)

	_, err = s.Append(events.Event{EventType: events.OrderCreated, Payload: events.OrderCreatedPayload{}})
	assert.ErrorIs(t, err, ErrLogFull{})
}

func TestByTypeFiltersByWindow(t *testing.T) {
	s := NewMemoryStore(0)
	s.Append(events.Event{EventType: events.RiskCheckPassed, Payload: events.RiskCheckPassedPayload{}})
	s.Append(events.Event{EventType: events.RiskCheckFailed, Payload: events.RiskCheckFailedPayload{}})

	passed, err := s.ByType(events.RiskCheckPassed, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, passed, 1)

	future, err := s.ByType(events.RiskCheckPassed, time.Now().Add(time.Hour), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, future)
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	s := NewMemoryStore(0)
	s.Append(events.Event{EventType: events.OrderCreated, OrderID: "first", Payload: events.OrderCreatedPayload{}})
	s.Append(events.Event{EventType: events.OrderCreated, OrderID: "second", Payload: events.OrderCreatedPayload{}})

	recent, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].OrderID)
	assert.Equal(t, "first", recent[1].OrderID)
}
