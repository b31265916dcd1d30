// Package eventlog is the append-only, correlation-indexed journal that
// is the single source of truth for reconstructing order and position
// state (spec §4.1). Store is memory-resident by default; GormStore is
// the optional persistent adapter for deployments that need state to
// survive a restart.
package eventlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ksred/tradecore/internal/events"
)

// ErrLogFull is returned by Append when a memory-bound deployment has
// configured a capacity and that capacity is exhausted. The default
// MemoryStore has no capacity limit and never returns it.
type ErrLogFull struct{}

func (ErrLogFull) Error() string { return "event log: append rejected, capacity exceeded" }

// Store is the contract every adapter (memory or persistent) satisfies.
type Store interface {
	// Append assigns a strictly increasing timestamp and a unique event
	// ID, then makes the event visible to every subsequent query.
	Append(e events.Event) (string, error)
	ByCorrelation(correlationID string) ([]events.Event, error)
	ByOrder(orderID string) ([]events.Event, error)
	ByType(t events.Type, since, until time.Time) ([]events.Event, error)
	// Recent returns up to limit events, newest first.
	Recent(limit int) ([]events.Event, error)
}

// MemoryStore is the default in-process event log: one writer lock on
// append, readers take a read lock and get a snapshot slice back. This
// mirrors the locking discipline in spec §5.
type MemoryStore struct {
	mu            sync.RWMutex
	all           []events.Event
	byCorrelation map[string][]events.Event
	byOrder       map[string][]events.Event
	lastTimestamp time.Time
	capacity      int // 0 = unbounded
}

// NewMemoryStore builds an unbounded in-memory log. Pass capacity > 0 to
// enable the reject-on-overflow policy spec §4.1 describes as the
// default overflow behavior for memory-bound deployments.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		byCorrelation: make(map[string][]events.Event),
		byOrder:       make(map[string][]events.Event),
		capacity:      capacity,
	}
}

func (s *MemoryStore) Append(e events.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 && len(s.all) >= s.capacity {
		return "", ErrLogFull{}
	}

	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}

	// Strictly increasing timestamps: if the wall clock hasn't advanced
	// since the last append, bump by the minimum representable unit.
	now := time.Now()
	if !now.After(s.lastTimestamp) {
		now = s.lastTimestamp.Add(time.Microsecond)
	}
	e.Timestamp = now
	s.lastTimestamp = now

	s.all = append(s.all, e)
	s.byCorrelation[e.CorrelationID] = append(s.byCorrelation[e.CorrelationID], e)
	s.byOrder[e.OrderID] = append(s.byOrder[e.OrderID], e)

	log.Debug().
		Str("event_id", e.EventID).
		Str("event_type", string(e.EventType)).
		Str("correlation_id", e.CorrelationID).
		Str("order_id", e.OrderID).
		Msg("event appended")

	return e.EventID, nil
}

func (s *MemoryStore) ByCorrelation(correlationID string) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event(nil), s.byCorrelation[correlationID]...), nil
}

func (s *MemoryStore) ByOrder(orderID string) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event(nil), s.byOrder[orderID]...), nil
}

func (s *MemoryStore) ByType(t events.Type, since, until time.Time) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []events.Event
	for _, e := range s.all {
		if e.EventType != t {
			continue
		}
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && e.Timestamp.After(until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) Recent(limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.all) {
		limit = len(s.all)
	}
	out := make([]events.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.all[len(s.all)-1-i]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

func fmtErr(op string, err error) error {
	return fmt.Errorf("eventlog: %s: %w", op, err)
}
