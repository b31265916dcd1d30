package eventlog

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/tradecore/internal/events"
)

// eventRow is the GORM-mapped row, grounded on the teacher's
// gorm.Model-tagged tables (internal/clearing/models.go,
// internal/trading/models.go): a unique business ID alongside the
// auto-incrementing primary key, plus a JSON-serialized payload column
// the way TradeNetting.OriginalTrades stored a JSON array as a string.
type eventRow struct {
	gorm.Model
	EventID       string `gorm:"uniqueIndex"`
	EventType     string `gorm:"index"`
	CorrelationID string `gorm:"index"`
	OrderID       string `gorm:"index"`
	Timestamp     time.Time
	PayloadJSON   string
	UserID        string
}

func (eventRow) TableName() string { return "events" }

// GormStore is the optional persistent adapter for the event log,
// backed by gorm.io/gorm + gorm.io/driver/sqlite the way
// internal/database/database.go opened its connection. Selected when
// the composition root is given an EVENT_LOG_DB_PATH.
type GormStore struct {
	db            *gorm.DB
	mu            sync.Mutex // serializes the append-timestamp bump, same discipline as MemoryStore
	lastTimestamp time.Time
}

// NewGormStore opens (creating if necessary) a SQLite-backed event log
// at path and auto-migrates its schema.
func NewGormStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmtErr("open", err)
	}
	if err := db.AutoMigrate(&eventRow{}); err != nil {
		return nil, fmtErr("migrate", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(e events.Event) (string, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmtErr("marshal payload", err)
	}

	s.mu.Lock()
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	now := time.Now()
	if !now.After(s.lastTimestamp) {
		now = s.lastTimestamp.Add(time.Microsecond)
	}
	e.Timestamp = now
	s.lastTimestamp = now
	s.mu.Unlock()

	row := eventRow{
		EventID:       e.EventID,
		EventType:     string(e.EventType),
		CorrelationID: e.CorrelationID,
		OrderID:       e.OrderID,
		Timestamp:     e.Timestamp,
		PayloadJSON:   string(payload),
		UserID:        e.UserID,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmtErr("append", err)
	}

	log.Debug().
		Str("event_id", e.EventID).
		Str("event_type", string(e.EventType)).
		Msg("event persisted")

	return e.EventID, nil
}

func (s *GormStore) ByCorrelation(correlationID string) ([]events.Event, error) {
	var rows []eventRow
	if err := s.db.Where("correlation_id = ?", correlationID).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, fmtErr("by correlation", err)
	}
	return rowsToEvents(rows)
}

func (s *GormStore) ByOrder(orderID string) ([]events.Event, error) {
	var rows []eventRow
	if err := s.db.Where("order_id = ?", orderID).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, fmtErr("by order", err)
	}
	return rowsToEvents(rows)
}

func (s *GormStore) ByType(t events.Type, since, until time.Time) ([]events.Event, error) {
	q := s.db.Where("event_type = ?", string(t))
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	if !until.IsZero() {
		q = q.Where("timestamp <= ?", until)
	}
	var rows []eventRow
	if err := q.Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, fmtErr("by type", err)
	}
	return rowsToEvents(rows)
}

func (s *GormStore) Recent(limit int) ([]events.Event, error) {
	q := s.db.Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []eventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmtErr("recent", err)
	}
	return rowsToEvents(rows)
}

func rowsToEvents(rows []eventRow) ([]events.Event, error) {
	out := make([]events.Event, 0, len(rows))
	for _, r := range rows {
		payload, err := decodePayload(events.Type(r.EventType), r.PayloadJSON)
		if err != nil {
			return nil, fmtErr("decode payload", err)
		}
		out = append(out, events.Event{
			EventID:       r.EventID,
			EventType:     events.Type(r.EventType),
			CorrelationID: r.CorrelationID,
			OrderID:       r.OrderID,
			Timestamp:     r.Timestamp,
			Payload:       payload,
			UserID:        r.UserID,
		})
	}
	return out, nil
}

func decodePayload(t events.Type, raw string) (events.Payload, error) {
	var target events.Payload
	switch t {
	case events.OrderCreated:
		target = &events.OrderCreatedPayload{}
	case events.RiskCheckStarted:
		target = &events.RiskCheckStartedPayload{}
	case events.RiskCheckPassed:
		target = &events.RiskCheckPassedPayload{}
	case events.RiskCheckFailed:
		target = &events.RiskCheckFailedPayload{}
	case events.ExecutionStarted:
		target = &events.ExecutionStartedPayload{}
	case events.ExecutionCompleted:
		target = &events.ExecutionCompletedPayload{}
	case events.ExecutionFailed:
		target = &events.ExecutionFailedPayload{}
	case events.RiskConfigUpdated:
		target = &events.RiskConfigUpdatedPayload{}
	case events.KillSwitchToggled:
		target = &events.KillSwitchToggledPayload{}
	case events.PositionUpdated:
		target = &events.PositionUpdatedPayload{}
	default:
		target = &events.RiskCheckStartedPayload{}
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return nil, err
	}
	return target, nil
}

var _ Store = (*GormStore)(nil)
