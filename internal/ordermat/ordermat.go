// Package ordermat is the optional derived read model for order
// queries, grounded on the teacher's internal/trading/database.go.
// It is never authoritative — the coordinator's in-memory map remains
// the single writer of order status — this store is a projection
// written alongside event appends, purely to support query convenience
// (e.g. "find my orders by client order ID") without scanning the event
// log.
package ordermat

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/tradecore/internal/events"
)

// orderRow is the GORM-mapped projection of one order.
type orderRow struct {
	gorm.Model
	OrderID       string `gorm:"uniqueIndex"`
	ClientOrderID string `gorm:"index"`
	CorrelationID string
	Symbol        string `gorm:"index"`
	Side          string
	Quantity      float64
	LimitPrice    float64
	UserID        string `gorm:"index"`
	Strategy      string
	Status        string
	FilledPrice   float64
	CreatedAt2    time.Time
	UpdatedAt2    time.Time
}

func (orderRow) TableName() string { return "order_materializations" }

// Store is the GORM-backed order projection. Open with the same
// *gorm.DB as eventlog.GormStore when persistence is enabled, so both
// adapters share one connection and one SQLite file.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the order materialization table at
// path and auto-migrates its schema. Pass the same path given to
// eventlog.NewGormStore to share one database file.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&orderRow{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Upsert writes or replaces the projection row for order. Call this
// whenever the coordinator observes a status transition.
func (s *Store) Upsert(order events.Order) error {
	row := orderRow{
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		CorrelationID: order.CorrelationID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Quantity:      order.Quantity,
		LimitPrice:    order.LimitPrice,
		UserID:        order.UserID,
		Strategy:      order.Strategy,
		Status:        string(order.Status),
		FilledPrice:   order.FilledPrice,
		CreatedAt2:    order.CreatedAt,
		UpdatedAt2:    order.UpdatedAt,
	}

	var existing orderRow
	err := s.db.Where("order_id = ?", order.OrderID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(&row).Error
	}
	if err != nil {
		return err
	}
	row.Model = existing.Model
	return s.db.Save(&row).Error
}

// GetOrder reads one projected order by its ID.
func (s *Store) GetOrder(orderID string) (events.Order, error) {
	var row orderRow
	if err := s.db.Where("order_id = ?", orderID).First(&row).Error; err != nil {
		return events.Order{}, err
	}
	return rowToOrder(row), nil
}

// GetOrderByClientOrderID reads one projected order by the caller's
// client order ID, for idempotent-submission audit lookups.
func (s *Store) GetOrderByClientOrderID(clientOrderID string) (events.Order, error) {
	var row orderRow
	if err := s.db.Where("client_order_id = ?", clientOrderID).First(&row).Error; err != nil {
		return events.Order{}, err
	}
	return rowToOrder(row), nil
}

// ListByUser returns every projected order submitted by userID, newest
// first.
func (s *Store) ListByUser(userID string) ([]events.Order, error) {
	var rows []orderRow
	if err := s.db.Where("user_id = ?", userID).Order("created_at2 desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]events.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToOrder(r))
	}
	return out, nil
}

func rowToOrder(r orderRow) events.Order {
	return events.Order{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		CorrelationID: r.CorrelationID,
		Symbol:        r.Symbol,
		Side:          events.Side(r.Side),
		Quantity:      r.Quantity,
		LimitPrice:    r.LimitPrice,
		UserID:        r.UserID,
		Strategy:      r.Strategy,
		Status:        events.OrderStatus(r.Status),
		FilledPrice:   r.FilledPrice,
		CreatedAt:     r.CreatedAt2,
		UpdatedAt:     r.UpdatedAt2,
	}
}
