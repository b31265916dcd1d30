// Package idempotency detects duplicate order submissions by a stable
// fingerprint over their identifying fields (spec §4.4).
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ksred/tradecore/internal/events"
)

// Index is a single mutex-protected map; Claim is one critical section.
type Index struct {
	mu     sync.Mutex
	claims map[string]string // fingerprint -> order_id
}

// NewIndex builds an empty idempotency index.
func NewIndex() *Index {
	return &Index{claims: make(map[string]string)}
}

// Fingerprint computes a stable hash of the fields that identify a
// resubmission: user, symbol, side, quantity, limit price, and the
// caller-supplied client order ID. If clientOrderID is empty, dedup is
// disabled by mixing in a nonce unique to this submission.
func Fingerprint(userID, symbol string, side events.Side, quantity, limitPrice float64, clientOrderID string) string {
	nonce := clientOrderID
	if nonce == "" {
		nonce = uuid.New().String()
	}
	raw := fmt.Sprintf("%s|%s|%s|%v|%v|%s", userID, symbol, side, quantity, limitPrice, nonce)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Claim atomically inserts fingerprint if absent. It reports whether the
// claim was newly accepted, and if not, the prior order's ID.
func (idx *Index) Claim(fingerprint, orderID string) (accepted bool, priorOrderID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prior, exists := idx.claims[fingerprint]; exists {
		return false, prior
	}
	idx.claims[fingerprint] = orderID
	return true, ""
}
