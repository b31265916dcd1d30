package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderNotional(t *testing.T) {
	o := &Order{Quantity: 10, LimitPrice: 25}
	assert.Equal(t, 250.0, o.Notional())
}

func TestPositionNotionalIsSigned(t *testing.T) {
	long := Position{Quantity: 10, AveragePrice: 80, LastFillPrice: 100}
	short := Position{Quantity: -10, AveragePrice: 80, LastFillPrice: 100}
	assert.Equal(t, 1000.0, long.Notional())
	assert.Equal(t, -1000.0, short.Notional())
}

func TestPositionNotionalIgnoresAveragePrice(t *testing.T) {
	pos := Position{Quantity: 10, AveragePrice: 9999, LastFillPrice: 50}
	assert.Equal(t, 500.0, pos.Notional(), "Notional must use LastFillPrice, not AveragePrice")
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, StatusExecuted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusApproved.Terminal())
}

func TestOrderValidateRejectsMalformedOrders(t *testing.T) {
	valid := &Order{Symbol: "AAPL", Side: Buy, Quantity: 10, LimitPrice: 100}
	assert.NoError(t, valid.Validate())

	nonPositiveQty := &Order{Symbol: "AAPL", Side: Buy, Quantity: 0, LimitPrice: 100}
	assert.Error(t, nonPositiveQty.Validate())

	negativeQty := &Order{Symbol: "AAPL", Side: Sell, Quantity: -5, LimitPrice: 100}
	assert.Error(t, negativeQty.Validate())

	unknownSide := &Order{Symbol: "AAPL", Side: Side("HOLD"), Quantity: 10, LimitPrice: 100}
	assert.Error(t, unknownSide.Validate())

	negativePrice := &Order{Symbol: "AAPL", Side: Buy, Quantity: 10, LimitPrice: -1}
	assert.Error(t, negativePrice.Validate())

	zeroPrice := &Order{Symbol: "AAPL", Side: Buy, Quantity: 10, LimitPrice: 0}
	assert.NoError(t, zeroPrice.Validate(), "limit_price == 0 is non-negative, spec only rejects negative")
}

func TestRiskConfigValidateRejectsNegativeLimits(t *testing.T) {
	cfg := RiskConfig{MaxPositionSize: -1, MaxDailyVolume: 1, MaxNetExposure: 1, MaxGrossExposure: 1}
	assert.Error(t, cfg.Validate())

	cfg = RiskConfig{MaxPositionSize: 1, MaxDailyVolume: 1, MaxNetExposure: 1, MaxGrossExposure: 1}
	assert.NoError(t, cfg.Validate())
}
