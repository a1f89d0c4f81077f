package trade

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTriggered(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		dir        Direction
		current    float64
		target     float64
		isStopLoss bool
		expected   bool
	}{
		{"long_target_above", Long, 101, 100, false, true},
		{"long_target_below", Long, 99, 100, false, false},
		{"long_sl_below", Long, 99, 100, true, true},
		{"long_sl_above", Long, 101, 100, true, false},
		{"short_target_below", Short, 99, 100, false, true},
		{"short_target_above", Short, 101, 100, false, false},
		{"short_sl_above", Short, 101, 100, true, true},
		{"short_sl_below", Short, 99, 100, true, false},
		{"long_sub_precision_noise", Long, 2399.99999, 2400, false, true},
		{"long_just_short_of_target", Long, 2399.999, 2400, false, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsTriggered(tt.dir, tt.current, tt.target, tt.isStopLoss))
		})
	}
}

func TestIsTriggeredBoundaryInclusive(t *testing.T) {
	t.Parallel()

	for _, dir := range []Direction{Long, Short} {
		for _, p := range []float64{0.5, 90, 2400, 3123.4567} {
			assert.True(t, IsTriggered(dir, p, p, false), "%s target at %v", dir, p)
			assert.True(t, IsTriggered(dir, p, p, true), "%s stop-loss at %v", dir, p)
		}
	}
}

func TestReturnRateAndPnL(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.1, ReturnRate(Long, 100, 110), 1e-9)
	assert.InDelta(t, -0.1, ReturnRate(Long, 100, 90), 1e-9)
	assert.InDelta(t, 0.1, ReturnRate(Short, 100, 90), 1e-9)
	assert.InDelta(t, -0.1, ReturnRate(Short, 100, 110), 1e-9)
	assert.Equal(t, 0.0, ReturnRate(Long, 0, 110))

	assert.InDelta(t, 1.0, PnL(Long, 100, 110, 10), 1e-9)
	assert.InDelta(t, -1.0, PnL(Long, 100, 90, 10), 1e-9)
	assert.InDelta(t, 1.0, PnL(Short, 100, 90, 10), 1e-9)
	assert.InDelta(t, -1.0, PnL(Short, 100, 110, 10), 1e-9)
	assert.Equal(t, 0.0, PnL(Long, 100, 110, 0))
}

func TestPnLNoMovement(t *testing.T) {
	t.Parallel()

	for _, dir := range []Direction{Long, Short} {
		for _, capital := range []float64{0, 1, 333.33, 1000} {
			assert.Equal(t, 0.0, PnL(dir, 2400, 2400, capital))
		}
	}
}

func TestUnrealizedPnL(t *testing.T) {
	t.Parallel()

	entered := &Trade{Direction: Long, EntryPrice: 100, Status: StatusEntered, PnL: 0.5, RemainingPosition: 20}
	assert.InDelta(t, 0.5+2.0, UnrealizedPnL(entered, 110), 1e-9)

	closed := &Trade{Direction: Long, EntryPrice: 100, Status: StatusSLHit, PnL: -1.5}
	assert.Equal(t, -1.5, UnrealizedPnL(closed, 200))

	pending := &Trade{Direction: Short, EntryPrice: 100, Status: StatusPendingEntry, RemainingPosition: 10}
	assert.Equal(t, 0.0, UnrealizedPnL(pending, 50))
}
