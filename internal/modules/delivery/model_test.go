// README: State machine transition table and payout computation tests.
package delivery

import (
	"testing"

	"lastmile/internal/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusPending, StatusReadyForPickup, true},
		{StatusReadyForPickup, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		// cancel / timeout resets
		{StatusReadyForPickup, StatusPending, true},
		{StatusOutForDelivery, StatusPending, true},
		// invalid: skipping states
		{StatusPending, StatusOutForDelivery, false},
		{StatusPending, StatusDelivered, false},
		{StatusReadyForPickup, StatusDelivered, false},
		// invalid: delivered is terminal
		{StatusDelivered, StatusPending, false},
		{StatusDelivered, StatusReadyForPickup, false},
		// invalid: pending cannot cancel to itself
		{StatusPending, StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestComputeEarnings(t *testing.T) {
	cases := []struct {
		base, bonus int64
		line        int64
		want        int64
	}{
		{500, 200, 20000, 1700}, // 5% of 200.00 = 10.00
		{500, 200, 0, 700},
		{0, 0, 10000, 500},
		{500, 200, 39, 701}, // share truncates toward zero
	}
	for _, tc := range cases {
		got := ComputeEarnings(tc.base, tc.bonus, types.Money{Amount: tc.line, Currency: "USD"})
		if got.Amount != tc.want {
			t.Errorf("ComputeEarnings(%d, %d, %d) = %d, want %d", tc.base, tc.bonus, tc.line, got.Amount, tc.want)
		}
		if got.Currency != "USD" {
			t.Errorf("currency = %q, want USD", got.Currency)
		}
	}
}
