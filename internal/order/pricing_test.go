package order

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundToTick(t *testing.T) {
	testCases := []struct {
		desc     string
		price    string
		tick     string
		expected string
	}{
		{"exact penny", "2.53", "0.01", "2.53"},
		{"nickel down", "2.52", "0.05", "2.50"},
		{"nickel up", "2.53", "0.05", "2.55"},
		{"nickel halfway rounds away", "2.525", "0.05", "2.55"},
		{"credit nickel", "-1.03", "0.05", "-1.05"},
		{"credit penny", "-1.034", "0.01", "-1.03"},
		{"zero tick falls back to cents", "2.534", "0", "2.53"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			price := decimal.RequireFromString(tc.price)
			tick := decimal.RequireFromString(tc.tick)

			got := RoundToTick(price, tick).StringFixed(2)
			if got != tc.expected {
				t.Fatalf("rounded price mismatch! should be %s but got %s", tc.expected, got)
			}
		})
	}
}

func TestRollNetPrice(t *testing.T) {
	testCases := []struct {
		desc           string
		oldDebit       string
		newCredit      string
		oldQty, newQty int
		expected       string
	}{
		{"even roll for credit", "1.20", "2.00", 1, 1, "-0.80"},
		{"even roll for debit", "2.50", "2.00", 1, 1, "0.50"},
		{"uneven roll scales both sides", "1.00", "0.80", 2, 3, "-0.40"},
		{"flat", "1.50", "1.50", 1, 1, "0.00"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := RollNetPrice(
				decimal.RequireFromString(tc.oldDebit),
				decimal.RequireFromString(tc.newCredit),
				tc.oldQty, tc.newQty,
			).StringFixed(2)
			if got != tc.expected {
				t.Fatalf("net price mismatch! should be %s but got %s", tc.expected, got)
			}
		})
	}
}

func TestAdjustPercent(t *testing.T) {
	testCases := []struct {
		desc     string
		price    string
		pct      int
		expected string
	}{
		{"full asks market price", "0.50", 100, "0.50"},
		{"small unsigned credit adjusts by cents", "0.50", 95, "0.45"},
		{"small signed credit moves toward zero", "-0.50", 95, "-0.45"},
		{"large price scales proportionally", "200.00", 95, "190.00"},
		{"invalid pct keeps price", "0.50", 0, "0.50"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := AdjustPercent(decimal.RequireFromString(tc.price), tc.pct).StringFixed(2)
			if got != tc.expected {
				t.Fatalf("adjusted price mismatch! should be %s but got %s", tc.expected, got)
			}
		})
	}
}
