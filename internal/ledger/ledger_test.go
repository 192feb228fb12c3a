package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestComputeFees(t *testing.T) {
	amount := decimal.NewFromInt(200)
	feeRate := decimal.NewFromFloat(0.10)

	serviceFee, netAmount := ComputeFees(amount, feeRate)

	expectedNet := decimal.NewFromInt(180)
	if !netAmount.Equal(expectedNet) {
		t.Errorf("Expected net amount %s, got %s", expectedNet.String(), netAmount.String())
	}
	expectedFee := decimal.NewFromInt(20)
	if !serviceFee.Equal(expectedFee) {
		t.Errorf("Expected service fee %s, got %s", expectedFee.String(), serviceFee.String())
	}
}

func TestComputeFees_SumIdentity(t *testing.T) {
	feeRate := decimal.NewFromFloat(0.10)
	amounts := []string{"200", "199.99", "0.01", "33.33", "1234.56", "10000"}

	for _, a := range amounts {
		amount, err := decimal.NewFromString(a)
		if err != nil {
			t.Fatalf("Invalid test amount %q: %v", a, err)
		}
		serviceFee, netAmount := ComputeFees(amount, feeRate)
		if !serviceFee.Add(netAmount).Equal(amount) {
			t.Errorf("Fee %s + net %s != amount %s", serviceFee.String(), netAmount.String(), a)
		}
	}
}

func TestComputeEscrowReleaseDate(t *testing.T) {
	completedAt := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

	releaseDate := ComputeEscrowReleaseDate(completedAt, 15)

	expected := time.Date(2025, 3, 16, 14, 30, 0, 0, time.UTC)
	if !releaseDate.Equal(expected) {
		t.Errorf("Expected release date %v, got %v", expected, releaseDate)
	}
}

func TestRefundFraction_Tiers(t *testing.T) {
	policy := DefaultRefundPolicy()

	cases := []struct {
		hours    float64
		expected string
	}{
		{30, "1"},
		{24, "1"},
		{10, "0.5"},
		{2, "0.5"},
		{1, "0"},
		{0, "0"},
		{-5, "0"},
	}

	for _, c := range cases {
		fraction := policy.RefundFraction(decimal.NewFromFloat(c.hours))
		expected, _ := decimal.NewFromString(c.expected)
		if !fraction.Equal(expected) {
			t.Errorf("hours=%v: expected fraction %s, got %s", c.hours, c.expected, fraction.String())
		}
	}
}

func TestComputeRefund(t *testing.T) {
	amount := decimal.NewFromInt(200)

	refund := ComputeRefund(amount, decimal.NewFromFloat(0.5))

	expected := decimal.NewFromInt(100)
	if !refund.Equal(expected) {
		t.Errorf("Expected refund %s, got %s", expected.String(), refund.String())
	}
}

func TestRefundPolicy_Validate(t *testing.T) {
	if err := DefaultRefundPolicy().Validate(); err != nil {
		t.Errorf("Default policy should validate: %v", err)
	}

	bad := RefundPolicy{Tiers: []RefundTier{
		{MinHoursBefore: decimal.NewFromInt(2), Fraction: decimal.NewFromFloat(0.5)},
		{MinHoursBefore: decimal.NewFromInt(24), Fraction: decimal.NewFromInt(1)},
	}}
	if err := bad.Validate(); err == nil {
		t.Error("Expected validation error for non-decreasing thresholds")
	}

	overflow := RefundPolicy{Tiers: []RefundTier{
		{MinHoursBefore: decimal.NewFromInt(24), Fraction: decimal.NewFromFloat(1.5)},
	}}
	if err := overflow.Validate(); err == nil {
		t.Error("Expected validation error for fraction above 1")
	}

	empty := RefundPolicy{}
	if err := empty.Validate(); err == nil {
		t.Error("Expected validation error for empty policy")
	}
}

func TestHoursUntil(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(3 * time.Hour)

	hours := HoursUntil(start, now)
	if !hours.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected 3 hours, got %s", hours.String())
	}
}
