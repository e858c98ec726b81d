package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestAllocateFullyFunded(t *testing.T) {
	split, err := Allocate(
		dec("100000"),
		DueAmounts{Capital: dec("60000"), Interest: dec("10000"), VAT: dec("1800")},
		ContributionPolicy{SavingsRate: dec("0.1"), ShareAmount: dec("5000")},
		decimal.Zero,
	)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	checks := []struct {
		name string
		got  decimal.Decimal
		want decimal.Decimal
	}{
		{"capital", split.Capital, dec("60000")},
		{"interest", split.Interest, dec("10000")},
		{"vat", split.VAT, dec("1800")},
		{"savings", split.Savings, dec("10000")},
		{"shares", split.Shares, dec("5000")},
		{"remaining", split.RemainingSalary, dec("13200")},
	}
	for _, check := range checks {
		if !check.got.Equal(check.want) {
			t.Fatalf("%s: expected %s, got %s", check.name, check.want, check.got)
		}
	}
	if !split.Total().Equal(dec("100000")) {
		t.Fatalf("sum invariant violated: %s", split.Total())
	}
}

func TestAllocateShortfallStopsAtCapital(t *testing.T) {
	split, err := Allocate(
		dec("50000"),
		DueAmounts{Capital: dec("60000"), Interest: dec("10000"), VAT: dec("1800")},
		ContributionPolicy{SavingsRate: dec("0.1"), ShareAmount: dec("5000")},
		dec("2000"),
	)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !split.Capital.Equal(dec("50000")) {
		t.Fatalf("expected capital to absorb entire balance, got %s", split.Capital)
	}
	for name, got := range map[string]decimal.Decimal{
		"interest":  split.Interest,
		"vat":       split.VAT,
		"savings":   split.Savings,
		"shares":    split.Shares,
		"charges":   split.Charges,
		"remaining": split.RemainingSalary,
	} {
		if !got.IsZero() {
			t.Fatalf("%s: expected zero under shortfall, got %s", name, got)
		}
	}
}

func TestAllocateShortfallMidWaterfall(t *testing.T) {
	// Net covers capital fully, interest partially.
	split, err := Allocate(
		dec("65000"),
		DueAmounts{Capital: dec("60000"), Interest: dec("10000"), VAT: dec("1800")},
		ContributionPolicy{SavingsRate: dec("0.1"), ShareAmount: dec("5000")},
		decimal.Zero,
	)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !split.Capital.Equal(dec("60000")) {
		t.Fatalf("expected full capital, got %s", split.Capital)
	}
	if !split.Interest.Equal(dec("5000")) {
		t.Fatalf("expected partial interest 5000, got %s", split.Interest)
	}
	if !split.VAT.IsZero() || !split.Savings.IsZero() || !split.Shares.IsZero() {
		t.Fatalf("lower categories must be zero: %+v", split)
	}
	if !split.Total().Equal(dec("65000")) {
		t.Fatalf("sum invariant violated: %s", split.Total())
	}
}

func TestAllocateRoundingAbsorbedByRemainder(t *testing.T) {
	// 3.33% of 100.01 rounds; remainder must absorb the drift.
	split, err := Allocate(
		dec("100.01"),
		DueAmounts{},
		ContributionPolicy{SavingsRate: dec("0.0333")},
		decimal.Zero,
	)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if split.Savings.Exponent() < -2 {
		t.Fatalf("savings not rounded to cents: %s", split.Savings)
	}
	if !split.Total().Equal(dec("100.01")) {
		t.Fatalf("sum invariant violated: %s", split.Total())
	}
}

func TestAllocateZeroNet(t *testing.T) {
	split, err := Allocate(
		decimal.Zero,
		DueAmounts{Capital: dec("100")},
		ContributionPolicy{},
		decimal.Zero,
	)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !split.Total().IsZero() {
		t.Fatalf("expected empty split, got %+v", split)
	}
}

func TestAllocateRejectsNegative(t *testing.T) {
	if _, err := Allocate(dec("-1"), DueAmounts{}, ContributionPolicy{}, decimal.Zero); err == nil {
		t.Fatalf("expected error for negative net")
	}
	if _, err := Allocate(dec("100"), DueAmounts{Capital: dec("-5")}, ContributionPolicy{}, decimal.Zero); err == nil {
		t.Fatalf("expected error for negative due")
	}
}
