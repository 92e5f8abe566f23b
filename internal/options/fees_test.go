package options

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

// price scales a whole-dollar quote to the feed's 8 decimals.
func price(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), uint256.NewInt(1e8))
}

// wei scales a whole-coin amount to 18 decimals.
func wei(v uint64) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
	return new(uint256.Int).Mul(uint256.NewInt(v), scale)
}

func dec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return v
}

// Fee expectations below are hand-computed for amount=1e18, spot=380e8,
// ivRate=4500, period=2d (sqrt(172800s)=415), settlement fee 1%.

func TestComputeFees_CallAtTheMoney(t *testing.T) {
	fees, err := computeFees(2*24*time.Hour, wei(1), price(380), price(380), TypeCall, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// settlement = 1e18 / 100
	if want := dec(t, "10000000000000000"); !fees.SettlementFee.Eq(want) {
		t.Errorf("settlement = %s, want %s", fees.SettlementFee.Dec(), want.Dec())
	}
	if !fees.StrikeFee.IsZero() {
		t.Errorf("strike fee = %s, want 0 at the money", fees.StrikeFee.Dec())
	}
	// period = 1e18 * 415 * 4500 * 380e8 / (380e8 * 1e8) = 18675e12
	if want := dec(t, "18675000000000000"); !fees.PeriodFee.Eq(want) {
		t.Errorf("period fee = %s, want %s", fees.PeriodFee.Dec(), want.Dec())
	}
	sum := new(uint256.Int).Add(fees.SettlementFee, fees.StrikeFee)
	sum.Add(sum, fees.PeriodFee)
	if !fees.Total.Eq(sum) {
		t.Errorf("total = %s, want sum %s", fees.Total.Dec(), sum.Dec())
	}
}

func TestComputeFees_CallStrikeAboveSpot(t *testing.T) {
	fees, err := computeFees(2*24*time.Hour, wei(1), price(400), price(380), TypeCall, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// strike = (400-380)e8 * 1e18 / 380e8, truncated
	if want := dec(t, "52631578947368421"); !fees.StrikeFee.Eq(want) {
		t.Errorf("strike fee = %s, want %s", fees.StrikeFee.Dec(), want.Dec())
	}
	// period numerator carries the strike: 1e18*415*4500*400e8 / (380e8*1e8)
	if want := dec(t, "19657894736842105"); !fees.PeriodFee.Eq(want) {
		t.Errorf("period fee = %s, want %s", fees.PeriodFee.Dec(), want.Dec())
	}
}

func TestComputeFees_CallStrikeBelowSpotNoStrikeFee(t *testing.T) {
	fees, err := computeFees(2*24*time.Hour, wei(1), price(360), price(380), TypeCall, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fees.StrikeFee.IsZero() {
		t.Errorf("strike fee = %s, want 0", fees.StrikeFee.Dec())
	}
}

func TestComputeFees_PutStrikeBelowSpot(t *testing.T) {
	fees, err := computeFees(2*24*time.Hour, wei(1), price(360), price(380), TypePut, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// strike = (380-360)e8 * 1e18 / 380e8
	if want := dec(t, "52631578947368421"); !fees.StrikeFee.Eq(want) {
		t.Errorf("strike fee = %s, want %s", fees.StrikeFee.Dec(), want.Dec())
	}
	// period numerator carries the spot: 1e18*415*4500*380e8 / (360e8*1e8)
	if want := dec(t, "19712500000000000"); !fees.PeriodFee.Eq(want) {
		t.Errorf("period fee = %s, want %s", fees.PeriodFee.Dec(), want.Dec())
	}
}

func TestComputeFees_PutStrikeAboveSpot(t *testing.T) {
	fees, err := computeFees(2*24*time.Hour, wei(1), price(400), price(380), TypePut, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fees.StrikeFee.IsZero() {
		t.Errorf("strike fee = %s, want 0", fees.StrikeFee.Dec())
	}
	// period = 1e18*415*4500*380e8 / (400e8*1e8)
	if want := dec(t, "17741250000000000"); !fees.PeriodFee.Eq(want) {
		t.Errorf("period fee = %s, want %s", fees.PeriodFee.Dec(), want.Dec())
	}
}

func TestComputeFees_ScalesWithSqrtOfPeriod(t *testing.T) {
	short, err := computeFees(24*time.Hour, wei(1), price(380), price(380), TypeCall, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long, err := computeFees(4*24*time.Hour, wei(1), price(380), price(380), TypeCall, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// sqrt(86400)=293, sqrt(345600)=587: just under doubling.
	ratioNum := new(uint256.Int).Mul(long.PeriodFee, uint256.NewInt(293))
	ratioDen := new(uint256.Int).Mul(short.PeriodFee, uint256.NewInt(587))
	if !ratioNum.Eq(ratioDen) {
		t.Errorf("period fees not in sqrt ratio: %s vs %s", long.PeriodFee.Dec(), short.PeriodFee.Dec())
	}
}

func TestComputeFees_InvalidType(t *testing.T) {
	if _, err := computeFees(2*24*time.Hour, wei(1), price(380), price(380), OptionType(0), DefaultConfig()); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}
