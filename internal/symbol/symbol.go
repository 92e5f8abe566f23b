// Package symbol handles option instrument name parsing and validation.
// Instrument names identify a series the way derivative venues quote them,
// so clients can request quotes without spelling out every parameter.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Supported option types.
const (
	TypeCall = "C"
	TypePut  = "P"
)

// instrumentRegex matches: {ASSET}-{YYYYMMDD}-{strike}-{C|P}
// Example: HGX-20260925-380-C
var instrumentRegex = regexp.MustCompile(
	`^([A-Z0-9]+)-(\d{8})-(\d+(?:\.\d+)?)-([CP])$`,
)

var (
	ErrInvalidInstrument = errors.New("symbol: invalid instrument format")
	ErrInvalidStrike     = errors.New("symbol: strike must be positive")
)

// Instrument represents a parsed option series.
type Instrument struct {
	Name   string          `json:"name"`
	Asset  string          `json:"asset"`
	Expiry time.Time       `json:"expiry"`
	Strike decimal.Decimal `json:"strike"`
	Type   string          `json:"type"` // "C" or "P"
}

// Parse parses and validates an instrument name.
// Format: {ASSET}-{YYYYMMDD}-{strike}-{C|P}
func Parse(name string) (*Instrument, error) {
	matches := instrumentRegex.FindStringSubmatch(strings.ToUpper(name))
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected ASSET-YYYYMMDD-STRIKE-C|P)",
			ErrInvalidInstrument, name)
	}

	asset := matches[1]
	dateStr := matches[2]
	strikeStr := matches[3]
	optType := matches[4]

	expiry, err := time.Parse("20060102", dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidInstrument, dateStr)
	}

	strike, err := decimal.NewFromString(strikeStr)
	if err != nil || !strike.IsPositive() {
		return nil, ErrInvalidStrike
	}

	return &Instrument{
		Name:   strings.ToUpper(name),
		Asset:  asset,
		Expiry: expiry.UTC(),
		Strike: strike,
		Type:   optType,
	}, nil
}

// Format renders an instrument name from its parts.
func Format(asset string, expiry time.Time, strike decimal.Decimal, optType string) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToUpper(asset), expiry.Format("20060102"), strike.String(), optType)
}

// PeriodUntil returns the duration from now until the instrument settles.
// Options expire at 08:00 UTC on the expiry date, the conventional
// settlement hour.
func (i *Instrument) PeriodUntil(now time.Time) time.Duration {
	settlement := time.Date(i.Expiry.Year(), i.Expiry.Month(), i.Expiry.Day(),
		8, 0, 0, 0, time.UTC)
	return settlement.Sub(now)
}
