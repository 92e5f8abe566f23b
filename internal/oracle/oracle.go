// Package oracle defines the spot price feed consumed by option pricing.
// Prices carry 8 decimal places, matching the upstream aggregator rounds.
package oracle

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrInvalidPrice is returned when the feed reports a zero price.
var ErrInvalidPrice = errors.New("oracle: invalid price")

// RoundData is the subset of an aggregator round the engine consumes.
type RoundData struct {
	RoundID uint64
	Answer  *uint256.Int // spot price, 8 decimals
}

// PriceProvider supplies the latest spot price.
type PriceProvider interface {
	LatestRoundData() (RoundData, error)
}

// FakeProvider is a settable provider for tests and development.
type FakeProvider struct {
	roundID uint64
	price   *uint256.Int
}

// NewFakeProvider creates a provider answering with the given 8-decimal price.
func NewFakeProvider(price *uint256.Int) *FakeProvider {
	return &FakeProvider{roundID: 1, price: new(uint256.Int).Set(price)}
}

// SetPrice updates the answer and advances the round.
func (f *FakeProvider) SetPrice(price *uint256.Int) {
	f.roundID++
	f.price = new(uint256.Int).Set(price)
}

// LatestRoundData returns the current round.
func (f *FakeProvider) LatestRoundData() (RoundData, error) {
	if f.price == nil || f.price.IsZero() {
		return RoundData{}, ErrInvalidPrice
	}
	return RoundData{RoundID: f.roundID, Answer: new(uint256.Int).Set(f.price)}, nil
}
