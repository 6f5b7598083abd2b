package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValidRatings is returned when allocation input is empty or has zero total weight
	ErrNoValidRatings = errors.New("no valid ratings to allocate")

	// ErrInvalidWeight is returned when a score weight override is negative or not finite
	ErrInvalidWeight = errors.New("invalid score weight")

	// ErrEmptyPortfolio is returned when the total market value of all positions is zero
	ErrEmptyPortfolio = errors.New("portfolio has zero total market value")

	// ErrMissingPrice is returned when reconciliation needs a price it cannot obtain
	ErrMissingPrice = errors.New("missing price")

	// ErrAuthentication is returned when the ratings source rejects the credentials
	ErrAuthentication = errors.New("authentication failed")

	// ErrSourceUnavailable is returned when the ratings source cannot be reached or answers garbage
	ErrSourceUnavailable = errors.New("ratings source unavailable")

	// ErrPriceUnavailable is returned by price providers when no price can be found
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrConnectionTimeout is returned when a gateway handshake or a bounded wait expires
	ErrConnectionTimeout = errors.New("connection timeout")
)

// MissingPriceError names the symbol reconciliation could not price
type MissingPriceError struct {
	Symbol string
	Err    error
}

func (e *MissingPriceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("missing price for %s: %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("missing price for %s", e.Symbol)
}

// Unwrap returns the underlying provider error
func (e *MissingPriceError) Unwrap() error {
	return e.Err
}

// Is matches ErrMissingPrice
func (e *MissingPriceError) Is(target error) bool {
	return target == ErrMissingPrice
}
