package validator

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/textileio/bidder-core/amount"
	"github.com/textileio/bidder-core/notify"
)

// MaxInputDecimals is the maximum number of fractional digits a user can type.
const MaxInputDecimals = 2

var (
	// ErrTooManyDecimals is returned when an input has more than MaxInputDecimals fractional digits.
	ErrTooManyDecimals = errors.New("too many decimals")
	// ErrEmptyInput is returned when validating an empty input.
	ErrEmptyInput = errors.New("empty input")
	// ErrBelowMinimum is matched by a ValidationError with ReasonBelowMinimum.
	ErrBelowMinimum = errors.New("bid below minimum")
	// ErrMalformed is matched by a ValidationError with ReasonMalformed.
	ErrMalformed = errors.New("malformed bid amount")
)

// Reason is the reason a bid was rejected.
type Reason int

const (
	// ReasonMalformed indicates the input couldn't be parsed.
	ReasonMalformed Reason = iota
	// ReasonBelowMinimum indicates the input is lower than the minimum next bid.
	ReasonBelowMinimum
)

// String returns a string-encoded reason.
func (r Reason) String() string {
	switch r {
	case ReasonMalformed:
		return "malformed"
	case ReasonBelowMinimum:
		return "below-minimum"
	default:
		return "invalid"
	}
}

// ValidationError describes a rejected bid input.
type ValidationError struct {
	Reason Reason
	// Minimum and MinimumDisplay are set for ReasonBelowMinimum.
	Minimum        *big.Int
	MinimumDisplay string
	Err            error
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonBelowMinimum:
		return fmt.Sprintf("bid below minimum of %s ETH", e.MinimumDisplay)
	default:
		return fmt.Sprintf("malformed bid amount: %v", e.Err)
	}
}

// Is makes errors.Is match the sentinel for the reason.
func (e *ValidationError) Is(target error) bool {
	switch e.Reason {
	case ReasonBelowMinimum:
		return target == ErrBelowMinimum
	case ReasonMalformed:
		return target == ErrMalformed
	}
	return false
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SanitizeInput rejects inputs with more than MaxInputDecimals fractional digits.
func SanitizeInput(raw string) (string, error) {
	if i := strings.Index(raw, "."); i >= 0 && len(raw)-i-1 > MaxInputDecimals {
		return "", ErrTooManyDecimals
	}
	return raw, nil
}

// Validator validates bid inputs against the minimum next bid.
type Validator struct {
	displayFloor string
}

// New returns a new Validator. displayFloor is shown when the minimum bid is zero.
func New(displayFloor string) *Validator {
	if displayFloor == "" {
		displayFloor = amount.DefaultDisplayFloor
	}
	return &Validator{displayFloor: displayFloor}
}

// DisplayFloor returns the configured display floor.
func (v *Validator) DisplayFloor() string {
	return v.displayFloor
}

// Keystroke applies raw as the new input if it's acceptable, otherwise prev is kept.
func (v *Validator) Keystroke(prev, raw string) string {
	s, err := SanitizeInput(raw)
	if err != nil {
		return prev
	}
	return s
}

// Validate parses raw and checks it's at least minBid.
func (v *Validator) Validate(raw string, minBid *big.Int) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyInput
	}
	bid, err := amount.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Reason: ReasonMalformed, Err: err}
	}
	if minBid != nil && bid.Cmp(minBid) < 0 {
		return nil, &ValidationError{
			Reason:         ReasonBelowMinimum,
			Minimum:        new(big.Int).Set(minBid),
			MinimumDisplay: v.FormatMinimum(minBid),
		}
	}
	return bid, nil
}

// FormatMinimum formats minBid for display using the configured floor.
func (v *Validator) FormatMinimum(minBid *big.Int) string {
	return amount.FormatForDisplay(minBid, v.displayFloor)
}

// BelowMinimumNotification builds the alert shown when a bid is below the minimum.
func BelowMinimumNotification(minimumDisplay string) notify.Notification {
	return notify.Notification{
		Title: "Insufficient bid amount 🤏",
		Message: fmt.Sprintf(
			"Please place a bid higher than or equal to the minimum bid amount of %s ETH",
			minimumDisplay,
		),
		Show: true,
	}
}
