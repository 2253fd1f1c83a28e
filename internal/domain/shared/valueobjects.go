package shared

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// IDGenerator produces identifiers for new aggregates.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random (v4) UUIDs.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string { return uuid.NewString() }

// ValidateID checks that id is a well-formed UUID.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	return nil
}

// ClampPercentage bounds p to [0, 100].
func ClampPercentage(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// RoundPercentage converts a computed percentage into the cached integer form.
func RoundPercentage(p float64) int {
	return int(math.Round(ClampPercentage(p)))
}

// Ratio returns 100*part/whole, or 0 when whole is zero.
func Ratio(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return ClampPercentage(100 * part / whole)
}
