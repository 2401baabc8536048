package cycle

import (
	"errors"
	"fmt"
)

// ErrInvalidSettings wraps every Validate failure.
var ErrInvalidSettings = errors.New("invalid cycle settings")

// Settings are the durations and policy knobs for one cycle. All durations
// are seconds.
type Settings struct {
	FocusSeconds         int   `json:"focus_seconds" yaml:"focus_seconds"`
	BaseRestSeconds      int   `json:"base_rest_seconds" yaml:"base_rest_seconds"`
	ExtendedRestSeconds  int   `json:"extended_rest_seconds" yaml:"extended_rest_seconds"`
	ExtendedRestInterval int   `json:"extended_rest_interval" yaml:"extended_rest_interval"`
	MaxDeferrals         int   `json:"max_deferrals" yaml:"max_deferrals"`
	DeferralOptions      []int `json:"deferral_options" yaml:"deferral_options"`
	// Every BonusDivisor deferred seconds add BonusUnit seconds of rest.
	BonusDivisor int `json:"bonus_divisor" yaml:"bonus_divisor"`
	BonusUnit    int `json:"bonus_unit" yaml:"bonus_unit"`
}

// DefaultSettings returns the production cycle: 25m focus, 5m rest, 15m rest
// every fourth cycle, up to three deferrals of 5, 10 or 15 minutes, and one
// extra minute of rest per five minutes deferred.
func DefaultSettings() Settings {
	return Settings{
		FocusSeconds:         25 * 60,
		BaseRestSeconds:      5 * 60,
		ExtendedRestSeconds:  15 * 60,
		ExtendedRestInterval: 4,
		MaxDeferrals:         3,
		DeferralOptions:      []int{300, 600, 900},
		BonusDivisor:         300,
		BonusUnit:            60,
	}
}

// TestSettings returns a compressed cycle where minutes become seconds.
func TestSettings() Settings {
	return Settings{
		FocusSeconds:         25,
		BaseRestSeconds:      5,
		ExtendedRestSeconds:  15,
		ExtendedRestInterval: 4,
		MaxDeferrals:         3,
		DeferralOptions:      []int{5, 10, 15},
		BonusDivisor:         5,
		BonusUnit:            1,
	}
}

// Validate reports the first unusable field.
func (s Settings) Validate() error {
	switch {
	case s.FocusSeconds <= 0:
		return fmt.Errorf("%w: focus_seconds must be positive, got %d", ErrInvalidSettings, s.FocusSeconds)
	case s.BaseRestSeconds <= 0:
		return fmt.Errorf("%w: base_rest_seconds must be positive, got %d", ErrInvalidSettings, s.BaseRestSeconds)
	case s.ExtendedRestSeconds < 0:
		return fmt.Errorf("%w: extended_rest_seconds must not be negative, got %d", ErrInvalidSettings, s.ExtendedRestSeconds)
	case s.ExtendedRestInterval < 0:
		return fmt.Errorf("%w: extended_rest_interval must not be negative, got %d", ErrInvalidSettings, s.ExtendedRestInterval)
	case s.MaxDeferrals < 0:
		return fmt.Errorf("%w: max_deferrals must not be negative, got %d", ErrInvalidSettings, s.MaxDeferrals)
	case s.BonusDivisor <= 0:
		return fmt.Errorf("%w: bonus_divisor must be positive, got %d", ErrInvalidSettings, s.BonusDivisor)
	case s.BonusUnit < 0:
		return fmt.Errorf("%w: bonus_unit must not be negative, got %d", ErrInvalidSettings, s.BonusUnit)
	}
	for _, opt := range s.DeferralOptions {
		if opt <= 0 {
			return fmt.Errorf("%w: deferral option %d is not positive", ErrInvalidSettings, opt)
		}
	}
	return nil
}

// IsExtended reports whether the rest that follows the (completed+1)th focus
// interval is an extended one.
func (s Settings) IsExtended(completed int) bool {
	return s.ExtendedRestInterval > 0 && (completed+1)%s.ExtendedRestInterval == 0
}

// RestSeconds is the rest length for the given deferred total.
func (s Settings) RestSeconds(accumulated int, extended bool) int {
	base := s.BaseRestSeconds
	if extended {
		base = s.ExtendedRestSeconds
	}
	if accumulated <= 0 || s.BonusDivisor <= 0 {
		return base
	}
	return base + (accumulated/s.BonusDivisor)*s.BonusUnit
}

// DefaultDeferral is the first configured option, or 0 when none exist.
func (s Settings) DefaultDeferral() int {
	if len(s.DeferralOptions) == 0 {
		return 0
	}
	return s.DeferralOptions[0]
}

// Clone returns a copy that shares no slice with s.
func (s Settings) Clone() Settings {
	s.DeferralOptions = append([]int(nil), s.DeferralOptions...)
	return s
}

// Equal reports whether s and o describe the same cycle.
func (s Settings) Equal(o Settings) bool {
	if len(s.DeferralOptions) != len(o.DeferralOptions) {
		return false
	}
	for i := range s.DeferralOptions {
		if s.DeferralOptions[i] != o.DeferralOptions[i] {
			return false
		}
	}
	return s.FocusSeconds == o.FocusSeconds &&
		s.BaseRestSeconds == o.BaseRestSeconds &&
		s.ExtendedRestSeconds == o.ExtendedRestSeconds &&
		s.ExtendedRestInterval == o.ExtendedRestInterval &&
		s.MaxDeferrals == o.MaxDeferrals &&
		s.BonusDivisor == o.BonusDivisor &&
		s.BonusUnit == o.BonusUnit
}
