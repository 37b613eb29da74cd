// Package salewindow computes, per sales channel, whether a session is
// currently on sale and when unpurchased holds must be released.  All
// functions are pure; they take the instant to evaluate against as an
// argument and never read the system clock themselves.
package salewindow

import (
	"errors"
	"fmt"
	"time"

	"github.com/entradaslive/ticketing-core/internal/model"
)

// ErrValidation wraps every session-configuration error produced by
// Validate.  Handlers translate it into a 422 response; violations are
// reported at create/update time, never silently corrected.
var ErrValidation = errors.New("invalid session configuration")

// IsChannelOpen reports whether the named channel may sell at the
// given instant.  A channel is open iff it is active and now falls
// within [Start, End] inclusive.  An inactive channel is always
// closed regardless of its stored dates, and a channel with a missing
// bound is never open.
func IsChannelOpen(s model.Session, channel string, now time.Time) bool {
	cw, ok := s.Channels[channel]
	if !ok || !cw.Active {
		return false
	}
	if cw.Start == nil || cw.End == nil {
		return false
	}
	if now.Before(*cw.Start) || now.After(*cw.End) {
		return false
	}
	return true
}

// ReservationExpiry computes the instant at which a hold acquired at
// acquiredAt must be released, from the session's release policy.
//
// BeforeEvent policies store zero or negative minutes relative to the
// celebration time: -120 yields two hours before celebration, 0 the
// celebration instant itself.  AfterHold policies store positive
// minutes relative to the acquisition instant: 1440 yields one day
// after the hold was taken.
func ReservationExpiry(s model.Session, acquiredAt time.Time) time.Time {
	p := s.Release
	if p.Kind == model.ReleaseAfterHold {
		return acquiredAt.Add(time.Duration(p.Minutes) * time.Minute)
	}
	return s.CelebrationTime.Add(time.Duration(p.Minutes) * time.Minute)
}

// AcceptsHolds reports whether a new hold may be created on the
// channel at the given instant.  The channel must be open and the
// expiry a hold acquired now would get must still be in the future;
// creating an already-expired hold is refused up front.
func AcceptsHolds(s model.Session, channel string, now time.Time) bool {
	if !IsChannelOpen(s, channel, now) {
		return false
	}
	return ReservationExpiry(s, now).After(now)
}

// Validate checks a session's sale-window configuration and returns
// an ErrValidation-wrapped error describing the first violation
// found.  Rules, applied to every active channel:
//
//   - Start and End must both be set.
//   - Start must precede the celebration time.
//   - End must not precede Start.
//   - End must not exceed the celebration time.
//
// At least one channel must be active, and when SameDates is set all
// active channels must share one identical window.
func Validate(s model.Session) error {
	var refStart, refEnd *time.Time
	active := 0
	for name, cw := range s.Channels {
		if !cw.Active {
			continue
		}
		active++
		if cw.Start == nil || cw.End == nil {
			return fmt.Errorf("%w: channel %q is active without a sale window", ErrValidation, name)
		}
		if !cw.Start.Before(s.CelebrationTime) {
			return fmt.Errorf("%w: channel %q sale start must precede celebration time", ErrValidation, name)
		}
		if cw.End.Before(*cw.Start) {
			return fmt.Errorf("%w: channel %q sale end precedes sale start", ErrValidation, name)
		}
		if cw.End.After(s.CelebrationTime) {
			return fmt.Errorf("%w: channel %q sale end exceeds celebration time", ErrValidation, name)
		}
		if s.SameDates {
			if refStart == nil {
				refStart, refEnd = cw.Start, cw.End
			} else if !cw.Start.Equal(*refStart) || !cw.End.Equal(*refEnd) {
				return fmt.Errorf("%w: misma_fecha_canales is set but active channels have different windows", ErrValidation)
			}
		}
	}
	if active == 0 {
		return fmt.Errorf("%w: at least one channel must be active", ErrValidation)
	}
	return nil
}
