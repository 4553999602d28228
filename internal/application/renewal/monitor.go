package renewal

import (
	"time"

	"coitrack-backend/internal/domain"
)

// Expiration bands.
const (
	BandExpired  = "expired"
	BandExpiring = "expiring"
	BandCurrent  = "current"
)

// DefaultWindowDays is the renewal window when none is configured.
const DefaultWindowDays = 30

// Monitor classifies COI expiration dates and decides when renewal
// verification is mandatory.
type Monitor struct {
	WindowDays int // 0 means DefaultWindowDays
}

func (m *Monitor) window() int {
	if m.WindowDays <= 0 {
		return DefaultWindowDays
	}
	return m.WindowDays
}

// DaysUntil computes expiration − now in whole days, truncated toward zero
// on the calendar (date difference, not elapsed hours).
func DaysUntil(expiration, now time.Time) int {
	e := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(n).Hours() / 24)
}

// Classify returns the expiration band for a single coverage date.
func (m *Monitor) Classify(expiration, now time.Time) string {
	days := DaysUntil(expiration, now)
	switch {
	case days < 0:
		return BandExpired
	case days <= m.window():
		return BandExpiring
	default:
		return BandCurrent
	}
}

// EarliestExpiration returns the soonest of the per-coverage expiration
// dates, or nil when none is recorded.
func EarliestExpiration(coi *domain.GeneratedCOI) *time.Time {
	var earliest *time.Time
	for _, d := range []*time.Time{
		coi.GLExpirationDate,
		coi.AutoExpirationDate,
		coi.UmbrellaExpirationDate,
		coi.WCExpirationDate,
	} {
		if d == nil {
			continue
		}
		if earliest == nil || d.Before(*earliest) {
			earliest = d
		}
	}
	return earliest
}

// VerificationRequired reports whether the COI is inside the renewal window
// (or past it) without the broker having re-verified this cycle. While true,
// the dashboard must surface an urgent blocking condition and the engine
// rejects further transitions on the COI.
func (m *Monitor) VerificationRequired(coi *domain.GeneratedCOI, now time.Time) bool {
	if coi.Status != domain.StatusActive {
		return false
	}
	if coi.BrokerVerifiedAtRenewal {
		return false
	}
	exp := EarliestExpiration(coi)
	if exp == nil {
		return false
	}
	return m.Classify(*exp, now) != BandCurrent
}
