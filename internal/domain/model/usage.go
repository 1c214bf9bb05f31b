package model

import "time"

type WarningLevel string

const (
	WarningSafe     WarningLevel = "safe"
	WarningWarning  WarningLevel = "warning"
	WarningCritical WarningLevel = "critical"
	WarningExceeded WarningLevel = "exceeded"
)

// Thresholds in percent of the limit.
const (
	warningPercent  = 80
	criticalPercent = 95
)

// UsageCounter is per tenant, per user, per billing period.
type UsageCounter struct {
	TenantID    string
	UserID      string
	Used        int64
	Limit       int64
	Overage     int64 // extra units allowed past Limit
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Ceiling is the highest Used value a reservation may produce.
func (c UsageCounter) Ceiling() int64 { return c.Limit + c.Overage }

// LevelFor classifies used/limit. used == limit is critical; anything past it is exceeded.
func LevelFor(used, limit int64) WarningLevel {
	if used > limit {
		return WarningExceeded
	}
	if limit <= 0 {
		return WarningCritical
	}
	switch {
	case used*100 >= limit*criticalPercent:
		return WarningCritical
	case used*100 >= limit*warningPercent:
		return WarningWarning
	default:
		return WarningSafe
	}
}

// UsageState is what the enforcer reports after a reservation attempt.
type UsageState struct {
	Used      int64
	Limit     int64
	PeriodEnd time.Time
	Level     WarningLevel
}

// NextPeriod returns the billing period containing now, starting from start and
// stepping whole months.
func NextPeriod(start, now time.Time) (time.Time, time.Time) {
	if start.IsZero() {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	end := start.AddDate(0, 1, 0)
	for !now.Before(end) {
		start = end
		end = start.AddDate(0, 1, 0)
	}
	return start, end
}
