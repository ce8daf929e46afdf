package entity

import "time"

// Quota denial reasons, ordered by check precedence.
const (
	QuotaReasonIPDaily       = "ip_daily"
	QuotaReasonGlobalDaily   = "global_daily"
	QuotaReasonGlobalMonthly = "global_monthly"
)

// QuotaDecision is the outcome of an admission check.
type QuotaDecision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"` // first exhausted ceiling
	Limit     int       `json:"limit"`            // per-identity daily limit
	Remaining int       `json:"remaining"`        // per-identity remaining today
	ResetAt   time.Time `json:"reset_at"`         // next boundary of the exhausted ceiling
}

// ResetHours returns the hours until the exhausted ceiling re-arms,
// rounded to one decimal, measured from now.
func (d QuotaDecision) ResetHours(now time.Time) float64 {
	h := d.ResetAt.Sub(now).Hours()
	if h < 0 {
		h = 0
	}
	return float64(int(h*10+0.5)) / 10
}

// QuotaUsage is a point-in-time snapshot of the counters.
type QuotaUsage struct {
	IdentityToday  int `json:"identity_today"`
	IdentityLimit  int `json:"identity_limit"`
	GlobalToday    int `json:"global_today"`
	GlobalMonth    int `json:"global_month"`
	GlobalDailyMax int `json:"global_daily_max"`
	GlobalMonthMax int `json:"global_month_max"`
}
