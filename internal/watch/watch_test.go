package watch

import (
	"testing"
	"time"
)

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC)
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-25 * time.Hour)
	justNow := now.Add(-time.Minute)

	cases := []struct {
		name string
		spec string
		last *time.Time
		want bool
	}{
		{"daily_never_run", "@daily", nil, true},
		{"daily_stale", "@daily", &dayAgo, true},
		{"daily_fresh", "@daily", &hourAgo, false},
		{"hourly_stale", "@hourly", &hourAgo, true},
		{"hourly_fresh", "@hourly", &justNow, false},
		{"cron_never_run", "0 7 * * *", nil, true},
		{"cron_due", "0 * * * *", &hourAgo, true},
		{"cron_not_due", "0 0 1 1 *", &justNow, false},
		{"garbage_never_run", "not a cron", nil, true},
		{"garbage_stale", "not a cron", &dayAgo, true},
		{"garbage_fresh", "not a cron", &hourAgo, false},
	}
	for _, c := range cases {
		if got := isDue(c.spec, c.last, now); got != c.want {
			t.Fatalf("%s: isDue(%q) = %v, want %v", c.name, c.spec, got, c.want)
		}
	}
}
