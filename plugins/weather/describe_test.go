package weather

import (
	"testing"
	"time"

	"weatherbot/internal/recurrence"
)

func TestDescribeRule(t *testing.T) {
	daily := recurrence.Rule{Minute: 0, Hour: 8}
	if got := describeRule(daily); got != "每天 08:00" {
		t.Errorf("daily = %q", got)
	}
	weekly := recurrence.Rule{
		Minute: 30, Hour: 9,
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	}
	if got := describeRule(weekly); got != "每周一、三、五 09:30" {
		t.Errorf("weekly = %q", got)
	}
}
