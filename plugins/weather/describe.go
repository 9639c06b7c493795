package weather

import (
	"fmt"
	"strings"
	"time"

	"weatherbot/internal/recurrence"
)

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "一",
	time.Tuesday:   "二",
	time.Wednesday: "三",
	time.Thursday:  "四",
	time.Friday:    "五",
	time.Saturday:  "六",
	time.Sunday:    "日",
}

// describeRule renders a rule back into the user's vocabulary, e.g.
// "每天 08:00" or "每周一、三、五 09:30".
func describeRule(r recurrence.Rule) string {
	when := fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
	if len(r.DaysOfWeek) == 0 {
		return "每天 " + when
	}
	names := make([]string, 0, len(r.DaysOfWeek))
	for _, d := range r.DaysOfWeek {
		names = append(names, weekdayNames[d])
	}
	return "每周" + strings.Join(names, "、") + " " + when
}
