// Package recurrence turns natural-language schedule phrases into
// normalized cron-style recurrence rules.
//
// The grammar is closed and deterministic: the same phrase always yields
// the same rule, and anything outside the grammar is rejected with a typed
// error instead of being guessed at.
package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Rule is a normalized recurrence: a daily time plus an optional weekday
// set, equivalent to a 5-field cron expression with an explicit timezone.
//
// An empty DaysOfWeek means the rule fires every day.
type Rule struct {
	Minute     int
	Hour       int
	DaysOfWeek []time.Weekday
	Timezone   string // IANA zone; stamped by the caller at creation time
}

// CronSpec renders the rule as a standard 5-field cron expression
// (minute hour dom month dow). Day-of-month and month are always wildcards.
func (r Rule) CronSpec() string {
	return fmt.Sprintf("%d %d * * %s", r.Minute, r.Hour, r.DowField())
}

// DowField renders just the day-of-week field ("*" or a sorted comma list,
// Sunday=0). It is the stored form; ParseDowField is its inverse.
func (r Rule) DowField() string {
	if len(r.DaysOfWeek) == 0 {
		return "*"
	}
	days := append([]time.Weekday(nil), r.DaysOfWeek...)
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d))) // cron: Sunday=0
	}
	return strings.Join(parts, ",")
}

// Validate reports whether the rule resolves to a real schedule.
func (r Rule) Validate() error {
	if r.Hour < 0 || r.Hour > 23 {
		return &ParseError{Kind: OutOfRange, Detail: fmt.Sprintf("hour %d", r.Hour)}
	}
	if r.Minute < 0 || r.Minute > 59 {
		return &ParseError{Kind: OutOfRange, Detail: fmt.Sprintf("minute %d", r.Minute)}
	}
	for _, d := range r.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return &ParseError{Kind: OutOfRange, Detail: fmt.Sprintf("weekday %d", d)}
		}
	}
	if tz := strings.TrimSpace(r.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}
	return nil
}

// ParseDowField is the inverse of the rule's day-of-week rendering:
// "*" or "" means every day, otherwise a comma-joined list of cron
// ordinals (Sunday=0). Used when rehydrating persisted rules.
func ParseDowField(s string) ([]time.Weekday, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid day-of-week field %q", s)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

// ErrorKind classifies why a phrase was rejected.
type ErrorKind int

const (
	// MissingTime means no time-of-day clause was found.
	MissingTime ErrorKind = iota
	// OutOfRange means an hour/minute value does not resolve to a real time.
	OutOfRange
	// UnsupportedFrequency means the phrase implies a recurrence outside the
	// supported daily/weekly grammar (e.g. "every 3 days").
	UnsupportedFrequency
)

func (k ErrorKind) String() string {
	switch k {
	case MissingTime:
		return "missing_time"
	case OutOfRange:
		return "out_of_range"
	case UnsupportedFrequency:
		return "unsupported_frequency"
	default:
		return "unknown"
	}
}

// ParseError is returned for phrases the grammar rejects. The Kind is part
// of the contract: callers surface it verbatim so users can rephrase.
type ParseError struct {
	Kind   ErrorKind
	Input  string
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("recurrence: %s (%s)", e.Kind, e.Detail)
	}
	return "recurrence: " + e.Kind.String()
}

// UserMessage renders actionable feedback for chat users.
func (e *ParseError) UserMessage() string {
	switch e.Kind {
	case MissingTime:
		return "没有识别到发送时间，请在描述中包含具体时间，例如：每天早上8点"
	case OutOfRange:
		return "时间超出范围，请使用 0-23 点、0-59 分"
	case UnsupportedFrequency:
		return "暂不支持该频率，目前支持每天或指定星期几，例如：每周一三五上午9点"
	default:
		return "无法识别时间描述，请换一种说法"
	}
}
