package recurrence

import (
	"regexp"
	"strconv"
	"time"
)

// Token tables. The grammar recognizes simplified-Chinese schedule phrases:
// an optional frequency clause (每天 / 每周X / 周X...), a period-of-day
// marker, and an hour with optional minutes.

var weekdayByRune = map[rune]time.Weekday{
	'一': time.Monday,
	'二': time.Tuesday,
	'三': time.Wednesday,
	'四': time.Thursday,
	'五': time.Friday,
	'六': time.Saturday,
	'日': time.Sunday,
	'天': time.Sunday,
}

var (
	// "每3天", "每隔2周", "每2小时": interval recurrences the calendar
	// grammar cannot express.
	reIntervalFreq = regexp.MustCompile(`每隔?\s*(?:[0-9０-９]+|[两二三四五六七八九十]+)\s*(?:个?小时|分钟|天|日|周|星期)`)

	// Weekday runs need a 周/星期/礼拜 prefix so characters like the 天 in
	// 天气 are never read as Sunday.
	reWeekdays = regexp.MustCompile(`(?:每?\s*(?:周|星期|礼拜))([一二三四五六日天]+)`)

	// Period marker + hour + optional minutes ("半" = 30).
	reTime = regexp.MustCompile(`(凌晨|早上|早晨|上午|中午|下午|傍晚|晚上|晚间|夜间)?\s*([0-9０-９]{1,2})\s*[点时](?:\s*([0-9０-９]{1,2})\s*分|\s*(半))?`)

	reNoon = regexp.MustCompile(`中午`)
)

// Translate parses a natural-language schedule phrase into a Rule.
//
// It is a pure function: no state, no clock, no locale lookup. The returned
// Rule carries no timezone; the caller stamps the zone the subscription
// should fire in. On failure the error is always a *ParseError.
func Translate(text string) (Rule, error) {
	if reIntervalFreq.MatchString(text) {
		return Rule{}, &ParseError{Kind: UnsupportedFrequency, Input: text, Detail: "interval recurrence"}
	}

	days, err := parseWeekdays(text)
	if err != nil {
		return Rule{}, err
	}

	hour, minute, err := parseTimeOfDay(text)
	if err != nil {
		return Rule{}, err
	}

	return Rule{Minute: minute, Hour: hour, DaysOfWeek: days}, nil
}

// parseWeekdays collects the weekday set. Duplicates collapse and order is
// irrelevant; an empty result means "every day".
func parseWeekdays(text string) ([]time.Weekday, error) {
	matches := reWeekdays.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}
	seen := map[time.Weekday]bool{}
	var days []time.Weekday
	for _, m := range matches {
		for _, r := range m[1] {
			d, ok := weekdayByRune[r]
			if !ok {
				continue
			}
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
	}
	return days, nil
}

func parseTimeOfDay(text string) (hour, minute int, err error) {
	matches := reTime.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		// "中午" with no stated hour still names a time: noon.
		if reNoon.MatchString(text) {
			return 12, 0, nil
		}
		return 0, 0, &ParseError{Kind: MissingTime, Input: text}
	}
	// Several time-of-day clauses in one description are ambiguous; reject
	// rather than guess which one was meant.
	if len(matches) > 1 {
		return 0, 0, &ParseError{Kind: UnsupportedFrequency, Input: text, Detail: "multiple time-of-day clauses"}
	}

	m := matches[0]
	period := m[1]
	h, perr := parseDigits(m[2])
	if perr != nil {
		return 0, 0, &ParseError{Kind: OutOfRange, Input: text, Detail: m[2]}
	}

	minute = 0
	if m[3] != "" {
		minute, perr = parseDigits(m[3])
		if perr != nil || minute > 59 {
			return 0, 0, &ParseError{Kind: OutOfRange, Input: text, Detail: m[3] + "分"}
		}
	} else if m[4] != "" { // 半
		minute = 30
	}

	hour, err = shiftHour(period, h, text)
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 {
		return 0, 0, &ParseError{Kind: OutOfRange, Input: text, Detail: strconv.Itoa(h) + "点"}
	}
	return hour, minute, nil
}

// shiftHour applies 12-hour period semantics:
//
//	unmarked        → as stated, must be ≤ 12
//	凌晨/早上/上午   → as stated, must be ≤ 12
//	中午            → noon regardless of the stated hour
//	下午/晚上/...    → +12 for 1-11, 12 stays 12
//
// An unmarked hour above 12 is rejected rather than read as 24-hour time:
// the grammar treats a bare hour like a morning one, and asking for the
// period marker keeps "每天15点" from silently meaning something the user
// may not have intended.
func shiftHour(period string, h int, input string) (int, error) {
	switch period {
	case "", "凌晨", "早上", "早晨", "上午":
		if h > 12 {
			return 0, &ParseError{Kind: OutOfRange, Input: input, Detail: period + strconv.Itoa(h) + "点"}
		}
		return h, nil
	case "中午":
		return 12, nil
	case "下午", "傍晚", "晚上", "晚间", "夜间":
		if h >= 1 && h <= 11 {
			return h + 12, nil
		}
		if h == 12 {
			return 12, nil
		}
		return 0, &ParseError{Kind: OutOfRange, Input: input, Detail: period + strconv.Itoa(h) + "点"}
	default:
		return h, nil
	}
}

// parseDigits handles both ASCII and full-width digits.
func parseDigits(s string) (int, error) {
	norm := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '０' && r <= '９' {
			r = '0' + (r - '０')
		}
		norm = append(norm, r)
	}
	return strconv.Atoi(string(norm))
}
