package weather

import (
	"fmt"
	"strings"
)

var weekNames = map[string]string{
	"1": "一", "2": "二", "3": "三", "4": "四", "5": "五", "6": "六", "7": "日",
}

// FormatCast renders one forecast day as a push line.
func FormatCast(c Cast) string {
	week := weekNames[c.Week]
	if week == "" {
		week = c.Week
	}
	return fmt.Sprintf(
		"%s周%s 天气预报：白天%s，气温%s°C ~ %s°C, %s风%s级；夜间%s，%s风%s级。",
		c.Date, week,
		c.DayWeather, c.DayTemp, c.NightTemp, c.DayWind, c.DayPower,
		c.NightWeather, c.NightWind, c.NightPower,
	)
}

// FormatForecast renders the city header plus every forecast day.
func FormatForecast(f Forecast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s 天气预报（%s 发布）\n", f.Province, f.City, f.ReportTime)
	for i, c := range f.Casts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FormatCast(c))
	}
	return b.String()
}

// FormatLive renders current conditions.
func FormatLive(l Live) string {
	return fmt.Sprintf(
		"%s%s 当前天气：%s，气温%s°C，%s风%s级，湿度%s%%（%s 发布）",
		l.Province, l.City, l.Weather, l.Temperature,
		l.WindDirection, l.WindPower, l.Humidity, l.ReportTime,
	)
}

// FormatPush renders today's forecast line for a scheduled push. It prefers
// the first cast (today); an empty forecast yields an empty string.
func FormatPush(f Forecast) string {
	if len(f.Casts) == 0 {
		return ""
	}
	return fmt.Sprintf("%s%s\n%s", f.Province, f.City, FormatCast(f.Casts[0]))
}
