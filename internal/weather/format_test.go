package weather

import (
	"strings"
	"testing"
)

func sampleCast() Cast {
	return Cast{
		Date: "2024-06-03", Week: "1",
		DayWeather: "多云", NightWeather: "小雨",
		DayTemp: "28", NightTemp: "19",
		DayWind: "东南", NightWind: "北",
		DayPower: "≤3", NightPower: "4",
	}
}

func TestFormatCast(t *testing.T) {
	got := FormatCast(sampleCast())
	want := "2024-06-03周一 天气预报：白天多云，气温28°C ~ 19°C, 东南风≤3级；夜间小雨，北风4级。"
	if got != want {
		t.Fatalf("FormatCast:\n got %q\nwant %q", got, want)
	}
}

func TestFormatCastUnknownWeek(t *testing.T) {
	c := sampleCast()
	c.Week = "9"
	if got := FormatCast(c); !strings.Contains(got, "周9") {
		t.Fatalf("unknown week not passed through: %q", got)
	}
}

func TestFormatForecast(t *testing.T) {
	f := Forecast{
		Province: "浙江", City: "杭州市", ReportTime: "2024-06-03 08:00:00",
		Casts: []Cast{sampleCast(), sampleCast()},
	}
	got := FormatForecast(f)
	if !strings.HasPrefix(got, "浙江杭州市 天气预报（2024-06-03 08:00:00 发布）\n") {
		t.Fatalf("missing header: %q", got)
	}
	if strings.Count(got, "天气预报：") != 2 {
		t.Fatalf("expected two cast lines: %q", got)
	}
}

func TestFormatLive(t *testing.T) {
	l := Live{
		Province: "浙江", City: "杭州市", Weather: "晴",
		Temperature: "26", WindDirection: "东", WindPower: "≤3",
		Humidity: "55", ReportTime: "2024-06-03 10:30:00",
	}
	got := FormatLive(l)
	want := "浙江杭州市 当前天气：晴，气温26°C，东风≤3级，湿度55%（2024-06-03 10:30:00 发布）"
	if got != want {
		t.Fatalf("FormatLive:\n got %q\nwant %q", got, want)
	}
}

func TestFormatPush(t *testing.T) {
	f := Forecast{Province: "浙江", City: "杭州市", Casts: []Cast{sampleCast()}}
	got := FormatPush(f)
	if !strings.HasPrefix(got, "浙江杭州市\n2024-06-03周一") {
		t.Fatalf("unexpected push text: %q", got)
	}
	if FormatPush(Forecast{}) != "" {
		t.Fatal("empty forecast should render empty push")
	}
}
