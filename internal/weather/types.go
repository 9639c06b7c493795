package weather

import "time"

// Config configures the Amap (高德) weather client.
type Config struct {
	Key     string
	BaseURL string // override for tests; default amapBaseURL
	Timeout time.Duration
}

// Live is the current observed weather for a city.
type Live struct {
	Province      string `json:"province"`
	City          string `json:"city"`
	Adcode        string `json:"adcode"`
	Weather       string `json:"weather"`
	Temperature   string `json:"temperature"`
	WindDirection string `json:"winddirection"`
	WindPower     string `json:"windpower"`
	Humidity      string `json:"humidity"`
	ReportTime    string `json:"reporttime"`
}

// Cast is one day of forecast.
type Cast struct {
	Date         string `json:"date"`
	Week         string `json:"week"` // 1..7, Monday=1
	DayWeather   string `json:"dayweather"`
	NightWeather string `json:"nightweather"`
	DayTemp      string `json:"daytemp"`
	NightTemp    string `json:"nighttemp"`
	DayWind      string `json:"daywind"`
	NightWind    string `json:"nightwind"`
	DayPower     string `json:"daypower"`
	NightPower   string `json:"nightpower"`
}

// Forecast is the multi-day forecast for a city (today first).
type Forecast struct {
	Province   string `json:"province"`
	City       string `json:"city"`
	Adcode     string `json:"adcode"`
	ReportTime string `json:"reporttime"`
	Casts      []Cast `json:"casts"`
}

type apiResponse struct {
	Status    string     `json:"status"` // "1" = ok
	Count     string     `json:"count"`
	Info      string     `json:"info"`
	Infocode  string     `json:"infocode"`
	Lives     []Live     `json:"lives"`
	Forecasts []Forecast `json:"forecasts"`
}
