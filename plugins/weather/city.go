package weather

import (
	"regexp"
	"strings"
)

// reCity captures the city squeezed between 发送 and 天气 in a subscription
// phrase, e.g. "每天早上8点发送杭州天气" or "每周一发送北京的天气预报".
var reCity = regexp.MustCompile(`发送\s*(.*?)\s*的?\s*天气`)

// extractCity pulls the city name out of a schedule phrase. It returns ""
// when the phrase names no city ("每天早上8点发送天气"), letting the caller
// fall back to a configured default.
func extractCity(phrase string) string {
	m := reCity.FindStringSubmatch(phrase)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
