package weather

import "testing"

func TestExtractCity(t *testing.T) {
	cases := []struct {
		phrase string
		want   string
	}{
		{"每天早上8点发送杭州天气", "杭州"},
		{"每周一三五上午9点发送北京的天气", "北京"},
		{"每天晚上8点发送上海天气预报", "上海"},
		{"每天早上8点发送天气", ""},
		{"每天早上8点", ""},
		{"每天中午发送 深圳 天气", "深圳"},
	}
	for _, tc := range cases {
		if got := extractCity(tc.phrase); got != tc.want {
			t.Errorf("extractCity(%q) = %q, want %q", tc.phrase, got, tc.want)
		}
	}
}
