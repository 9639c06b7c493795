package core

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/weather sub 每天早上8点发送杭州天气", []string{"/weather", "sub", "每天早上8点发送杭州天气"}},
		{`/weather sub "每天 早上8点" 杭州`, []string{"/weather", "sub", "每天 早上8点", "杭州"}},
		{"/weather   rm   2", []string{"/weather", "rm", "2"}},
		{`/x 'a b' c`, []string{"/x", "a b", "c"}},
	}
	for _, tc := range cases {
		if got := tokenizeCommandLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := buildRegistry([]Command{
		{Route: "weather sub", Aliases: []string{"sub"}, Handle: nopHandler},
		{Route: "weather ls", Handle: nopHandler},
		{Route: "help", Handle: nopHandler},
	})

	cmd, consumed, ok := reg.resolve("weather", []string{"sub", "每天早上8点"})
	if !ok || cmd == nil || cmd.Route != "weather sub" || consumed != 1 {
		t.Fatalf("weather sub: cmd=%v consumed=%d ok=%v", cmd, consumed, ok)
	}

	// Root alias and the auto underscore alias both land on the same route.
	for _, word := range []string{"sub", "weather_sub"} {
		cmd, consumed, ok = reg.resolve(word, nil)
		if !ok || cmd == nil || cmd.Route != "weather sub" || consumed != 0 {
			t.Fatalf("alias %q: cmd=%v consumed=%d ok=%v", word, cmd, consumed, ok)
		}
	}

	cmd, _, ok = reg.resolve("help", nil)
	if !ok || cmd == nil || cmd.Route != "help" {
		t.Fatalf("help not resolved: %v", cmd)
	}

	// Bare group word resolves with a nil command (caller shows group help).
	cmd, _, ok = reg.resolve("weather", nil)
	if !ok || cmd != nil {
		t.Fatalf("bare group: cmd=%v ok=%v", cmd, ok)
	}

	if _, _, ok = reg.resolve("nope", nil); ok {
		t.Fatal("unknown word resolved")
	}

	if got := reg.groups["weather"]; !reflect.DeepEqual(got, []string{"ls", "sub"}) {
		t.Fatalf("group subcommands = %v", got)
	}
}

func TestHelpTextListsCommands(t *testing.T) {
	m := NewCommandManager(noplog(), nil, nil, nil, nil)
	m.SetRegistry([]Command{
		{Route: "weather sub", Description: "订阅天气推送", Handle: nopHandler},
		{Route: "weather ls", Description: "查看订阅", Handle: nopHandler},
	})

	top := m.helpText(nil)
	for _, want := range []string{"weather", "help"} {
		if !contains(top, "/"+want) {
			t.Errorf("top help missing %q:\n%s", want, top)
		}
	}
	sub := m.helpText([]string{"weather"})
	if !contains(sub, "sub") || !contains(sub, "ls") {
		t.Errorf("group help missing subcommands:\n%s", sub)
	}
	detail := m.helpText([]string{"weather", "sub"})
	if !contains(detail, "订阅天气推送") {
		t.Errorf("command help missing description:\n%s", detail)
	}
}
