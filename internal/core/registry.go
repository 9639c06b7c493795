package core

import (
	"sort"
	"strings"
)

// registry resolves inbound command words to handlers. Routes are at most
// two tokens deep ("help", "weather sub"), which covers this bot's whole
// surface, so resolution is a couple of map lookups rather than tree
// walking.
type registry struct {
	cmds   map[string]*Command // full route -> command
	groups map[string][]string // group word -> sorted subcommand words
	alias  map[string]string   // alias or auto-alias -> full route
}

func splitRoute(route string) []string {
	return strings.Fields(strings.TrimSpace(route))
}

func buildRegistry(cmds []Command) *registry {
	r := &registry{
		cmds:   map[string]*Command{},
		groups: map[string][]string{},
		alias:  map[string]string{},
	}
	for i := range cmds {
		c := cmds[i]
		toks := splitRoute(c.Route)
		if len(toks) == 0 || len(toks) > 2 || c.Handle == nil {
			continue
		}
		c.Route = strings.Join(toks, " ")
		r.cmds[c.Route] = &c
		if len(toks) == 2 {
			r.groups[toks[0]] = append(r.groups[toks[0]], toks[1])
			// "weather sub" is also reachable as /weather_sub, which
			// Telegram clients turn into a tappable command.
			if auto := toks[0] + "_" + toks[1]; r.alias[auto] == "" {
				r.alias[auto] = c.Route
			}
		}
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			r.alias[a] = c.Route
		}
	}
	for g := range r.groups {
		sort.Strings(r.groups[g])
	}
	return r
}

// resolve maps an inbound word plus its arguments to a command. consumed
// reports how many leading arguments were route tokens. ok=false means the
// word is unknown; ok=true with a nil command means a bare group word, for
// which the caller shows the group's help.
func (r *registry) resolve(word string, args []string) (cmd *Command, consumed int, ok bool) {
	if route, is := r.alias[word]; is {
		return r.cmds[route], 0, true
	}
	if c, is := r.cmds[word]; is {
		return c, 0, true
	}
	if _, is := r.groups[word]; !is {
		return nil, 0, false
	}
	if len(args) > 0 {
		if c, is := r.cmds[word+" "+args[0]]; is {
			return c, 1, true
		}
	}
	return nil, 0, true
}

// topWords lists the distinct first tokens of all routes, sorted.
func (r *registry) topWords() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(r.cmds))
	for route := range r.cmds {
		w := splitRoute(route)[0]
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}
