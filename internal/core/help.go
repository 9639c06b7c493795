package core

import (
	"strings"
)

const helpNotFound = "未找到该指令，发送 /help 查看帮助"

// helpText renders the top-level listing (no args), one group's subcommand
// listing, or a single command's detail.
func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	r := m.reg
	m.mu.RUnlock()
	if r == nil {
		return helpNotFound
	}

	if len(args) == 0 {
		lines := []string{"📚 可用指令（/help <指令> 查看详情）："}
		for _, w := range r.topWords() {
			switch {
			case r.groups[w] != nil:
				lines = append(lines, "- /"+w+" …")
			case r.cmds[w].Description != "":
				lines = append(lines, "- /"+w+" — "+r.cmds[w].Description)
			default:
				lines = append(lines, "- /"+w)
			}
		}
		return strings.Join(lines, "\n")
	}

	word := strings.TrimPrefix(args[0], "/")
	cmd, _, ok := r.resolve(word, args[1:])
	if !ok {
		return helpNotFound
	}
	if cmd == nil {
		return groupHelp(r, word)
	}
	return commandHelp(cmd)
}

func groupHelp(r *registry, group string) string {
	lines := []string{"📚 /" + group + " 子指令："}
	for _, sub := range r.groups[group] {
		c := r.cmds[group+" "+sub]
		if c != nil && c.Description != "" {
			lines = append(lines, "- /"+group+" "+sub+" — "+c.Description)
		} else {
			lines = append(lines, "- /"+group+" "+sub)
		}
	}
	return strings.Join(lines, "\n")
}

func commandHelp(cmd *Command) string {
	lines := []string{"📌 " + cmd.Route}
	if cmd.Description != "" {
		lines = append(lines, cmd.Description)
	}
	if cmd.Usage != "" {
		lines = append(lines, "用法："+cmd.Usage)
	}
	if len(cmd.Aliases) > 0 {
		lines = append(lines, "别名：/"+strings.Join(cmd.Aliases, "、/"))
	}
	return strings.Join(lines, "\n")
}
