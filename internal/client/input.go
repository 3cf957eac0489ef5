package client

import "strings"

// handleTabCompletion completes a command name, or a username after /to.
func (a *App) handleTabCompletion() {
	value := a.input.Value()
	if value == "" {
		return
	}
	runes := []rune(value)
	if a.input.Position() != len(runes) {
		return
	}

	prefix := string(a.cfg.CommandPrefix)
	if !strings.HasPrefix(value, prefix) {
		return
	}

	fields := strings.Fields(value)
	switch {
	case len(fields) == 1 && !strings.HasSuffix(value, " "):
		candidates := make([]string, 0, len(a.commands))
		for _, cmd := range a.commands {
			candidates = append(candidates, prefix+strings.TrimPrefix(cmd.trigger, "/"))
		}
		a.completeLastWord(fields[0], candidates, value)
	case len(fields) == 2 && fields[0] == prefix+"to" && !strings.HasSuffix(value, " "):
		a.completeLastWord(fields[1], a.online, value)
	}
}

func (a *App) completeLastWord(word string, candidates []string, value string) {
	matches := make([]string, 0)
	for _, c := range candidates {
		if strings.HasPrefix(c, word) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return
	}

	completion := longestCommonPrefix(matches)
	if len(completion) <= len(word) {
		return
	}
	a.input.SetValue(strings.TrimSuffix(value, word) + completion)
	a.input.CursorEnd()
}

func longestCommonPrefix(values []string) string {
	if len(values) == 0 {
		return ""
	}
	prefix := values[0]
	for _, s := range values[1:] {
		for !strings.HasPrefix(s, prefix) {
			if prefix == "" {
				return ""
			}
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
