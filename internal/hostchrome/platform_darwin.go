//go:build darwin

package hostchrome

func revealCommands(path string) []command {
	return []command{{name: "open", args: []string{"-R", path}}}
}

func notifyCommand(title, body string) (command, bool) {
	script := `display notification "` + escapeAppleScript(body) + `" with title "` + escapeAppleScript(title) + `"`
	return command{name: "osascript", args: []string{"-e", script}}, true
}
