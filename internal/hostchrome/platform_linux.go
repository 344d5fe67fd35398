//go:build linux

package hostchrome

import "path/filepath"

// revealCommands asks the desktop's file manager to select path over
// D-Bus, falling back to opening the containing directory.
func revealCommands(path string) []command {
	return []command{
		{name: "dbus-send", args: []string{
			"--session", "--print-reply", "--dest=org.freedesktop.FileManager1",
			"/org/freedesktop/FileManager1", "org.freedesktop.FileManager1.ShowItems",
			"array:string:" + fileURI(path), "string:",
		}},
		{name: "xdg-open", args: []string{filepath.Dir(path)}},
	}
}

func notifyCommand(title, body string) (command, bool) {
	return command{name: "notify-send", args: []string{"-a", "Blooom", title, body}}, true
}
