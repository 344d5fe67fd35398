//go:build !linux && !darwin && !windows

package hostchrome

func revealCommands(string) []command { return nil }

func notifyCommand(string, string) (command, bool) { return command{}, false }
