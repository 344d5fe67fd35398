//go:build windows

package hostchrome

// explorer exits 1 even when the window opened.
func revealCommands(path string) []command {
	return []command{{name: "explorer", args: []string{"/select," + path}, anyExit: true}}
}

// notifyCommand shows a toast through PowerShell. The XML is passed as a
// parameter so nothing in it is interpolated by the shell.
func notifyCommand(title, body string) (command, bool) {
	toastXML := `<toast><visual><binding template="ToastText02">` +
		`<text id="1">` + xmlEscape(title) + `</text>` +
		`<text id="2">` + xmlEscape(body) + `</text>` +
		`</binding></visual></toast>`

	script := `param([string]$xml)
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
$doc.LoadXml($xml)
$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("Blooom").Show($toast)`

	return command{name: "powershell", args: []string{"-NoProfile", "-Command", script, "-xml", toastXML}}, true
}
