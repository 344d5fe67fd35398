// Package version holds build metadata, set with -ldflags "-X".
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "0.1.0"
	Commit  = ""
)

// Info is the version reported to UI shells.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the current build's Info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	if i.Commit == "" {
		return fmt.Sprintf("Blooom v%s (%s, %s)", i.Version, i.Platform, i.GoVersion)
	}
	return fmt.Sprintf("Blooom v%s-%s (%s, %s)", i.Version, i.Commit, i.Platform, i.GoVersion)
}
