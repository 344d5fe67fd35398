package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Display describes a connected display output and how ffmpeg reads it.
type Display struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	Bounds    Rect     `json:"bounds"`
	IsPrimary bool     `json:"isPrimary"`
	Input     []string `json:"-"` // ffmpeg input arguments, without framerate
}

func (d Display) target() Target {
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("Screen %d", d.Index+1)
	}
	return Target{
		ID:          screenID(d.Index),
		DisplayName: name,
		Kind:        KindScreen,
		Bounds:      d.Bounds,
		Primary:     d.IsPrimary,
	}
}

// xrandr --listmonitors prints lines such as
//
//	0: +*eDP-1 1920/344x1080/194+0+0  eDP-1
var xrandrMonitor = regexp.MustCompile(`^\s*(\d+):\s+\+?(\*?)(\S+)\s+(\d+)/\d+x(\d+)/\d+\+(-?\d+)\+(-?\d+)`)

// parseXrandrMonitors turns xrandr output into displays captured through
// x11grab on the given X display (e.g. ":0").
func parseXrandrMonitors(out []byte, xdisplay string) []Display {
	var displays []Display
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := xrandrMonitor.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		w, _ := strconv.Atoi(m[4])
		h, _ := strconv.Atoi(m[5])
		x, _ := strconv.Atoi(m[6])
		y, _ := strconv.Atoi(m[7])
		d := Display{
			Index:     idx,
			Name:      m[3],
			Bounds:    Rect{X: x, Y: y, Width: w, Height: h},
			IsPrimary: m[2] == "*",
		}
		d.Input = x11grabInput(xdisplay, d.Bounds)
		displays = append(displays, d)
	}
	return displays
}

func x11grabInput(xdisplay string, r Rect) []string {
	// x11grab needs even dimensions for yuv420p.
	w, h := r.Width&^1, r.Height&^1
	return []string{
		"-f", "x11grab",
		"-video_size", fmt.Sprintf("%dx%d", w, h),
		"-i", fmt.Sprintf("%s+%d,%d", xdisplay, r.X, r.Y),
	}
}

// ffmpeg -f avfoundation -list_devices true -i "" logs lines such as
//
//	[AVFoundation indev @ 0x7f8] [2] Capture screen 0
var avfScreen = regexp.MustCompile(`\[(\d+)\]\s+Capture screen (\d+)`)

// parseAVFoundationScreens extracts the screen devices from the
// avfoundation device listing.
func parseAVFoundationScreens(out []byte) []Display {
	var displays []Display
	inVideo := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "video devices:"):
			inVideo = true
			continue
		case strings.Contains(line, "audio devices:"):
			inVideo = false
			continue
		}
		if !inVideo {
			continue
		}
		m := avfScreen.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		dev := m[1]
		screen, _ := strconv.Atoi(m[2])
		displays = append(displays, Display{
			Index:     screen,
			Name:      fmt.Sprintf("Screen %d", screen+1),
			IsPrimary: screen == 0,
			Input:     []string{"-f", "avfoundation", "-capture_cursor", "1", "-i", dev + ":none"},
		})
	}
	return displays
}

// permissionHint reports whether ffmpeg's error output indicates the OS
// refused access rather than a missing device.
func permissionHint(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, hint := range []string{
		"permission denied",
		"not authorized",
		"cannot open display",
		"screen recording permission",
		"access is denied",
	} {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}
