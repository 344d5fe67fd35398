//go:build !unix

package main

import "os"

// pauseSignals returns nil; there is no pause signal on this platform.
func pauseSignals() <-chan os.Signal { return nil }
