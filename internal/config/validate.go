package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
)

var validQualities = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validArchiveProviders = map[string]bool{
	"":           true,
	ArchiveNone:  true,
	ArchiveLocal: true,
	ArchiveS3:    true,
	ArchiveGCS:   true,
	ArchiveAzure: true,
	ArchiveB2:    true,
}

// ValidationResult separates errors that must stop startup from values
// that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal error was found.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// Validate checks the config and returns all errors found. See ValidateTiered.
func (c *Config) Validate() []error {
	return c.ValidateTiered().AllErrors()
}

// ValidateTiered checks the config. Values that would break recording are
// clamped to safe defaults and reported as warnings; structural problems
// the recorder cannot work around are fatal. Every finding is logged.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult
	fatal := func(err error) { r.Fatals = append(r.Fatals, err) }
	warn := func(err error) { r.Warnings = append(r.Warnings, err) }

	if strings.TrimSpace(c.OutputDirectory) == "" {
		warn(errors.New("output_directory is empty, using default"))
		c.OutputDirectory = DefaultOutputDirectory()
	} else if !filepath.IsAbs(c.OutputDirectory) {
		fatal(fmt.Errorf("output_directory %q must be an absolute path", c.OutputDirectory))
	}

	if !validQualities[strings.ToLower(c.DefaultQuality)] {
		warn(fmt.Errorf("default_quality %q is not valid (use low, medium, high), using high", c.DefaultQuality))
		c.DefaultQuality = "high"
	}

	switch strings.ToLower(c.MicrophoneFailurePolicy) {
	case MicPolicyContinue, MicPolicyAbort:
		c.MicrophoneFailurePolicy = strings.ToLower(c.MicrophoneFailurePolicy)
	default:
		warn(fmt.Errorf("microphone_failure_policy %q is not valid (use continue or abort), using continue", c.MicrophoneFailurePolicy))
		c.MicrophoneFailurePolicy = MicPolicyContinue
	}

	// A zero interval would spin the chunk ticker.
	if c.ChunkIntervalMs < 100 {
		warn(fmt.Errorf("chunk_interval_ms %d is below minimum 100, clamping", c.ChunkIntervalMs))
		c.ChunkIntervalMs = 100
	} else if c.ChunkIntervalMs > 10000 {
		warn(fmt.Errorf("chunk_interval_ms %d exceeds maximum 10000, clamping", c.ChunkIntervalMs))
		c.ChunkIntervalMs = 10000
	}

	if c.WindowBounds.Width < 200 {
		warn(fmt.Errorf("window_bounds.width %d is below minimum 200, clamping", c.WindowBounds.Width))
		c.WindowBounds.Width = 200
	}
	if c.WindowBounds.Height < 200 {
		warn(fmt.Errorf("window_bounds.height %d is below minimum 200, clamping", c.WindowBounds.Height))
		c.WindowBounds.Height = 200
	}

	if strings.TrimSpace(c.FFmpegPath) == "" {
		warn(errors.New("ffmpeg_path is empty, using ffmpeg from PATH"))
		c.FFmpegPath = "ffmpeg"
	}

	if c.ControlListen != "" {
		if _, _, err := net.SplitHostPort(c.ControlListen); err != nil {
			fatal(fmt.Errorf("control_listen %q is not host:port: %w", c.ControlListen, err))
		}
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		warn(fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		warn(fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	c.validateArchive(fatal, warn)

	for _, err := range r.Fatals {
		slog.Error("config validation", "error", err)
	}
	for _, err := range r.Warnings {
		slog.Warn("config validation", "error", err)
	}
	return r
}

func (c *Config) validateArchive(fatal, warn func(error)) {
	a := &c.Archive
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
	if !validArchiveProviders[a.Provider] {
		fatal(fmt.Errorf("archive.provider %q is not valid (use none, local, s3, gcs, azure, b2)", a.Provider))
		return
	}
	if !a.Enabled() {
		return
	}

	switch a.Provider {
	case ArchiveLocal:
		if a.LocalPath == "" {
			fatal(errors.New("archive.local_path is required for the local provider"))
		}
	case ArchiveAzure:
		if a.Bucket == "" {
			fatal(errors.New("archive.bucket (container) is required for the azure provider"))
		}
		if a.ConnectionString == "" {
			fatal(errors.New("archive.connection_string is required for the azure provider"))
		}
	case ArchiveB2:
		if a.Bucket == "" {
			fatal(errors.New("archive.bucket is required for the b2 provider"))
		}
		if a.AccountID == "" || a.ApplicationKey == "" {
			fatal(errors.New("archive.account_id and archive.application_key are required for the b2 provider"))
		}
	default:
		if a.Bucket == "" {
			fatal(fmt.Errorf("archive.bucket is required for the %s provider", a.Provider))
		}
	}

	if a.Workers < 1 {
		warn(fmt.Errorf("archive.workers %d is below minimum 1, clamping", a.Workers))
		a.Workers = 1
	} else if a.Workers > 8 {
		warn(fmt.Errorf("archive.workers %d exceeds maximum 8, clamping", a.Workers))
		a.Workers = 8
	}
	if a.QueueSize < 1 {
		warn(fmt.Errorf("archive.queue_size %d is below minimum 1, clamping", a.QueueSize))
		a.QueueSize = 1
	} else if a.QueueSize > 256 {
		warn(fmt.Errorf("archive.queue_size %d exceeds maximum 256, clamping", a.QueueSize))
		a.QueueSize = 256
	}
}
