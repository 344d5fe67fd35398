package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.OutputDirectory = t.TempDir()
	return cfg
}

func TestDefaultsMatchStoreSchema(t *testing.T) {
	cfg := Default()
	if filepath.Base(cfg.OutputDirectory) != "Blooom" {
		t.Fatalf("OutputDirectory = %q, want .../Blooom", cfg.OutputDirectory)
	}
	if cfg.DefaultQuality != "high" {
		t.Fatalf("DefaultQuality = %q, want high", cfg.DefaultQuality)
	}
	if cfg.MuteMicrophone || cfg.MuteSystemAudio {
		t.Fatal("mute flags should default to false")
	}
	if cfg.WindowBounds.Width != 400 || cfg.WindowBounds.Height != 600 {
		t.Fatalf("WindowBounds = %+v, want 400x600", cfg.WindowBounds)
	}
	if cfg.ChunkIntervalMs != 1000 {
		t.Fatalf("ChunkIntervalMs = %d, want 1000", cfg.ChunkIntervalMs)
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	result := validConfig(t).ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid config has warnings: %v", result.Warnings)
	}
}

func TestRelativeOutputDirectoryIsFatal(t *testing.T) {
	cfg := validConfig(t)
	cfg.OutputDirectory = "relative/dir"
	if !cfg.ValidateTiered().HasFatals() {
		t.Fatal("relative output directory should be fatal")
	}
}

func TestChunkIntervalClampingIsWarning(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 100},
		{50, 100},
		{60000, 10000},
		{1000, 1000},
	}
	for _, tt := range tests {
		cfg := validConfig(t)
		cfg.ChunkIntervalMs = tt.in
		result := cfg.ValidateTiered()
		if result.HasFatals() {
			t.Fatalf("chunk interval %d: clamping should not be fatal: %v", tt.in, result.Fatals)
		}
		if cfg.ChunkIntervalMs != tt.want {
			t.Fatalf("chunk interval %d clamped to %d, want %d", tt.in, cfg.ChunkIntervalMs, tt.want)
		}
	}
}

func TestUnknownMicPolicyFallsBackToContinue(t *testing.T) {
	cfg := validConfig(t)
	cfg.MicrophoneFailurePolicy = "explode"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown policy should not be fatal")
	}
	if cfg.MicrophoneFailurePolicy != MicPolicyContinue {
		t.Fatalf("policy = %q, want continue", cfg.MicrophoneFailurePolicy)
	}
}

func TestUnknownQualityIsWarning(t *testing.T) {
	cfg := validConfig(t)
	cfg.DefaultQuality = "ultra"
	result := cfg.ValidateTiered()
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown quality")
	}
	if cfg.DefaultQuality != "high" {
		t.Fatalf("DefaultQuality = %q, want high", cfg.DefaultQuality)
	}
}

func TestBadControlListenIsFatal(t *testing.T) {
	cfg := validConfig(t)
	cfg.ControlListen = "localhost"
	if !cfg.ValidateTiered().HasFatals() {
		t.Fatal("control_listen without port should be fatal")
	}
}

func TestArchiveRequiresBucket(t *testing.T) {
	for _, provider := range []string{ArchiveS3, ArchiveGCS, ArchiveAzure, ArchiveB2} {
		cfg := validConfig(t)
		cfg.Archive.Provider = provider
		result := cfg.ValidateTiered()
		if !result.HasFatals() {
			t.Fatalf("%s without bucket should be fatal", provider)
		}
	}
}

func TestArchiveUnknownProviderIsFatal(t *testing.T) {
	cfg := validConfig(t)
	cfg.Archive.Provider = "ftp"
	result := cfg.ValidateTiered()
	found := false
	for _, err := range result.Fatals {
		if strings.Contains(err.Error(), "ftp") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected fatal naming the unknown provider")
	}
}

func TestArchiveWorkerClamping(t *testing.T) {
	cfg := validConfig(t)
	cfg.Archive.Provider = ArchiveS3
	cfg.Archive.Bucket = "recordings"
	cfg.Archive.Workers = 0
	cfg.Archive.QueueSize = 100000
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamping should not be fatal: %v", result.Fatals)
	}
	if cfg.Archive.Workers != 1 || cfg.Archive.QueueSize != 256 {
		t.Fatalf("archive workers/queue = %d/%d, want 1/256", cfg.Archive.Workers, cfg.Archive.QueueSize)
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := validConfig(t)
	cfg.ControlListen = "nope"  // fatal
	cfg.DefaultQuality = "best" // warning
	if all := cfg.Validate(); len(all) < 2 {
		t.Fatalf("Validate() returned %d errors, want at least 2", len(all))
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blooom.yaml")
	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := store.Snapshot().ChunkIntervalMs; got != 1000 {
		t.Fatalf("ChunkIntervalMs = %d, want 1000", got)
	}
	if store.AudioPolicy() != (AudioPolicy{}) {
		t.Fatalf("AudioPolicy = %+v, want zero", store.AudioPolicy())
	}
}

func TestUpdatePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blooom.yaml")
	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	out := filepath.Join(dir, "videos")
	mute := true
	if _, err := store.Update(Patch{OutputDirectory: &out, MuteMicrophone: &mute}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("config file is empty")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.OutputDirectory() != out {
		t.Fatalf("OutputDirectory = %q, want %q", reloaded.OutputDirectory(), out)
	}
	if !reloaded.AudioPolicy().MuteMicrophone {
		t.Fatal("MuteMicrophone should persist")
	}
}

func TestUpdateRejectsFatalAndKeepsPrevious(t *testing.T) {
	cfg := validConfig(t)
	cfg.ControlListen = "nonsense"
	store := NewStore(cfg, "")
	before := store.OutputDirectory()

	mute := true
	dir := t.TempDir()
	if _, err := store.Update(Patch{MuteMicrophone: &mute, OutputDirectory: &dir}); err == nil {
		t.Fatal("expected error while control_listen is invalid")
	}
	if store.OutputDirectory() != before {
		t.Fatalf("OutputDirectory changed to %q after rejected update", store.OutputDirectory())
	}
	if store.AudioPolicy().MuteMicrophone {
		t.Fatal("MuteMicrophone changed after rejected update")
	}
}

func TestSetOutputDirectoryResolvesAbsolute(t *testing.T) {
	store := NewStore(validConfig(t), "")
	dir := t.TempDir()
	if err := store.SetOutputDirectory(dir); err != nil {
		t.Fatalf("SetOutputDirectory: %v", err)
	}
	if store.OutputDirectory() != dir {
		t.Fatalf("OutputDirectory = %q, want %q", store.OutputDirectory(), dir)
	}
	if err := store.SetOutputDirectory("  "); err == nil {
		t.Fatal("expected error for blank directory")
	}
}

func TestUpdateResolvesRelativeOutputDirectory(t *testing.T) {
	store := NewStore(validConfig(t), "")
	rel := filepath.Join("recordings", "blooom")
	want, err := filepath.Abs(rel)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := store.Update(Patch{OutputDirectory: &rel})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if cfg.OutputDirectory != want || store.OutputDirectory() != want {
		t.Fatalf("OutputDirectory = %q (store %q), want %q", cfg.OutputDirectory, store.OutputDirectory(), want)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("BLOOOM_MUTE_SYSTEM_AUDIO", "true")
	store, err := Load(filepath.Join(t.TempDir(), "blooom.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !store.AudioPolicy().MuteSystemAudio {
		t.Fatal("BLOOOM_MUTE_SYSTEM_AUDIO should override the default")
	}
}
