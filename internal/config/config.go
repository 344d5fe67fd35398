package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Microphone failure policies.
const (
	MicPolicyContinue = "continue"
	MicPolicyAbort    = "abort"
)

// Archive providers.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
	ArchiveGCS   = "gcs"
	ArchiveAzure = "azure"
	ArchiveB2    = "b2"
)

const envPrefix = "BLOOOM"

// WindowBounds is the remembered position and size of the UI shell window.
type WindowBounds struct {
	Width  int `mapstructure:"width" json:"width" yaml:"width"`
	Height int `mapstructure:"height" json:"height" yaml:"height"`
	X      int `mapstructure:"x" json:"x" yaml:"x"`
	Y      int `mapstructure:"y" json:"y" yaml:"y"`
}

// ArchiveConfig selects an optional remote mirror for finished recordings.
type ArchiveConfig struct {
	Provider         string `mapstructure:"provider" json:"provider" yaml:"provider"`
	Bucket           string `mapstructure:"bucket" json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix           string `mapstructure:"prefix" json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region           string `mapstructure:"region" json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint         string `mapstructure:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyID      string `mapstructure:"access_key_id" json:"-" yaml:"access_key_id,omitempty"`
	SecretAccessKey  string `mapstructure:"secret_access_key" json:"-" yaml:"secret_access_key,omitempty"`
	SessionToken     string `mapstructure:"session_token" json:"-" yaml:"session_token,omitempty"`
	CredentialsFile  string `mapstructure:"credentials_file" json:"credentialsFile,omitempty" yaml:"credentials_file,omitempty"`
	ConnectionString string `mapstructure:"connection_string" json:"-" yaml:"connection_string,omitempty"`
	AccountID        string `mapstructure:"account_id" json:"accountId,omitempty" yaml:"account_id,omitempty"`
	ApplicationKey   string `mapstructure:"application_key" json:"-" yaml:"application_key,omitempty"`
	LocalPath        string `mapstructure:"local_path" json:"localPath,omitempty" yaml:"local_path,omitempty"`
	Workers          int    `mapstructure:"workers" json:"workers" yaml:"workers"`
	QueueSize        int    `mapstructure:"queue_size" json:"queueSize" yaml:"queue_size"`
}

// Enabled reports whether a mirror provider is configured.
func (a ArchiveConfig) Enabled() bool {
	p := strings.ToLower(strings.TrimSpace(a.Provider))
	return p != "" && p != ArchiveNone
}

// Config is the persisted settings document.
type Config struct {
	OutputDirectory         string        `mapstructure:"output_directory" json:"outputDirectory" yaml:"output_directory"`
	DefaultQuality          string        `mapstructure:"default_quality" json:"defaultQuality" yaml:"default_quality"`
	MuteMicrophone          bool          `mapstructure:"mute_microphone" json:"muteMicrophone" yaml:"mute_microphone"`
	MuteSystemAudio         bool          `mapstructure:"mute_system_audio" json:"muteSystemAudio" yaml:"mute_system_audio"`
	WindowBounds            WindowBounds  `mapstructure:"window_bounds" json:"windowBounds" yaml:"window_bounds"`
	MicrophoneFailurePolicy string        `mapstructure:"microphone_failure_policy" json:"microphoneFailurePolicy" yaml:"microphone_failure_policy"`
	ChunkIntervalMs         int           `mapstructure:"chunk_interval_ms" json:"chunkIntervalMs" yaml:"chunk_interval_ms"`
	FFmpegPath              string        `mapstructure:"ffmpeg_path" json:"ffmpegPath" yaml:"ffmpeg_path"`
	ControlListen           string        `mapstructure:"control_listen" json:"controlListen" yaml:"control_listen"`
	LogLevel                string        `mapstructure:"log_level" json:"logLevel" yaml:"log_level"`
	LogFormat               string        `mapstructure:"log_format" json:"logFormat" yaml:"log_format"`
	LogFile                 string        `mapstructure:"log_file" json:"logFile,omitempty" yaml:"log_file,omitempty"`
	LogMaxSizeMB            int           `mapstructure:"log_max_size_mb" json:"logMaxSizeMb" yaml:"log_max_size_mb"`
	LogMaxBackups           int           `mapstructure:"log_max_backups" json:"logMaxBackups" yaml:"log_max_backups"`
	Archive                 ArchiveConfig `mapstructure:"archive" json:"archive" yaml:"archive"`
}

// AudioPolicy is the pair of mute flags read when a recording starts.
type AudioPolicy struct {
	MuteMicrophone  bool `json:"muteMicrophone"`
	MuteSystemAudio bool `json:"muteSystemAudio"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		OutputDirectory:         DefaultOutputDirectory(),
		DefaultQuality:          "high",
		WindowBounds:            WindowBounds{Width: 400, Height: 600},
		MicrophoneFailurePolicy: MicPolicyContinue,
		ChunkIntervalMs:         1000,
		FFmpegPath:              "ffmpeg",
		ControlListen:           "127.0.0.1:47615",
		LogLevel:                "info",
		LogFormat:               "text",
		LogMaxSizeMB:            20,
		LogMaxBackups:           3,
		Archive: ArchiveConfig{
			Provider:  ArchiveNone,
			Prefix:    "recordings",
			Workers:   2,
			QueueSize: 16,
		},
	}
}

// DefaultOutputDirectory is <videos>/Blooom for the current user.
func DefaultOutputDirectory() string {
	return filepath.Join(videosDir(), "Blooom")
}

// Store is the settings store. Reads return copies; writes are persisted
// to the backing file immediately.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	cfg  Config
	path string
}

// Load reads settings from cfgFile, or from blooom.yaml in the user config
// directory when cfgFile is empty. A missing file is not an error.
// Environment variables prefixed BLOOOM_ override file values.
func Load(cfgFile string) (*Store, error) {
	v := viper.New()
	setDefaults(v, Default())

	path := cfgFile
	if path == "" {
		path = filepath.Join(ConfigDir(), "blooom.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	result := cfg.ValidateTiered()
	if result.HasFatals() {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(result.Fatals...))
	}

	return &Store{v: v, cfg: *cfg, path: path}, nil
}

// NewStore wraps an in-memory config persisted to path. Used by tests and
// by callers that build settings programmatically.
func NewStore(cfg *Config, path string) *Store {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Store{v: v, cfg: *cfg, path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// AudioPolicy returns the current mute flags.
func (s *Store) AudioPolicy() AudioPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AudioPolicy{
		MuteMicrophone:  s.cfg.MuteMicrophone,
		MuteSystemAudio: s.cfg.MuteSystemAudio,
	}
}

// OutputDirectory returns the directory recordings are written to.
func (s *Store) OutputDirectory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.OutputDirectory
}

// MicrophoneFailurePolicy returns "continue" or "abort".
func (s *Store) MicrophoneFailurePolicy() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.MicrophoneFailurePolicy
}

// DefaultQuality returns the encoder quality preset name.
func (s *Store) DefaultQuality() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.DefaultQuality
}

// SetOutputDirectory changes and persists the output directory.
func (s *Store) SetOutputDirectory(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return errors.New("config: output directory must not be empty")
	}
	_, err := s.Update(Patch{OutputDirectory: &dir})
	return err
}

// Patch is a partial settings update. Nil fields are left unchanged.
type Patch struct {
	OutputDirectory         *string       `json:"outputDirectory,omitempty"`
	DefaultQuality          *string       `json:"defaultQuality,omitempty" validate:"omitempty,oneof=low medium high"`
	MuteMicrophone          *bool         `json:"muteMicrophone,omitempty"`
	MuteSystemAudio         *bool         `json:"muteSystemAudio,omitempty"`
	WindowBounds            *WindowBounds `json:"windowBounds,omitempty"`
	MicrophoneFailurePolicy *string       `json:"microphoneFailurePolicy,omitempty" validate:"omitempty,oneof=continue abort"`
}

// Update applies p, validates the result and persists it. A relative
// output directory is resolved against the working directory. On a fatal
// validation error nothing changes.
func (s *Store) Update(p Patch) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if p.OutputDirectory != nil {
		dir := strings.TrimSpace(*p.OutputDirectory)
		if dir != "" {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return s.cfg, fmt.Errorf("config: resolve output directory: %w", err)
			}
			dir = abs
		}
		next.OutputDirectory = dir
	}
	if p.DefaultQuality != nil {
		next.DefaultQuality = *p.DefaultQuality
	}
	if p.MuteMicrophone != nil {
		next.MuteMicrophone = *p.MuteMicrophone
	}
	if p.MuteSystemAudio != nil {
		next.MuteSystemAudio = *p.MuteSystemAudio
	}
	if p.WindowBounds != nil {
		next.WindowBounds = *p.WindowBounds
	}
	if p.MicrophoneFailurePolicy != nil {
		next.MicrophoneFailurePolicy = *p.MicrophoneFailurePolicy
	}

	if result := next.ValidateTiered(); result.HasFatals() {
		return s.cfg, fmt.Errorf("config: %w", errors.Join(result.Fatals...))
	}

	if err := s.write(&next); err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

// Save persists the current settings.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	return s.write(&cfg)
}

func (s *Store) write(cfg *Config) error {
	if s.path == "" {
		return nil
	}
	setValues(s.v, cfg)

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("config: write %s: %w", s.path, err)
	}
	// Archive credentials may live in this file.
	return os.Chmod(s.path, 0o600)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	for key, val := range flatten(cfg) {
		v.SetDefault(key, val)
	}
}

func setValues(v *viper.Viper, cfg *Config) {
	for key, val := range flatten(cfg) {
		v.Set(key, val)
	}
}

func flatten(cfg *Config) map[string]any {
	return map[string]any{
		"output_directory":          cfg.OutputDirectory,
		"default_quality":           cfg.DefaultQuality,
		"mute_microphone":           cfg.MuteMicrophone,
		"mute_system_audio":         cfg.MuteSystemAudio,
		"window_bounds.width":       cfg.WindowBounds.Width,
		"window_bounds.height":      cfg.WindowBounds.Height,
		"window_bounds.x":           cfg.WindowBounds.X,
		"window_bounds.y":           cfg.WindowBounds.Y,
		"microphone_failure_policy": cfg.MicrophoneFailurePolicy,
		"chunk_interval_ms":         cfg.ChunkIntervalMs,
		"ffmpeg_path":               cfg.FFmpegPath,
		"control_listen":            cfg.ControlListen,
		"log_level":                 cfg.LogLevel,
		"log_format":                cfg.LogFormat,
		"log_file":                  cfg.LogFile,
		"log_max_size_mb":           cfg.LogMaxSizeMB,
		"log_max_backups":           cfg.LogMaxBackups,
		"archive.provider":          cfg.Archive.Provider,
		"archive.bucket":            cfg.Archive.Bucket,
		"archive.prefix":            cfg.Archive.Prefix,
		"archive.region":            cfg.Archive.Region,
		"archive.endpoint":          cfg.Archive.Endpoint,
		"archive.access_key_id":     cfg.Archive.AccessKeyID,
		"archive.secret_access_key": cfg.Archive.SecretAccessKey,
		"archive.session_token":     cfg.Archive.SessionToken,
		"archive.credentials_file":  cfg.Archive.CredentialsFile,
		"archive.connection_string": cfg.Archive.ConnectionString,
		"archive.account_id":        cfg.Archive.AccountID,
		"archive.application_key":   cfg.Archive.ApplicationKey,
		"archive.local_path":        cfg.Archive.LocalPath,
		"archive.workers":           cfg.Archive.Workers,
		"archive.queue_size":        cfg.Archive.QueueSize,
	}
}

// ConfigDir is the per-user directory holding blooom.yaml.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "blooom")
	}
	return "."
}

func videosDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Movies")
	case "windows":
		return filepath.Join(home, "Videos")
	default:
		if xdg := os.Getenv("XDG_VIDEOS_DIR"); xdg != "" {
			return xdg
		}
		return filepath.Join(home, "Videos")
	}
}
