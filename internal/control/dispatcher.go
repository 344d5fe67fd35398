package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/config"
	"github.com/realsaraf/blooom/internal/health"
	"github.com/realsaraf/blooom/internal/session"
	"github.com/realsaraf/blooom/internal/storage"
	"github.com/realsaraf/blooom/internal/version"
)

// Recorder is the part of session.Recorder the dispatcher drives.
type Recorder interface {
	ListTargets(ctx context.Context) ([]capture.Target, error)
	Start(ctx context.Context, target *capture.Target, opts ...session.StartOption) (session.Snapshot, error)
	Pause(ctx context.Context) (session.Snapshot, error)
	Resume(ctx context.Context) (session.Snapshot, error)
	Stop(ctx context.Context) (session.Snapshot, error)
	Snapshot(ctx context.Context) (session.Snapshot, error)
}

// Settings is the part of config.Store the dispatcher reads and writes.
type Settings interface {
	Snapshot() config.Config
	AudioPolicy() config.AudioPolicy
	Update(p config.Patch) (config.Config, error)
	SetOutputDirectory(dir string) error
}

// ArchiveJobs lists upload jobs of the remote mirror.
type ArchiveJobs interface {
	Jobs() []storage.Job
}

// RevealFunc shows path in the platform file manager.
type RevealFunc func(ctx context.Context, path string) error

// Dispatcher routes shell commands to the recorder and settings store.
type Dispatcher struct {
	recorder Recorder
	settings Settings
	reveal   RevealFunc
	health   *health.Monitor
	archive  ArchiveJobs
	validate *validator.Validate
}

// DispatcherConfig wires a Dispatcher. Health, Archive and Reveal are
// optional.
type DispatcherConfig struct {
	Recorder Recorder
	Settings Settings
	Reveal   RevealFunc
	Health   *health.Monitor
	Archive  ArchiveJobs
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Recorder == nil {
		return nil, errors.New("control: recorder is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("control: settings are required")
	}
	return &Dispatcher{
		recorder: cfg.Recorder,
		settings: cfg.Settings,
		reveal:   cfg.Reveal,
		health:   cfg.Health,
		archive:  cfg.Archive,
		validate: validator.New(),
	}, nil
}

// Handle runs cmd and returns its result.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) Result {
	v, err := d.route(ctx, cmd)
	if err != nil {
		log.Debug("command failed", "type", cmd.Type, "commandId", cmd.ID, "error", err)
		return errorResult(cmd, err)
	}
	return Result{Type: TypeResult, CommandID: cmd.ID, Status: StatusOK, Result: v}
}

func errorResult(cmd Command, err error) Result {
	res := Result{
		Type:      TypeResult,
		CommandID: cmd.ID,
		Status:    StatusError,
		Error:     err.Error(),
		ErrorKind: string(session.KindOf(err)),
	}
	var serr *session.Error
	if errors.As(err, &serr) {
		res.Error = serr.Message
	}
	return res
}

var errUnknownCommand = errors.New("unknown command")

func (d *Dispatcher) route(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Type {
	case TypeGetSources:
		return d.sources(ctx)
	case TypeGetConfig:
		return d.settings.Snapshot(), nil
	case TypeUpdateConfig:
		return d.updateConfig(cmd)
	case TypeSetOutputDirectory:
		return d.setOutputDirectory(cmd)
	case TypeStartRecording:
		return d.startRecording(ctx, cmd)
	case TypePauseRecording:
		return d.recorder.Pause(ctx)
	case TypeResumeRecording:
		return d.recorder.Resume(ctx)
	case TypeStopRecording:
		return d.recorder.Stop(ctx)
	case TypeGetSession:
		return d.recorder.Snapshot(ctx)
	case TypeOpenFileLocation:
		return d.openFileLocation(ctx, cmd)
	case TypeGetAppVersion:
		return version.Get(), nil
	case TypeGetHealth:
		if d.health == nil {
			return map[string]any{"status": health.Unknown}, nil
		}
		return d.health.Summary(), nil
	case TypeListArchive:
		if d.archive == nil {
			return nil, storage.ErrArchiveDisabled
		}
		return d.archive.Jobs(), nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, cmd.Type)
	}
}

func (d *Dispatcher) decode(cmd Command, v any) error {
	if len(cmd.Payload) == 0 {
		return fmt.Errorf("%s: payload is required", cmd.Type)
	}
	if err := json.Unmarshal(cmd.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", cmd.Type, err)
	}
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("%s: %w", cmd.Type, err)
	}
	return nil
}

func (d *Dispatcher) sources(ctx context.Context) ([]Source, error) {
	targets, err := d.recorder.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Source, 0, len(targets))
	for _, t := range targets {
		out = append(out, Source{
			ID:        t.ID,
			Name:      t.DisplayName,
			Kind:      t.Kind,
			Bounds:    t.Bounds,
			Primary:   t.Primary,
			Thumbnail: t.PreviewDataURL(),
		})
	}
	return out, nil
}

func (d *Dispatcher) updateConfig(cmd Command) (config.Config, error) {
	var p config.Patch
	if err := d.decode(cmd, &p); err != nil {
		return config.Config{}, err
	}
	return d.settings.Update(p)
}

func (d *Dispatcher) setOutputDirectory(cmd Command) (config.Config, error) {
	var req PathRequest
	if err := d.decode(cmd, &req); err != nil {
		return config.Config{}, err
	}
	if err := d.settings.SetOutputDirectory(req.Path); err != nil {
		return config.Config{}, err
	}
	return d.settings.Snapshot(), nil
}

func (d *Dispatcher) startRecording(ctx context.Context, cmd Command) (session.Snapshot, error) {
	var req StartRecordingRequest
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return session.Snapshot{}, fmt.Errorf("%s: invalid payload: %w", cmd.Type, err)
		}
	}
	if req.SourceID == "" {
		return d.recorder.Start(ctx, nil)
	}
	if err := d.validate.Struct(req); err != nil {
		return session.Snapshot{}, fmt.Errorf("%s: %w", cmd.Type, err)
	}

	policy := d.settings.AudioPolicy()
	if req.MuteMicrophone != nil {
		policy.MuteMicrophone = *req.MuteMicrophone
	}
	if req.MuteSystemAudio != nil {
		policy.MuteSystemAudio = *req.MuteSystemAudio
	}
	return d.recorder.Start(ctx, &capture.Target{ID: req.SourceID}, session.WithAudioPolicy(policy))
}

func (d *Dispatcher) openFileLocation(ctx context.Context, cmd Command) (any, error) {
	var req PathRequest
	if err := d.decode(cmd, &req); err != nil {
		return nil, err
	}
	if _, err := os.Stat(req.Path); err != nil {
		return nil, err
	}
	if d.reveal == nil {
		return nil, errors.New("revealing files is not supported")
	}
	if err := d.reveal(ctx, req.Path); err != nil {
		return nil, err
	}
	return map[string]string{"path": req.Path}, nil
}
