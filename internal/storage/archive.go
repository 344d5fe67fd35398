package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/realsaraf/blooom/internal/health"
	"github.com/realsaraf/blooom/internal/logging"
	"github.com/realsaraf/blooom/internal/storage/providers"
	"github.com/realsaraf/blooom/internal/workerpool"
)

// Archive job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

const maxJobHistory = 64

// ErrArchiveDisabled is returned by operations that need a provider when
// none is configured.
var ErrArchiveDisabled = errors.New("storage: archive is not configured")

// Job tracks one upload of a finalized recording.
type Job struct {
	ID          string    `json:"id"`
	LocalPath   string    `json:"localPath"`
	RemoteKey   string    `json:"remoteKey"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	QueuedAt    time.Time `json:"queuedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// ArchiverConfig configures an Archiver.
type ArchiverConfig struct {
	Provider  providers.Provider
	Prefix    string
	Workers   int
	QueueSize int
	Health    *health.Monitor
	// UploadTimeout bounds a single upload attempt. Zero means 30 minutes.
	UploadTimeout time.Duration
	// Retry applies to failed uploads. The zero value makes one attempt.
	Retry RetryPolicy
}

// Archiver mirrors finalized recordings to a remote provider in the
// background. Failures never affect the recording; they are logged and
// reported through the health monitor.
type Archiver struct {
	cfg  ArchiverConfig
	pool *workerpool.Pool

	mu    sync.Mutex
	jobs  []*Job
	index map[string]*Job
}

// NewArchiver starts the upload workers. cfg.Provider must be non-nil.
func NewArchiver(cfg ArchiverConfig) (*Archiver, error) {
	if cfg.Provider == nil {
		return nil, ErrArchiveDisabled
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Minute
	}
	a := &Archiver{
		cfg:   cfg,
		pool:  workerpool.New("archive", cfg.Workers, cfg.QueueSize),
		index: make(map[string]*Job),
	}
	a.report(health.Healthy, "ready ("+cfg.Provider.Name()+")")
	return a, nil
}

// Provider returns the configured remote store.
func (a *Archiver) Provider() providers.Provider {
	return a.cfg.Provider
}

// Enqueue schedules localPath for upload and returns the job. When the
// queue is full the job is recorded as failed and returned with ok=false.
func (a *Archiver) Enqueue(localPath string) (Job, bool) {
	job := &Job{
		ID:        uuid.NewString(),
		LocalPath: localPath,
		RemoteKey: providers.ObjectKey(a.cfg.Prefix, localPath),
		Status:    JobQueued,
		QueuedAt:  time.Now().UTC(),
	}
	a.track(job)

	ok := a.pool.Submit("upload "+job.RemoteKey, func(ctx context.Context) {
		a.upload(ctx, job.ID)
	})
	if !ok {
		a.finish(job.ID, errors.New("archive queue is full"))
		log.Warn("archive queue full, recording not mirrored", logging.KeyPath, localPath)
		return a.snapshot(job.ID), false
	}
	return a.snapshot(job.ID), true
}

func (a *Archiver) upload(ctx context.Context, id string) {
	a.mu.Lock()
	job := a.index[id]
	job.Status = JobRunning
	local, remote := job.LocalPath, job.RemoteKey
	a.mu.Unlock()

	start := time.Now()
	err := withRetry(ctx, a.cfg.Retry, "upload "+remote, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.UploadTimeout)
		defer cancel()
		return a.cfg.Provider.Upload(ctx, local, remote)
	})
	a.finish(id, err)
	if err != nil {
		log.Warn("archive upload failed",
			logging.KeyPath, local,
			"remote", remote,
			logging.KeyError, err)
		a.report(health.Degraded, fmt.Sprintf("upload of %s failed: %v", filepath.Base(local), err))
		return
	}
	log.Info("recording archived",
		logging.KeyPath, local,
		"remote", remote,
		"provider", a.cfg.Provider.Name(),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	a.report(health.Healthy, "last upload "+remote)
}

// Jobs returns the most recent jobs, oldest first.
func (a *Archiver) Jobs() []Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Job, 0, len(a.jobs))
	for _, j := range a.jobs {
		out = append(out, *j)
	}
	return out
}

// Job returns a copy of the job with the given id.
func (a *Archiver) Job(id string) (Job, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.index[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns the archived recording keys under the configured prefix,
// sorted by name (and so by recording time).
func (a *Archiver) List(ctx context.Context) ([]string, error) {
	keys, err := a.cfg.Provider.List(ctx, a.prefix())
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Fetch downloads an archived recording to localPath. An existing file at
// localPath is never replaced.
func (a *Archiver) Fetch(ctx context.Context, remoteKey, localPath string) error {
	if _, err := os.Lstat(localPath); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, localPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return a.cfg.Provider.Download(ctx, remoteKey, localPath)
}

// Sync enqueues every recording in dir that is not yet present remotely
// and returns the number of jobs queued.
func (a *Archiver) Sync(ctx context.Context, dir string) (int, error) {
	remote, err := a.cfg.Provider.List(ctx, a.prefix())
	if err != nil {
		return 0, err
	}
	have := make(map[string]struct{}, len(remote))
	for _, k := range remote {
		have[path.Base(k)] = struct{}{}
	}

	var missing []string
	err = filepath.WalkDir(dir, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			if p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !isRecording(entry.Name()) {
			return nil
		}
		if _, ok := have[entry.Name()]; !ok {
			missing = append(missing, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}

	sort.Strings(missing)
	queued := 0
	for _, p := range missing {
		if _, ok := a.Enqueue(p); ok {
			queued++
		}
	}
	return queued, nil
}

// Prune deletes the oldest archived recordings so that at most keep remain.
// It returns the deleted keys.
func (a *Archiver) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative")
	}
	keys, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	var recordings []string
	for _, k := range keys {
		if isRecording(path.Base(k)) {
			recordings = append(recordings, k)
		}
	}
	if len(recordings) <= keep {
		return nil, nil
	}

	var deleted []string
	var errs []error
	for _, k := range recordings[:len(recordings)-keep] {
		if err := a.cfg.Provider.Delete(ctx, k); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, k)
	}
	return deleted, errors.Join(errs...)
}

// Close waits for queued uploads until ctx expires.
func (a *Archiver) Close(ctx context.Context) {
	a.pool.Shutdown(ctx)
}

func (a *Archiver) prefix() string {
	p := strings.Trim(filepath.ToSlash(a.cfg.Prefix), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (a *Archiver) track(job *Job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job)
	a.index[job.ID] = job
	for len(a.jobs) > maxJobHistory {
		old := a.jobs[0]
		if old.Status == JobQueued || old.Status == JobRunning {
			break
		}
		delete(a.index, old.ID)
		a.jobs = a.jobs[1:]
	}
}

func (a *Archiver) finish(id string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	job, ok := a.index[id]
	if !ok {
		return
	}
	job.CompletedAt = time.Now().UTC()
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		return
	}
	job.Status = JobCompleted
}

func (a *Archiver) snapshot(id string) Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.index[id]
}

func (a *Archiver) report(status health.Status, msg string) {
	if a.cfg.Health != nil {
		a.cfg.Health.Update(health.ComponentArchive, status, msg)
	}
}

func isRecording(name string) bool {
	return strings.HasPrefix(name, "recording-") && strings.HasSuffix(name, ".webm")
}
