package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realsaraf/blooom/internal/health"
	"github.com/realsaraf/blooom/internal/storage/providers"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 45, 123_000_000, time.UTC)
	assert.Equal(t, "recording-2024-05-01T12-30-45-123Z.webm", FileName(ts, "webm"))
	assert.Equal(t, "recording-2024-05-01T12-30-45-123Z.webm", FileName(ts, ".webm"))

	// Local times are rendered in UTC.
	loc := time.FixedZone("UTC+2", 2*60*60)
	assert.Equal(t, "recording-2024-05-01T12-30-45-123Z.webm", FileName(ts.In(loc), "webm"))

	assert.Equal(t, "recording-2024-05-01T12-30-45-000Z.webm",
		FileName(time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC), "webm"))
}

func quietPersister() *Persister {
	return &Persister{LowSpaceBytes: -1}
}

func TestPersistCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "Blooom")
	p := quietPersister()

	got, err := p.Persist(context.Background(), []byte("payload"), "recording-x.webm", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "recording-x.webm"), got)
	assert.True(t, filepath.IsAbs(got))

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestPersistEmptyPayload(t *testing.T) {
	dir := t.TempDir()
	got, err := quietPersister().Persist(context.Background(), nil, "recording-empty.webm", dir)
	require.NoError(t, err)
	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestPersistNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "recording-x.webm")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	_, err := quietPersister().Persist(context.Background(), []byte("new"), "recording-x.webm", dir)
	require.ErrorIs(t, err, ErrExists)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestPersistRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"", ".", "..", "../x.webm", "sub/x.webm"} {
		_, err := quietPersister().Persist(context.Background(), []byte("x"), name, dir)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestPersistUnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	parent := t.TempDir()
	require.NoError(t, os.Chmod(parent, 0o500))
	t.Cleanup(func() { os.Chmod(parent, 0o755) })

	_, err := quietPersister().Persist(context.Background(), []byte("x"), "recording-x.webm", filepath.Join(parent, "child"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExists)
}

func TestPersistCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	_, err := quietPersister().Persist(ctx, []byte("x"), "recording-x.webm", dir)
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(dir, "recording-x.webm"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestPersistLowSpaceCheck(t *testing.T) {
	var checked string
	p := &Persister{
		LowSpaceBytes: 10,
		freeSpace: func(_ context.Context, dir string) (uint64, error) {
			checked = dir
			return 1, nil
		},
	}
	dir := t.TempDir()
	_, err := p.Persist(context.Background(), []byte("x"), "recording-x.webm", dir)
	require.NoError(t, err, "low space is a warning only")
	assert.Equal(t, dir, checked)
}

// memProvider is an in-memory providers.Provider.
type memProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
	failUp  error
	// flaky fails this many uploads before succeeding.
	flaky   int
	uploads int
	block   chan struct{}
}

func newMemProvider() *memProvider {
	return &memProvider{objects: make(map[string][]byte)}
}

func (m *memProvider) Name() string { return "mem" }

func (m *memProvider) Upload(ctx context.Context, local, remote string) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.failUp != nil {
		return m.failUp
	}
	m.mu.Lock()
	m.uploads++
	flaky := m.uploads <= m.flaky
	m.mu.Unlock()
	if flaky {
		return errors.New("503 slow down")
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[remote] = data
	m.mu.Unlock()
	return nil
}

func (m *memProvider) Download(_ context.Context, remote, local string) error {
	m.mu.Lock()
	data, ok := m.objects[remote]
	m.mu.Unlock()
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(local, data, 0o644)
}

func (m *memProvider) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memProvider) Delete(_ context.Context, remote string) error {
	m.mu.Lock()
	delete(m.objects, remote)
	m.mu.Unlock()
	return nil
}

var _ providers.Provider = (*memProvider)(nil)

func waitJob(t *testing.T, a *Archiver, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		j, ok := a.Job(id)
		job = j
		return ok && (j.Status == JobCompleted || j.Status == JobFailed)
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func writeRecording(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestNewArchiverRequiresProvider(t *testing.T) {
	_, err := NewArchiver(ArchiverConfig{})
	require.ErrorIs(t, err, ErrArchiveDisabled)
}

func TestArchiverUploads(t *testing.T) {
	mem := newMemProvider()
	mon := health.NewMonitor()
	a, err := NewArchiver(ArchiverConfig{Provider: mem, Prefix: "recordings", Health: mon})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	local := writeRecording(t, t.TempDir(), "recording-1.webm", "abc")
	job, ok := a.Enqueue(local)
	require.True(t, ok)
	assert.Equal(t, "recordings/recording-1.webm", job.RemoteKey)

	done := waitJob(t, a, job.ID)
	assert.Equal(t, JobCompleted, done.Status)
	assert.Equal(t, []byte("abc"), mem.objects["recordings/recording-1.webm"])

	check, ok := mon.Get(health.ComponentArchive)
	require.True(t, ok)
	assert.Equal(t, health.Healthy, check.Status)
}

func TestArchiverFailureDegradesHealth(t *testing.T) {
	mem := newMemProvider()
	mem.failUp = errors.New("bucket gone")
	mon := health.NewMonitor()
	a, err := NewArchiver(ArchiverConfig{Provider: mem, Health: mon})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	job, ok := a.Enqueue(writeRecording(t, t.TempDir(), "recording-1.webm", "abc"))
	require.True(t, ok)
	done := waitJob(t, a, job.ID)
	assert.Equal(t, JobFailed, done.Status)
	assert.Contains(t, done.Error, "bucket gone")

	check, _ := mon.Get(health.ComponentArchive)
	assert.Equal(t, health.Degraded, check.Status)
}

func TestArchiverRetriesTransientFailures(t *testing.T) {
	mem := newMemProvider()
	mem.flaky = 2
	a, err := NewArchiver(ArchiverConfig{
		Provider: mem,
		Retry:    RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffFactor: 2},
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	job, ok := a.Enqueue(writeRecording(t, t.TempDir(), "recording-1.webm", "abc"))
	require.True(t, ok)
	done := waitJob(t, a, job.ID)
	assert.Equal(t, JobCompleted, done.Status, done.Error)
	assert.Equal(t, 3, mem.uploads)
}

func TestArchiverDoesNotRetryMissingFile(t *testing.T) {
	mem := newMemProvider()
	a, err := NewArchiver(ArchiverConfig{
		Provider: mem,
		Retry:    RetryPolicy{MaxRetries: 3, InitialDelay: time.Second},
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	job, ok := a.Enqueue(filepath.Join(t.TempDir(), "recording-gone.webm"))
	require.True(t, ok)
	done := waitJob(t, a, job.ID)
	assert.Equal(t, JobFailed, done.Status)
	assert.Equal(t, 1, mem.uploads)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour}, "x", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestApplyJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := applyJitter(time.Second, 0.3)
		assert.GreaterOrEqual(t, d, 700*time.Millisecond)
		assert.LessOrEqual(t, d, 1300*time.Millisecond)
	}
	assert.Equal(t, time.Second, applyJitter(time.Second, 0))
}

func TestArchiverQueueFull(t *testing.T) {
	mem := newMemProvider()
	mem.block = make(chan struct{})
	a, err := NewArchiver(ArchiverConfig{Provider: mem, Workers: 1, QueueSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		close(mem.block)
		a.Close(context.Background())
	})

	dir := t.TempDir()
	var rejected int
	for i := 0; i < 5; i++ {
		job, ok := a.Enqueue(writeRecording(t, dir, "recording-"+string(rune('a'+i))+".webm", "x"))
		if !ok {
			rejected++
			assert.Equal(t, JobFailed, job.Status)
		}
	}
	assert.Positive(t, rejected)
}

func TestArchiverSyncListPrune(t *testing.T) {
	mem := newMemProvider()
	a, err := NewArchiver(ArchiverConfig{Provider: mem, Prefix: "r"})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	dir := t.TempDir()
	writeRecording(t, dir, "recording-2024-01-01T00-00-00-000Z.webm", "1")
	writeRecording(t, dir, "recording-2024-01-02T00-00-00-000Z.webm", "2")
	writeRecording(t, dir, "recording-2024-01-03T00-00-00-000Z.webm", "3")
	writeRecording(t, dir, "notes.txt", "ignored")
	mem.objects["r/recording-2024-01-01T00-00-00-000Z.webm"] = []byte("1")

	queued, err := a.Sync(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	require.Eventually(t, func() bool {
		keys, _ := a.List(context.Background())
		return len(keys) == 3
	}, 2*time.Second, 5*time.Millisecond)

	deleted, err := a.Prune(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"r/recording-2024-01-01T00-00-00-000Z.webm",
		"r/recording-2024-01-02T00-00-00-000Z.webm",
	}, deleted)

	out := filepath.Join(t.TempDir(), "back.webm")
	require.NoError(t, a.Fetch(context.Background(), "r/recording-2024-01-03T00-00-00-000Z.webm", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "3", string(data))

	err = a.Fetch(context.Background(), "r/recording-2024-01-03T00-00-00-000Z.webm", out)
	assert.ErrorIs(t, err, ErrExists, "fetch never replaces a local file")
}
