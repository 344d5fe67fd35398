// Package session runs recording sessions. A Recorder owns at most one
// active session and drives it through its lifecycle from a single event
// loop: commands, device results, encoder output, ticks and persistence
// results are all delivered to that loop, so session state needs no locks.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/realsaraf/blooom/internal/audio"
	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/config"
	"github.com/realsaraf/blooom/internal/encoder"
	"github.com/realsaraf/blooom/internal/health"
	"github.com/realsaraf/blooom/internal/logging"
	"github.com/realsaraf/blooom/internal/overlay"
	"github.com/realsaraf/blooom/internal/storage"
)

var log = logging.L("session")

const (
	defaultFinalizeTimeout = 15 * time.Second
	chromeTimeout          = 5 * time.Second
	eventQueueSize         = 256
	subscriberBuffer       = 64
	waitPollInterval       = 500 * time.Millisecond
)

// Config wires a Recorder to its collaborators. Acquirer, Encoder,
// Persister and Settings are required.
type Config struct {
	Sources    Sources
	Acquirer   Acquirer
	Microphone MicrophoneOpener
	Encoder    encoder.Encoder
	Persister  Persister
	Settings   Settings
	Overlays   Overlays
	Chrome     HostChrome
	Archive    Archive
	Health     *health.Monitor
	Clock      Clock

	// Timeslice is the chunk cadence requested from the encoder.
	Timeslice time.Duration
	// FinalizeTimeout bounds the wait for the encoder's final flush after
	// stop. The chunks received so far are saved when it expires.
	FinalizeTimeout time.Duration
}

// session is the live recording. Only the event loop touches it.
type session struct {
	id        string
	state     State
	target    capture.Target
	policy    config.AudioPolicy
	outputDir string
	micPolicy string
	quality   encoder.QualityPreset
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	stream *capture.Stream
	mic    audio.Source
	audio  audio.Source
	proc   encoder.Process

	overlay   overlay.Handle
	minimized bool

	ticker   Ticker
	tickStop chan struct{}

	active      time.Duration
	activeSince time.Time
	elapsed     int

	chunks      [][]byte
	bytes       int64
	stopQueued  bool
	interrupted bool
	persisting  bool
	finalize    *time.Timer

	outputPath    string
	failureReason string
	failureKind   Kind
	warnings      []string
	startedAt     time.Time
	endedAt       time.Time
}

func (s *session) elapsedAt(now time.Time) int {
	d := s.active
	if s.state == Recording {
		d += now.Sub(s.activeSince)
	}
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// Recorder is the single owner of recording sessions.
type Recorder struct {
	cfg Config

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan func()
	done      chan struct{}
	closeOnce sync.Once

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	cur *session
}

// NewRecorder validates cfg and starts the event loop.
func NewRecorder(cfg Config) (*Recorder, error) {
	switch {
	case cfg.Acquirer == nil:
		return nil, errors.New("session: acquirer is required")
	case cfg.Encoder == nil:
		return nil, errors.New("session: encoder is required")
	case cfg.Persister == nil:
		return nil, errors.New("session: persister is required")
	case cfg.Settings == nil:
		return nil, errors.New("session: settings are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Chrome == nil {
		cfg.Chrome = noopChrome{}
	}
	if cfg.Overlays == nil {
		cfg.Overlays = overlay.NewCoordinator(nil, cfg.Health)
	}
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = encoder.DefaultTimeslice
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = defaultFinalizeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan func(), eventQueueSize),
		done:   make(chan struct{}),
		subs:   make(map[int]chan Event),
	}
	go r.loop()
	return r, nil
}

func (r *Recorder) loop() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.events:
			fn()
		case <-r.ctx.Done():
			return
		}
	}
}

// post queues fn for the loop. It reports false once the recorder is closed.
func (r *Recorder) post(fn func()) bool {
	select {
	case r.events <- fn:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// do runs fn on the loop and waits for it.
func (r *Recorder) do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	select {
	case r.events <- func() { fn(); close(reply) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrClosed
	}
	select {
	case <-reply:
		return nil
	case <-r.done:
		select {
		case <-reply:
			return nil
		default:
			return ErrClosed
		}
	}
}

// StartOption adjusts a single Start call.
type StartOption func(*startOptions)

type startOptions struct {
	policy *config.AudioPolicy
}

// WithAudioPolicy overrides the stored mute flags for one session.
func WithAudioPolicy(p config.AudioPolicy) StartOption {
	return func(o *startOptions) { o.policy = &p }
}

// ListTargets enumerates capture targets. Failures and empty results are
// reported as KindCaptureUnavailable.
func (r *Recorder) ListTargets(ctx context.Context) ([]capture.Target, error) {
	if r.cfg.Sources == nil {
		return nil, NewError(KindCaptureUnavailable, "", capture.ErrNotSupported)
	}
	targets, err := r.cfg.Sources.ListTargets(ctx)
	if err != nil {
		r.report(health.ComponentCapture, health.Unhealthy, err.Error())
		return nil, NewError(KindCaptureUnavailable, "", err)
	}
	if len(targets) == 0 {
		r.report(health.ComponentCapture, health.Unhealthy, "no capture targets")
		return nil, NewError(KindCaptureUnavailable, "", capture.ErrCaptureUnavailable)
	}
	r.report(health.ComponentCapture, health.Healthy, fmt.Sprintf("%d targets", len(targets)))
	return targets, nil
}

// Start begins a session for target. A nil target fails synchronously with
// KindNoTargetSelected. ErrSessionActive is returned while another session
// is active. The returned snapshot is in the Requesting state; progress is
// reported through Subscribe.
func (r *Recorder) Start(ctx context.Context, target *capture.Target, opts ...StartOption) (Snapshot, error) {
	if target == nil {
		return Snapshot{}, NewError(KindNoTargetSelected, "", nil)
	}
	var so startOptions
	for _, o := range opts {
		o(&so)
	}

	var snap Snapshot
	var err error
	if derr := r.do(ctx, func() { snap, err = r.start(*target, so) }); derr != nil {
		return Snapshot{}, derr
	}
	return snap, err
}

func (r *Recorder) start(target capture.Target, so startOptions) (Snapshot, error) {
	if r.cur != nil && r.cur.state.Active() {
		return r.snapshot(r.cur), ErrSessionActive
	}

	settings := r.cfg.Settings
	policy := settings.AudioPolicy()
	if so.policy != nil {
		policy = *so.policy
	}
	outputDir := settings.OutputDirectory()
	if strings.TrimSpace(outputDir) == "" {
		return Snapshot{}, NewError(KindStorageError, "No output directory is configured.", nil)
	}

	s := &session{
		id:        uuid.NewString(),
		state:     Idle,
		target:    target,
		policy:    policy,
		outputDir: outputDir,
		micPolicy: settings.MicrophoneFailurePolicy(),
		quality:   encoder.QualityPreset(settings.DefaultQuality()),
		startedAt: r.cfg.Clock.Now(),
	}
	s.ctx, s.cancel = context.WithCancel(r.ctx)
	s.log = logging.WithSession(log, s.id)
	r.cur = s

	s.log.Info("starting recording",
		logging.KeyTarget, target.ID,
		"muteMicrophone", policy.MuteMicrophone,
		"muteSystemAudio", policy.MuteSystemAudio)
	r.transition(s, Requesting)

	go r.acquire(s.ctx, s.id, target, !policy.MuteSystemAudio)
	return r.snapshot(s), nil
}

func (r *Recorder) acquire(ctx context.Context, id string, target capture.Target, withSystemAudio bool) {
	stream, err := r.cfg.Acquirer.Acquire(ctx, target, withSystemAudio)
	if !r.post(func() { r.onAcquired(id, stream, err) }) && stream != nil {
		stream.Close()
	}
}

func (r *Recorder) onAcquired(id string, stream *capture.Stream, err error) {
	s := r.session(id)
	if s == nil || s.state != Requesting {
		if stream != nil {
			stream.Close()
		}
		return
	}
	if err != nil {
		r.report(health.ComponentCapture, health.Unhealthy, err.Error())
		r.end(s, Failed, acquisitionError(err))
		return
	}

	s.stream = stream
	// The acquirer resolved the target against a fresh enumeration; its
	// name and geometry are authoritative over what the caller passed.
	if stream.Target.ID != "" {
		resolved := stream.Target
		if resolved.Preview == nil {
			resolved.Preview = s.target.Preview
		}
		s.target = resolved
	}
	r.report(health.ComponentCapture, health.Healthy, stream.Target.ID)
	for _, w := range stream.Warnings {
		r.warn(s, NewError(KindDeviceWarning, w, nil))
	}

	if s.policy.MuteMicrophone {
		r.begin(s, nil)
		return
	}
	if r.cfg.Microphone == nil {
		r.onMicrophone(id, nil, audio.ErrNoDevice)
		return
	}
	go func(ctx context.Context) {
		mic, err := r.cfg.Microphone.OpenMicrophone(ctx)
		if !r.post(func() { r.onMicrophone(id, mic, err) }) && mic != nil {
			mic.Close()
		}
	}(s.ctx)
}

func (r *Recorder) onMicrophone(id string, mic audio.Source, err error) {
	s := r.session(id)
	if s == nil || s.state != Requesting {
		if mic != nil {
			mic.Close()
		}
		return
	}
	if err != nil {
		r.report(health.ComponentMicrophone, health.Degraded, err.Error())
		if s.micPolicy == config.MicPolicyAbort {
			r.end(s, Failed, NewError(KindAcquisitionFailed, "The microphone is unavailable.", err))
			return
		}
		r.warn(s, NewError(KindDeviceWarning, "Microphone unavailable; recording without it.", err))
		r.begin(s, nil)
		return
	}
	r.report(health.ComponentMicrophone, health.Healthy, "")
	r.begin(s, mic)
}

// begin composes audio, starts the encoder and enters Recording.
func (r *Recorder) begin(s *session, mic audio.Source) {
	s.mic = mic
	s.audio = audio.Compose(s.stream.SystemAudio, mic)

	proc, err := r.cfg.Encoder.Start(s.ctx, encoder.Request{
		Video:     s.stream.Video,
		Audio:     s.audio,
		Quality:   s.quality,
		Timeslice: r.cfg.Timeslice,
		Sink:      &sink{r: r, id: s.id},
	})
	if err != nil {
		r.report(health.ComponentEncoder, health.Unhealthy, err.Error())
		r.end(s, Failed, NewError(KindAcquisitionFailed, "The encoder could not be started.", err))
		return
	}
	s.proc = proc
	r.report(health.ComponentEncoder, health.Healthy, "")

	if !r.transition(s, Recording) {
		return
	}
	s.activeSince = r.cfg.Clock.Now()
	s.ticker = r.cfg.Clock.NewTicker(time.Second)
	s.tickStop = make(chan struct{})
	go r.tick(s.id, s.ticker, s.tickStop)

	bounds := s.stream.Video.Bounds
	if bounds.Empty() {
		bounds = s.target.Bounds
	}
	s.overlay = r.cfg.Overlays.Open(s.ctx, s.id, bounds)

	s.minimized = true
	ctx, cancel := context.WithTimeout(r.ctx, chromeTimeout)
	if err := r.cfg.Chrome.Minimize(ctx); err != nil {
		s.log.Warn("host window minimize failed", logging.KeyError, err)
	}
	cancel()

	if s.stopQueued {
		s.log.Info("applying stop requested during acquisition")
		r.finalize(s, false, nil)
	}
}

func (r *Recorder) tick(id string, t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-t.C():
			if !r.post(func() { r.onTick(id) }) {
				return
			}
		case <-stop:
			return
		}
	}
}

func (r *Recorder) onTick(id string) {
	s := r.session(id)
	if s == nil || s.state != Recording {
		return
	}
	if e := s.elapsedAt(r.cfg.Clock.Now()); e != s.elapsed {
		s.elapsed = e
		r.publish(Event{Type: EventTick, Session: r.snapshot(s)})
	}
}

// Pause suspends encoding. Pausing a paused session does nothing.
func (r *Recorder) Pause(ctx context.Context) (Snapshot, error) {
	return r.command(ctx, r.pause)
}

func (r *Recorder) pause(s *session) error {
	switch s.state {
	case Paused:
		return nil
	case Recording:
	default:
		return fmt.Errorf("%w: pause while %s", ErrInvalidState, s.state)
	}
	if err := s.proc.Pause(); err != nil {
		return fmt.Errorf("session: pause: %w", err)
	}
	now := r.cfg.Clock.Now()
	s.active += now.Sub(s.activeSince)
	s.elapsed = s.elapsedAt(now)
	r.transition(s, Paused)
	return nil
}

// Resume continues a paused session. In any other state it does nothing.
func (r *Recorder) Resume(ctx context.Context) (Snapshot, error) {
	return r.command(ctx, r.resume)
}

func (r *Recorder) resume(s *session) error {
	if s.state != Paused {
		return nil
	}
	if err := s.proc.Resume(); err != nil {
		return fmt.Errorf("session: resume: %w", err)
	}
	s.activeSince = r.cfg.Clock.Now()
	r.transition(s, Recording)
	return nil
}

// Stop ends the session. During Requesting the stop is remembered and
// applied once acquisition settles. Stopping a finalizing or finished
// session does nothing.
func (r *Recorder) Stop(ctx context.Context) (Snapshot, error) {
	return r.command(ctx, r.stop)
}

func (r *Recorder) stop(s *session) error {
	switch s.state {
	case Requesting:
		if !s.stopQueued {
			s.stopQueued = true
			s.log.Info("stop queued until acquisition settles")
		}
	case Recording, Paused:
		r.finalize(s, false, nil)
	}
	return nil
}

// Snapshot returns the current or most recent session.
func (r *Recorder) Snapshot(ctx context.Context) (Snapshot, error) {
	return r.command(ctx, func(*session) error { return nil })
}

func (r *Recorder) command(ctx context.Context, fn func(*session) error) (Snapshot, error) {
	var snap Snapshot
	var err error
	derr := r.do(ctx, func() {
		if r.cur == nil {
			err = ErrNoSession
			return
		}
		err = fn(r.cur)
		snap = r.snapshot(r.cur)
	})
	if derr != nil {
		return Snapshot{}, derr
	}
	return snap, err
}

// Wait blocks until the current session is Completed or Failed.
func (r *Recorder) Wait(ctx context.Context) (Snapshot, error) {
	events, cancel := r.Subscribe()
	defer cancel()

	snap, err := r.Snapshot(ctx)
	if err != nil || !snap.State.Active() {
		return snap, err
	}
	id := snap.ID

	poll := time.NewTicker(waitPollInterval)
	defer poll.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return snap, ErrClosed
			}
			if ev.Session.ID == id {
				snap = ev.Session
				if snap.State.Terminal() {
					return snap, nil
				}
			}
		case <-poll.C:
			// Subscribers may drop events; the snapshot is authoritative.
			cur, err := r.Snapshot(ctx)
			if err != nil {
				return snap, err
			}
			if cur.ID != id || cur.State.Terminal() {
				return cur, nil
			}
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// finalize enters Finalizing. interrupted marks an encoder that ended on
// its own; its output is already complete and is persisted right away.
func (r *Recorder) finalize(s *session, interrupted bool, cause error) {
	now := r.cfg.Clock.Now()
	if s.state == Recording {
		s.active += now.Sub(s.activeSince)
	}
	s.elapsed = int(s.active / time.Second)
	r.stopTicker(s)

	if !r.transition(s, Finalizing) {
		return
	}
	if interrupted {
		s.interrupted = true
		r.report(health.ComponentEncoder, health.Degraded, "capture interrupted")
		r.warn(s, NewError(KindStreamInterrupted, "", cause))
		r.persist(s)
		return
	}

	if err := s.proc.Stop(); err != nil {
		s.log.Warn("encoder stop failed", logging.KeyError, err)
	}
	id := s.id
	s.finalize = time.AfterFunc(r.cfg.FinalizeTimeout, func() {
		r.post(func() { r.onFinalizeTimeout(id) })
	})
}

func (r *Recorder) onFinalizeTimeout(id string) {
	s := r.session(id)
	if s == nil || s.state != Finalizing || s.persisting {
		return
	}
	s.log.Warn("encoder did not finish in time, saving captured chunks", "chunks", len(s.chunks))
	s.interrupted = true
	r.persist(s)
}

func (r *Recorder) onChunk(id string, data []byte) {
	s := r.session(id)
	if s == nil {
		log.Debug("chunk for unknown session dropped", logging.KeySessionID, id)
		return
	}
	switch {
	case (s.state == Recording || s.state == Paused || s.state == Finalizing) && !s.persisting:
		s.chunks = append(s.chunks, data)
		s.bytes += int64(len(data))
	default:
		s.log.Warn("chunk rejected", logging.KeyState, s.state.String(), "bytes", len(data))
	}
}

func (r *Recorder) onEncoderFinished(id string, err error) {
	s := r.session(id)
	if s == nil {
		return
	}
	switch s.state {
	case Recording, Paused:
		s.log.Warn("capture ended unexpectedly", "chunks", len(s.chunks), logging.KeyError, err)
		r.finalize(s, true, err)
	case Finalizing:
		if s.persisting {
			return
		}
		if err != nil {
			s.log.Warn("encoder reported an error while finishing", logging.KeyError, err)
		}
		r.persist(s)
	default:
		s.log.Debug("encoder finished after session ended", logging.KeyState, s.state.String())
	}
}

// persist concatenates the chunks and hands them to the persister.
func (r *Recorder) persist(s *session) {
	s.persisting = true
	if s.finalize != nil {
		s.finalize.Stop()
	}
	payload := bytes.Join(s.chunks, nil)
	name := storage.FileName(r.cfg.Clock.Now(), encoder.WebM.Extension)
	dir, id := s.outputDir, s.id

	s.log.Info("saving recording", "chunks", len(s.chunks), "bytes", len(payload), logging.KeyPath, dir)
	go func() {
		path, err := r.cfg.Persister.Persist(r.ctx, payload, name, dir)
		r.post(func() { r.onPersisted(id, path, err) })
	}()
}

func (r *Recorder) onPersisted(id, path string, err error) {
	s := r.session(id)
	if s == nil || s.state != Finalizing {
		return
	}
	if err != nil {
		r.report(health.ComponentStorage, health.Unhealthy, err.Error())
		r.end(s, Failed, NewError(KindStorageError, "", err))
		return
	}
	s.outputPath = path
	r.report(health.ComponentStorage, health.Healthy, path)
	r.end(s, Completed, nil)

	if r.cfg.Archive != nil {
		if _, ok := r.cfg.Archive.Enqueue(path); !ok {
			s.log.Warn("recording saved but not queued for archive upload", logging.KeyPath, path)
		}
	}
}

// end moves s to a terminal state after releasing everything it holds.
func (r *Recorder) end(s *session, to State, failure *Error) {
	if !canTransition(s.state, to) {
		s.log.Error("illegal transition", "from", s.state.String(), "to", to.String())
		return
	}
	r.release(s)
	if failure != nil {
		s.failureKind = failure.Kind
		s.failureReason = failure.Error()
		s.log.Warn("recording failed", "kind", string(failure.Kind), logging.KeyError, failure.Error())
	}
	s.endedAt = r.cfg.Clock.Now()
	r.transition(s, to)
	s.cancel()
}

func (r *Recorder) release(s *session) {
	r.stopTicker(s)
	if s.finalize != nil {
		s.finalize.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), chromeTimeout)
	defer cancel()
	r.cfg.Overlays.Close(ctx, s.overlay)
	s.overlay = overlay.Handle{}
	if s.minimized {
		s.minimized = false
		if err := r.cfg.Chrome.Restore(ctx); err != nil {
			s.log.Warn("host window restore failed", logging.KeyError, err)
		}
	}

	// Device shutdown can block on child processes; keep the loop free.
	srcs := []interface{ Close() error }{}
	if s.audio != nil {
		srcs = append(srcs, s.audio)
	}
	if s.mic != nil {
		srcs = append(srcs, s.mic)
	}
	if s.stream != nil {
		srcs = append(srcs, s.stream)
	}
	if len(srcs) > 0 {
		go func() {
			for _, c := range srcs {
				c.Close()
			}
		}()
	}
}

func (r *Recorder) stopTicker(s *session) {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickStop)
	s.ticker = nil
}

func (r *Recorder) transition(s *session, to State) bool {
	if !canTransition(s.state, to) {
		s.log.Error("illegal transition", "from", s.state.String(), "to", to.String())
		return false
	}
	from := s.state
	s.state = to
	s.log.Info("state changed", "from", from.String(), logging.KeyState, to.String())
	r.publish(Event{Type: EventState, Session: r.snapshot(s)})
	return true
}

func (r *Recorder) warn(s *session, e *Error) {
	s.warnings = append(s.warnings, e.Error())
	s.log.Warn("recording warning", "kind", string(e.Kind), logging.KeyError, e.Error())
	r.publish(Event{Type: EventWarning, Session: r.snapshot(s), Warning: e})
}

func (r *Recorder) session(id string) *session {
	if r.cur == nil || r.cur.id != id {
		return nil
	}
	return r.cur
}

func (r *Recorder) snapshot(s *session) Snapshot {
	elapsed := s.elapsed
	if s.state == Recording {
		elapsed = s.elapsedAt(r.cfg.Clock.Now())
	}
	var warnings []string
	if len(s.warnings) > 0 {
		warnings = append([]string(nil), s.warnings...)
	}
	return Snapshot{
		ID:             s.id,
		State:          s.state,
		Target:         s.target,
		ElapsedSeconds: elapsed,
		ChunkCount:     len(s.chunks),
		Bytes:          s.bytes,
		OutputPath:     s.outputPath,
		FailureReason:  s.failureReason,
		FailureKind:    s.failureKind,
		Warnings:       warnings,
		Interrupted:    s.interrupted,
		StartedAt:      s.startedAt,
		EndedAt:        s.endedAt,
	}
}

// Subscribe returns a channel of recorder events and a function that ends
// the subscription. Slow subscribers miss events rather than stall the
// recorder.
func (r *Recorder) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			if _, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(ch)
			}
			r.subMu.Unlock()
		})
	}
}

func (r *Recorder) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			log.Debug("subscriber behind, event dropped", "type", string(ev.Type))
		}
	}
}

func (r *Recorder) report(component string, status health.Status, msg string) {
	if r.cfg.Health != nil {
		r.cfg.Health.Update(component, status, msg)
	}
}

// Close stops an active session, waits for it to finish until ctx expires
// and shuts the event loop down.
func (r *Recorder) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		if snap, serr := r.Stop(ctx); serr == nil && snap.State.Active() {
			_, err = r.Wait(ctx)
		}
		r.cancel()
		<-r.done

		// The loop is gone; a session still active here was abandoned.
		if s := r.cur; s != nil && s.state.Active() {
			s.log.Warn("recorder closed with session still active", logging.KeyState, s.state.String())
			if s.proc != nil {
				s.proc.Stop()
			}
			r.release(s)
			s.cancel()
		}

		r.subMu.Lock()
		for id, ch := range r.subs {
			close(ch)
			delete(r.subs, id)
		}
		r.subMu.Unlock()
	})
	return err
}

// sink forwards encoder output to the loop.
type sink struct {
	r  *Recorder
	id string
}

func (k *sink) Chunk(data []byte) {
	k.r.post(func() { k.r.onChunk(k.id, data) })
}

func (k *sink) Finished(err error) {
	k.r.post(func() { k.r.onEncoderFinished(k.id, err) })
}

func acquisitionError(err error) *Error {
	switch {
	case errors.Is(err, capture.ErrTargetNotFound):
		return NewError(KindAcquisitionFailed, "The selected source is no longer available.", err)
	case errors.Is(err, capture.ErrPermissionDenied):
		return NewError(KindAcquisitionFailed, "Screen capture permission was denied.", err)
	case errors.Is(err, context.Canceled):
		return NewError(KindAcquisitionFailed, "Capture was cancelled.", err)
	default:
		return NewError(KindAcquisitionFailed, "", err)
	}
}
