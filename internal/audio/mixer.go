package audio

import (
	"errors"
	"io"
	"math"
	"sync"

	"github.com/realsaraf/blooom/internal/logging"
)

var log = logging.L("audio")

const (
	// readChunkFrames is how much each input pump reads per call.
	readChunkFrames = 960 // 20ms at 48kHz
	// maxBacklogSeconds bounds how far the secondary input may run ahead of
	// the primary before its oldest samples are dropped.
	maxBacklogSeconds = 2
	// targetBacklogMs is how much secondary audio is held before it joins
	// the mix. It absorbs delivery jitter between the two devices.
	targetBacklogMs = 40
	// fadeMs is how long the secondary's last frame takes to fade out when
	// the secondary runs dry.
	fadeMs = 5
	// maxSkew bounds the drift correction applied to the secondary's
	// resampling step (0.005 = 0.5%).
	maxSkew = 0.005
	// backlogSmoothing weights each backlog measurement in the running
	// average that drives drift correction.
	backlogSmoothing = 0.05
)

// Compose combines the optional system and microphone sources into the one
// stream a recording carries.
//
//   - neither present: a silent source in DefaultFormat
//   - exactly one present: that source, returned as-is
//   - both present: a Mixer summing both at the system source's format
//
// Inputs are never modified. Either input ending stops its contribution
// without ending the mix.
func Compose(system, microphone Source) Source {
	switch {
	case system == nil && microphone == nil:
		return Silence(DefaultFormat)
	case system == nil:
		return microphone
	case microphone == nil:
		return system
	default:
		return NewMixer(system, microphone)
	}
}

// input is one pumped source with its converted backlog.
type input struct {
	name    string
	src     Source
	conv    *converter
	pending []int // converted samples waiting to be mixed
	ended   bool
	err     error

	// Secondary only.
	primed  bool    // backlog reached the target at least once
	last    []int   // last frame mixed, used to conceal underruns
	faded   int     // frames concealed since the last real frame
	backlog float64 // smoothed len(pending)
}

// Mixer sums two sources sample by sample at a common format. The primary
// input sets the pace: output is produced as primary samples arrive. The
// secondary joins once it has a small backlog; after that its resampling
// step is nudged to keep the backlog steady, so the two device clocks never
// drift apart audibly. A live secondary that runs dry fades out its last
// frame rather than leaving holes. When the primary ends the secondary paces
// the output alone.
type Mixer struct {
	format Format

	mu         sync.Mutex
	cond       *sync.Cond
	inputs     [2]*input
	closed     bool
	maxHeld    int // samples
	target     int // samples
	fadeFrames int

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMixer starts pumping primary and secondary. The output format is the
// primary's when valid, DefaultFormat otherwise.
func NewMixer(primary, secondary Source) *Mixer {
	out := primary.Format()
	if !out.Valid() {
		out = DefaultFormat
	}

	m := &Mixer{
		format:     out,
		maxHeld:    out.SampleRate * out.Channels * maxBacklogSeconds,
		target:     max(1, out.SampleRate*targetBacklogMs/1000) * out.Channels,
		fadeFrames: max(1, out.SampleRate*fadeMs/1000),
	}
	m.cond = sync.NewCond(&m.mu)
	m.inputs[0] = &input{name: "system", src: primary, conv: newConverter(formatOr(primary.Format()), out)}
	m.inputs[1] = &input{name: "microphone", src: secondary, conv: newConverter(formatOr(secondary.Format()), out)}

	for _, in := range m.inputs {
		m.wg.Add(1)
		go m.pump(in)
	}
	return m
}

func formatOr(f Format) Format {
	if f.Valid() {
		return f
	}
	return DefaultFormat
}

// Format implements Source.
func (m *Mixer) Format() Format { return m.format }

// Read blocks until mixed samples are available and fills p with whole
// frames. It returns io.EOF once both inputs have ended and drained.
func (m *Mixer) Read(p []byte) (int, error) {
	bpf := m.format.BytesPerFrame()
	maxSamples := (len(p) / bpf) * m.format.Channels
	if maxSamples == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if m.closed {
			return 0, ErrClosed
		}
		lead, follow := m.leader()
		if lead == nil {
			return 0, io.EOF
		}
		if len(lead.pending) > 0 {
			n := min(maxSamples, len(lead.pending))
			mixed := make([]int, n)
			copy(mixed, lead.pending[:n])
			lead.pending = lead.pending[n:]
			if follow != nil {
				m.mixSecondary(mixed, follow)
			}
			encode(p, mixed)
			return n * 2, nil
		}
		m.cond.Wait()
	}
}

// mixSecondary adds the secondary's backlog into mixed. m.mu must be held.
func (m *Mixer) mixSecondary(mixed []int, in *input) {
	if !in.primed {
		if len(in.pending) < m.target && !in.ended {
			return
		}
		in.primed = true
		in.backlog = float64(len(in.pending))
	}

	ch := m.format.Channels
	k := min(len(mixed), len(in.pending))
	for i := 0; i < k; i++ {
		mixed[i] += in.pending[i]
	}
	if k > 0 {
		in.last = append(in.last[:0], in.pending[k-ch:k]...)
		in.faded = 0
	}
	in.pending = in.pending[k:]

	if in.ended {
		return
	}
	if k < len(mixed) {
		m.conceal(mixed[k:], in)
	}
	m.steer(in)
}

// conceal fills an underrun with the secondary's last frame, fading
// linearly to silence over fadeFrames.
func (m *Mixer) conceal(dst []int, in *input) {
	ch := m.format.Channels
	if len(in.last) != ch {
		return
	}
	for f := 0; f*ch < len(dst); f++ {
		if in.faded+1 >= m.fadeFrames {
			in.faded = m.fadeFrames
			return
		}
		in.faded++
		gain := 1 - float64(in.faded)/float64(m.fadeFrames)
		for c := 0; c < ch; c++ {
			dst[f*ch+c] += int(math.Round(float64(in.last[c]) * gain))
		}
	}
}

// steer adjusts the secondary's resampling step in proportion to how far
// its smoothed backlog sits from the target. A growing backlog means the
// secondary's clock runs fast, so each output frame consumes slightly more
// input; a shrinking one does the opposite.
func (m *Mixer) steer(in *input) {
	in.backlog += backlogSmoothing * (float64(len(in.pending)) - in.backlog)
	target := float64(m.target)
	skew := (in.backlog - target) / target * maxSkew
	in.conv.skew = max(-maxSkew, min(maxSkew, skew))
}

// leader picks the input that paces output: the primary while it is alive
// or still has samples, otherwise the secondary. nil means everything ended.
func (m *Mixer) leader() (lead, follow *input) {
	primary, secondary := m.inputs[0], m.inputs[1]
	if !primary.ended || len(primary.pending) > 0 {
		return primary, secondary
	}
	if !secondary.ended || len(secondary.pending) > 0 {
		return secondary, nil
	}
	return nil, nil
}

// Close stops both inputs and unblocks pending reads.
func (m *Mixer) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.cond.Broadcast()
		m.mu.Unlock()

		for _, in := range m.inputs {
			if err := in.src.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		m.wg.Wait()
	})
	return errors.Join(errs...)
}

// Ended reports which inputs have stopped delivering.
func (m *Mixer) Ended() (system, microphone bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[0].ended, m.inputs[1].ended
}

func (m *Mixer) pump(in *input) {
	defer m.wg.Done()

	from := in.conv.from
	bpf := from.BytesPerFrame()
	buf := make([]byte, readChunkFrames*bpf)
	var carry []byte

	for {
		n, err := in.src.Read(buf)
		if n > 0 {
			data := buf[:n]
			if len(carry) > 0 {
				data = append(carry, data...)
			}
			whole := len(data) - len(data)%bpf
			decoded := decode(data[:whole], from)
			carry = append(carry[:0:0], data[whole:]...)

			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				return
			}
			// Converted under the lock: Read adjusts the converter's skew.
			in.pending = append(in.pending, in.conv.convert(decoded)...)
			if over := len(in.pending) - m.maxHeld; over > 0 {
				over += (m.format.Channels - over%m.format.Channels) % m.format.Channels
				in.pending = in.pending[over:]
			}
			m.cond.Broadcast()
			m.mu.Unlock()
		}
		if err != nil {
			m.mu.Lock()
			in.ended = true
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrClosed) {
				in.err = err
			}
			closed := m.closed
			m.cond.Broadcast()
			m.mu.Unlock()

			if !closed {
				log.Info("mixer input ended", "input", in.name, "error", err)
			}
			return
		}
	}
}
