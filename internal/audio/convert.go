package audio

import (
	"encoding/binary"
	"math"

	goaudio "github.com/go-audio/audio"
)

// decode turns interleaved s16le bytes into an IntBuffer. len(raw) must be
// a whole number of frames.
func decode(raw []byte, f Format) *goaudio.IntBuffer {
	data := make([]int, len(raw)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(raw[2*i:])))
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// encode writes samples as s16le into dst, clipping to the int16 range.
// dst must hold at least 2*len(samples) bytes.
func encode(dst []byte, samples []int) {
	for i, v := range samples {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(clip16(v)))
	}
}

func clip16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// converter brings one input stream to a target format. It keeps state
// between calls so a stream fed in arbitrary pieces resamples seamlessly.
type converter struct {
	from, to Format
	step     float64 // input frames per output frame
	skew     float64 // drift correction, step is scaled by 1+skew
	pos      float64 // fractional read position relative to prev
	prev     []int   // last input frame, already at the target channel count
}

func newConverter(from, to Format) *converter {
	return &converter{
		from: from,
		to:   to,
		step: float64(from.SampleRate) / float64(to.SampleRate),
	}
}

// convert returns buf's samples in the target format.
func (c *converter) convert(buf *goaudio.IntBuffer) []int {
	frames := remix(buf.Data, c.from.Channels, c.to.Channels)
	step := c.step * (1 + c.skew)
	if step == 1 {
		// Passing through: remember the last frame so a later switch to
		// resampling continues from the next one.
		if ch := c.to.Channels; len(frames) >= ch {
			c.prev = append(c.prev[:0], frames[len(frames)-ch:]...)
			c.pos = 1
		}
		return frames
	}
	return c.resample(frames, step)
}

// resample is linear interpolation between adjacent frames.
func (c *converter) resample(frames []int, step float64) []int {
	ch := c.to.Channels
	var x []int
	if c.prev != nil {
		x = make([]int, 0, len(c.prev)+len(frames))
		x = append(x, c.prev...)
		x = append(x, frames...)
	} else {
		x = frames
	}
	n := len(x) / ch
	if n < 2 {
		if n == 1 {
			c.prev = append(c.prev[:0], x[len(x)-ch:]...)
		}
		return nil
	}

	out := make([]int, 0, int(float64(n)/step+1)*ch)
	t := c.pos
	for {
		i := int(t)
		if i+1 >= n {
			break
		}
		frac := t - float64(i)
		a := x[i*ch : (i+1)*ch]
		b := x[(i+1)*ch : (i+2)*ch]
		for k := 0; k < ch; k++ {
			out = append(out, int(math.Round(float64(a[k])*(1-frac)+float64(b[k])*frac)))
		}
		t += step
	}

	c.pos = t - float64(n-1)
	c.prev = append(c.prev[:0], x[(n-1)*ch:]...)
	return out
}

// remix converts interleaved samples between channel counts. Downmixing to
// mono averages; upmixing repeats the source channels.
func remix(in []int, from, to int) []int {
	if from == to {
		return in
	}
	frames := len(in) / from
	out := make([]int, frames*to)
	for f := 0; f < frames; f++ {
		src := in[f*from : (f+1)*from]
		dst := out[f*to : (f+1)*to]
		if to == 1 {
			sum := 0
			for _, v := range src {
				sum += v
			}
			dst[0] = sum / from
			continue
		}
		for k := range dst {
			dst[k] = src[k%from]
		}
	}
	return out
}
