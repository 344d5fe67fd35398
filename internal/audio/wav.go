package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV copies src into a 16-bit PCM WAV written to w until src ends,
// ctx is cancelled or maxDuration worth of audio has been written
// (maxDuration <= 0 means no limit). It returns the duration written.
func WriteWAV(ctx context.Context, w io.WriteSeeker, src Source, maxDuration time.Duration) (time.Duration, error) {
	f := src.Format()
	if !f.Valid() {
		return 0, fmt.Errorf("audio: invalid source format %s", f)
	}

	enc := wav.NewEncoder(w, f.SampleRate, 16, f.Channels, 1)
	bpf := f.BytesPerFrame()

	var limit int64 = -1
	if maxDuration > 0 {
		limit = int64(maxDuration.Seconds() * float64(f.SampleRate))
	}

	buf := make([]byte, readChunkFrames*bpf)
	var carry []byte
	var frames int64

	for limit < 0 || frames < limit {
		if err := ctx.Err(); err != nil {
			break
		}
		n, err := src.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) - len(data)%bpf
			chunk := data[:whole]
			if limit >= 0 {
				if remaining := (limit - frames) * int64(bpf); int64(len(chunk)) > remaining {
					chunk = chunk[:remaining]
				}
			}
			if len(chunk) > 0 {
				ib := decode(chunk, f)
				if werr := enc.Write(ib); werr != nil {
					enc.Close()
					return framesToDuration(frames, f), fmt.Errorf("audio: write wav: %w", werr)
				}
				frames += int64(len(chunk) / bpf)
			}
			carry = append(carry[:0:0], data[whole:]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
				break
			}
			enc.Close()
			return framesToDuration(frames, f), fmt.Errorf("audio: read source: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return framesToDuration(frames, f), fmt.Errorf("audio: finalize wav: %w", err)
	}
	return framesToDuration(frames, f), nil
}

// ReadWAV loads a 16-bit WAV fully into memory as a Source. Used to feed
// prerecorded audio through the mixer.
func ReadWAV(r io.ReadSeeker) (Source, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("audio: not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("audio: unsupported bit depth %d", dec.BitDepth)
	}

	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	raw := make([]byte, len(buf.Data)*2)
	encode(raw, buf.Data)
	return FromReader(bytes.NewReader(raw), f, nil), nil
}

func framesToDuration(frames int64, f Format) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// IntBuffer exposes raw s16le bytes as a go-audio buffer, for callers that
// post-process samples with the go-audio ecosystem.
func IntBuffer(raw []byte, f Format) *goaudio.IntBuffer {
	whole := len(raw) - len(raw)%f.BytesPerFrame()
	return decode(raw[:whole], f)
}
