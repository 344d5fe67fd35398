package encoder

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/realsaraf/blooom/internal/audio"
	"github.com/realsaraf/blooom/internal/capture"
)

func videoInput() capture.VideoInput {
	return capture.VideoInput{
		Args:      []string{"-f", "x11grab", "-framerate", "30", "-i", ":0+0,0"},
		FrameRate: 30,
	}
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestBuildArgsWithAudio(t *testing.T) {
	req := Request{
		Video:   videoInput(),
		Audio:   audio.FromReader(bytes.NewReader(nil), audio.Format{SampleRate: 44100, Channels: 2}, nil),
		Quality: QualityMedium,
	}
	args := buildArgs(req, "tcp://127.0.0.1:5555")
	joined := strings.Join(args, " ")

	require.Contains(t, joined, "-f x11grab -framerate 30 -i :0+0,0")
	require.Contains(t, joined, "-f s16le -ar 44100 -ac 2 -i tcp://127.0.0.1:5555")
	require.Equal(t, "libvpx-vp9", argAfter(args, "-c:v"))
	require.Equal(t, "libopus", argAfter(args, "-c:a"))
	require.Equal(t, "2500000", argAfter(args, "-b:v"))
	require.Contains(t, joined, "-map 0:v -map 1:a")
	require.Equal(t, "pipe:1", args[len(args)-1])
	require.Equal(t, "webm", args[len(args)-4])
}

func TestBuildArgsVideoOnly(t *testing.T) {
	args := buildArgs(Request{Video: videoInput(), Quality: QualityHigh}, "")
	require.NotContains(t, args, "-c:a")
	require.NotContains(t, args, "1:a")
	require.NotContains(t, args, "s16le")
	require.Equal(t, "5000000", argAfter(args, "-b:v"))
}

func TestQualityBitrates(t *testing.T) {
	require.Less(t, QualityLow.videoBitrate(), QualityMedium.videoBitrate())
	require.Less(t, QualityMedium.videoBitrate(), QualityHigh.videoBitrate())
	require.Equal(t, QualityHigh.videoBitrate(), QualityPreset("").videoBitrate())
}

func TestWebMProfile(t *testing.T) {
	require.Equal(t, "video/webm;codecs=vp9,opus", WebM.MimeType)
	require.Equal(t, "webm", WebM.Extension)
}

func TestChunkerEmitsPerTick(t *testing.T) {
	pr, pw := io.Pipe()
	tick := make(chan time.Time)
	chunks := make(chan []byte, 10)

	var c chunker
	done := make(chan error, 1)
	go func() { done <- c.run(pr, tick, func(b []byte) { chunks <- b }) }()

	pw.Write([]byte("EBML"))
	pw.Write([]byte("seg"))
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 7
	}, time.Second, time.Millisecond)
	tick <- time.Now()
	require.Equal(t, []byte("EBMLseg"), <-chunks)

	// An empty interval emits nothing.
	tick <- time.Now()

	pw.Write([]byte("cluster"))
	pw.Close()
	require.NoError(t, <-done)
	require.Equal(t, []byte("cluster"), <-chunks)
	require.Empty(t, chunks)
	require.Equal(t, 2, c.emitted)
	require.EqualValues(t, 14, c.bytes)
}

func TestChunkerReportsReadError(t *testing.T) {
	boom := errors.New("pipe broke")
	r := io.MultiReader(strings.NewReader("partial"), errReader{boom})

	var got [][]byte
	var c chunker
	err := c.run(r, nil, func(b []byte) { got = append(got, b) })
	require.ErrorIs(t, err, boom)
	require.Equal(t, [][]byte{[]byte("partial")}, got, "partial output is still flushed")
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestInterruptedError(t *testing.T) {
	err := &InterruptedError{Reason: "Broken pipe", Err: io.ErrUnexpectedEOF}
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Contains(t, err.Error(), "Broken pipe")
}

func TestStartRejectsIncompleteRequest(t *testing.T) {
	e := NewFFmpeg("")
	_, err := e.Start(t.Context(), Request{Video: videoInput()})
	require.Error(t, err)
	_, err = e.Start(t.Context(), Request{Sink: nopSink{}})
	require.Error(t, err)
}

type nopSink struct{}

func (nopSink) Chunk([]byte)   {}
func (nopSink) Finished(error) {}
