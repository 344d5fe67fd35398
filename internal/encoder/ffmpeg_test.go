package encoder

import (
	"bytes"
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/realsaraf/blooom/internal/audio"
)

// stubFFmpegEnv makes the test binary act as ffmpeg when re-executed.
const stubFFmpegEnv = "BLOOOM_STUB_FFMPEG"

func TestMain(m *testing.M) {
	if os.Getenv(stubFFmpegEnv) == "1" {
		os.Exit(stubFFmpeg())
	}
	os.Exit(m.Run())
}

// stubFFmpeg writes a header, waits for the quit request ffmpeg would get
// (SIGINT, or "q" on stdin) and writes a trailer before exiting cleanly.
func stubFFmpeg() int {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	go func() {
		b := make([]byte, 1)
		for {
			if _, err := os.Stdin.Read(b); err != nil {
				return
			}
			if b[0] == 'q' {
				quit <- os.Interrupt
				return
			}
		}
	}()

	os.Stdout.WriteString("header")
	select {
	case <-quit:
	case <-time.After(10 * time.Second):
		return 1
	}
	os.Stdout.WriteString("trailer")
	return 0
}

type collectSink struct {
	mu       sync.Mutex
	data     bytes.Buffer
	finished chan error
}

func (s *collectSink) Chunk(b []byte) {
	s.mu.Lock()
	s.data.Write(b)
	s.mu.Unlock()
}

func (s *collectSink) Finished(err error) { s.finished <- err }

func (s *collectSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.String()
}

func TestCancelStopsEncoderGracefully(t *testing.T) {
	t.Setenv(stubFFmpegEnv, "1")
	sink := &collectSink{finished: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := NewFFmpeg(os.Args[0]).Start(ctx, Request{
		Video:     videoInput(),
		Audio:     audio.Silence(audio.DefaultFormat),
		Sink:      sink,
		Timeslice: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(sink.String(), "header")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-sink.finished:
		require.NoError(t, err, "cancellation is a requested stop")
	case <-time.After(15 * time.Second):
		t.Fatal("encoder did not finish after cancellation")
	}
	require.Equal(t, "headertrailer", sink.String(), "the container was finalized")
}

func TestCancelAfterStopIsHarmless(t *testing.T) {
	t.Setenv(stubFFmpegEnv, "1")
	sink := &collectSink{finished: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	proc, err := NewFFmpeg(os.Args[0]).Start(ctx, Request{
		Video:     videoInput(),
		Audio:     audio.Silence(audio.DefaultFormat),
		Sink:      sink,
		Timeslice: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(sink.String(), "header")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, proc.Stop())
	cancel()
	select {
	case err := <-sink.finished:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("encoder did not finish")
	}
	require.ErrorIs(t, proc.Stop(), ErrAlreadyStopped)
}
