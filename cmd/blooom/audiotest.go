package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/realsaraf/blooom/internal/audio"
)

var (
	audioTestSeconds int
	audioTestOut     string
)

var audioTestCmd = &cobra.Command{
	Use:   "audio-test",
	Short: "Record the microphone to a WAV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if audioTestSeconds <= 0 {
			return fmt.Errorf("--seconds must be positive")
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return audioTest(ctx, a, time.Duration(audioTestSeconds)*time.Second, audioTestOut)
	},
}

func init() {
	audioTestCmd.Flags().IntVar(&audioTestSeconds, "seconds", 5, "how long to record")
	audioTestCmd.Flags().StringVar(&audioTestOut, "out", "audio-test.wav", "output file")
}

func audioTest(ctx context.Context, a *app, d time.Duration, out string) error {
	mic, err := a.registry.OpenMicrophone(ctx)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer mic.Close()

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(os.Stderr, "Recording %s of microphone audio (%s)...\n", d, mic.Format())
	written, err := audio.WriteWAV(ctx, f, mic, d)
	if err != nil && ctx.Err() == nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", out, written.Round(10*time.Millisecond))
	return nil
}
