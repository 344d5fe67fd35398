package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/realsaraf/blooom/internal/health"
	"github.com/realsaraf/blooom/internal/storage"
	"github.com/realsaraf/blooom/internal/version"
)

const doctorTimeout = 30 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that recording will work on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
		defer cancel()

		checks := runDoctor(ctx, a)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\n\n", version.Get())
		fmt.Fprintln(tw, "CHECK\tSTATUS\tDETAIL")
		failed := false
		for _, c := range checks {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Status, c.Message)
			if c.Status == health.Unhealthy {
				failed = true
			}
		}
		tw.Flush()
		if failed {
			return errors.New("doctor found problems")
		}
		return nil
	},
}

type doctorCheck func(ctx context.Context, a *app) health.Check

// runDoctor runs every check concurrently and returns results in a fixed
// order.
func runDoctor(ctx context.Context, a *app) []health.Check {
	checks := []doctorCheck{checkHost, checkFFmpeg, checkCapture, checkOutputDirectory, checkArchive}
	results := make([]health.Check, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(gctx, a)
			return nil
		})
	}
	g.Wait()
	return results
}

func checkHost(ctx context.Context, _ *app) health.Check {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return health.Check{Name: "host", Status: health.Degraded, Message: err.Error()}
	}
	return health.Check{
		Name:    "host",
		Status:  health.Healthy,
		Message: fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelArch),
	}
}

func checkFFmpeg(ctx context.Context, a *app) health.Check {
	path := a.store.Snapshot().FFmpegPath
	resolved, err := exec.LookPath(path)
	if err != nil {
		return health.Check{Name: health.ComponentEncoder, Status: health.Unhealthy, Message: "ffmpeg not found: " + path}
	}
	out, err := exec.CommandContext(ctx, resolved, "-hide_banner", "-version").Output()
	if err != nil {
		return health.Check{Name: health.ComponentEncoder, Status: health.Unhealthy, Message: err.Error()}
	}
	first, _, _ := strings.Cut(string(out), "\n")
	return health.Check{Name: health.ComponentEncoder, Status: health.Healthy, Message: strings.TrimSpace(first)}
}

func checkCapture(ctx context.Context, a *app) health.Check {
	targets, err := a.registry.ListTargets(ctx)
	if err != nil {
		return health.Check{Name: health.ComponentCapture, Status: health.Unhealthy, Message: err.Error()}
	}
	if len(targets) == 0 {
		return health.Check{Name: health.ComponentCapture, Status: health.Unhealthy, Message: "no screens found"}
	}
	return health.Check{Name: health.ComponentCapture, Status: health.Healthy, Message: fmt.Sprintf("%d screen(s)", len(targets))}
}

func checkOutputDirectory(ctx context.Context, a *app) health.Check {
	dir := a.store.OutputDirectory()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return health.Check{Name: health.ComponentStorage, Status: health.Unhealthy, Message: err.Error()}
	}
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return health.Check{Name: health.ComponentStorage, Status: health.Degraded, Message: err.Error()}
	}
	status := health.Healthy
	if usage.Free < storage.DefaultLowSpaceBytes {
		status = health.Degraded
	}
	return health.Check{
		Name:    health.ComponentStorage,
		Status:  status,
		Message: fmt.Sprintf("%s (%.1f GiB free)", dir, float64(usage.Free)/(1<<30)),
	}
}

func checkArchive(ctx context.Context, a *app) health.Check {
	archiver, err := a.openArchiver(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrArchiveDisabled) {
			return health.Check{Name: health.ComponentArchive, Status: health.Healthy, Message: "disabled"}
		}
		return health.Check{Name: health.ComponentArchive, Status: health.Degraded, Message: err.Error()}
	}
	defer archiver.Close(ctx)

	keys, err := archiver.List(ctx)
	if err != nil {
		return health.Check{Name: health.ComponentArchive, Status: health.Degraded, Message: err.Error()}
	}
	return health.Check{
		Name:    health.ComponentArchive,
		Status:  health.Healthy,
		Message: fmt.Sprintf("%s: %d recording(s)", archiver.Provider().Name(), len(keys)),
	}
}
