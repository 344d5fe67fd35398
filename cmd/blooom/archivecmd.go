package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/realsaraf/blooom/internal/storage"
)

var archivePruneKeep int

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage the remote recording mirror",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchiver(cmd.Context(), func(ctx context.Context, a *app, ar *storage.Archiver) error {
			keys, err := ar.List(ctx)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		})
	},
}

var archiveSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload local recordings missing from the mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchiver(cmd.Context(), func(ctx context.Context, a *app, ar *storage.Archiver) error {
			n, err := ar.Sync(ctx, a.store.OutputDirectory())
			if err != nil {
				return err
			}
			ar.Close(ctx)

			failed := 0
			for _, job := range ar.Jobs() {
				if job.Status == storage.JobFailed {
					failed++
					fmt.Printf("failed  %s: %s\n", job.RemoteKey, job.Error)
					continue
				}
				fmt.Printf("%-7s %s\n", job.Status, job.RemoteKey)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, n)
			}
			return nil
		})
	},
}

var archivePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete the oldest mirrored recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if archivePruneKeep < 0 {
			return fmt.Errorf("--keep must not be negative")
		}
		return withArchiver(cmd.Context(), func(ctx context.Context, a *app, ar *storage.Archiver) error {
			deleted, err := ar.Prune(ctx, archivePruneKeep)
			for _, k := range deleted {
				fmt.Println("deleted", k)
			}
			return err
		})
	},
}

var archiveFetchCmd = &cobra.Command{
	Use:   "fetch <remote-key> [local-path]",
	Short: "Download a mirrored recording",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchiver(cmd.Context(), func(ctx context.Context, a *app, ar *storage.Archiver) error {
			local := filepath.Join(a.store.OutputDirectory(), filepath.Base(args[0]))
			if len(args) == 2 {
				local = args[1]
			}
			if err := ar.Fetch(ctx, args[0], local); err != nil {
				return err
			}
			fmt.Println(local)
			return nil
		})
	},
}

func init() {
	archivePruneCmd.Flags().IntVar(&archivePruneKeep, "keep", 20, "number of newest recordings to keep")

	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveSyncCmd)
	archiveCmd.AddCommand(archivePruneCmd)
	archiveCmd.AddCommand(archiveFetchCmd)
}

func withArchiver(ctx context.Context, fn func(context.Context, *app, *storage.Archiver) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ar, err := a.openArchiver(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		ar.Close(closeCtx)
	}()
	return fn(ctx, a, ar)
}
