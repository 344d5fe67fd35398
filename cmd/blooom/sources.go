package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/realsaraf/blooom/internal/capture"
)

var sourcesOutput string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List screens that can be recorded",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		targets, err := a.registry.ListTargets(cmd.Context())
		if err != nil {
			return err
		}
		return writeSources(os.Stdout, targets, sourcesOutput)
	},
}

func init() {
	sourcesCmd.Flags().StringVarP(&sourcesOutput, "output", "o", "table", "output format: table, json or yaml")
}

type sourceRow struct {
	Index   int    `json:"index" yaml:"index"`
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Kind    string `json:"kind" yaml:"kind"`
	Bounds  string `json:"bounds" yaml:"bounds"`
	Primary bool   `json:"primary" yaml:"primary"`
}

func sourceRows(targets []capture.Target) []sourceRow {
	rows := make([]sourceRow, 0, len(targets))
	for i, t := range targets {
		rows = append(rows, sourceRow{
			Index:   i,
			ID:      t.ID,
			Name:    t.DisplayName,
			Kind:    string(t.Kind),
			Bounds:  t.Bounds.String(),
			Primary: t.Primary,
		})
	}
	return rows
}

func writeSources(w io.Writer, targets []capture.Target, format string) error {
	rows := sourceRows(targets)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tID\tNAME\tBOUNDS\tPRIMARY")
		for _, r := range rows {
			primary := ""
			if r.Primary {
				primary = "*"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Index, r.ID, r.Name, r.Bounds, primary)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
