package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/realsaraf/blooom/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "# %s\n", store.Path())
		return writeConfig(os.Stdout, store.Snapshot())
	},
}

var configSetOutputDirCmd = &cobra.Command{
	Use:   "set-output-dir <directory>",
	Short: "Change where recordings are saved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := store.SetOutputDirectory(args[0]); err != nil {
			return err
		}
		fmt.Println(store.OutputDirectory())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting. Keys: output_directory, default_quality,
mute_microphone, mute_system_audio, microphone_failure_policy.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseSetting(args[0], args[1])
		if err != nil {
			return err
		}
		store, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		_, err = store.Update(patch)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetOutputDirCmd)
	configCmd.AddCommand(configSetCmd)
}

// redacted blanks credentials so settings can be printed.
func redacted(cfg config.Config) config.Config {
	const mask = "********"
	a := &cfg.Archive
	for _, s := range []*string{&a.AccessKeyID, &a.SecretAccessKey, &a.SessionToken, &a.ConnectionString, &a.ApplicationKey} {
		if *s != "" {
			*s = mask
		}
	}
	return cfg
}

func writeConfig(w io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(redacted(cfg)); err != nil {
		return err
	}
	return enc.Close()
}

func parseSetting(key, value string) (config.Patch, error) {
	var p config.Patch
	switch strings.ReplaceAll(strings.ToLower(key), "-", "_") {
	case "output_directory":
		p.OutputDirectory = &value
	case "default_quality":
		p.DefaultQuality = &value
	case "microphone_failure_policy":
		p.MicrophoneFailurePolicy = &value
	case "mute_microphone":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return p, fmt.Errorf("%s: %w", key, err)
		}
		p.MuteMicrophone = &b
	case "mute_system_audio":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return p, fmt.Errorf("%s: %w", key, err)
		}
		p.MuteSystemAudio = &b
	default:
		return p, fmt.Errorf("unknown setting %q", key)
	}
	return p, nil
}
