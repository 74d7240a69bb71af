package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-fatigue/fatigue"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/extractors"
)

func newInspectCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print model and scaler metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			artifacts, err := fatigue.LoadArtifacts(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			c := artifacts.Classifier
			fmt.Fprintf(out, "model:        %s\n", cfg.Artifacts.ModelPath)
			if c.Name() != "" {
				fmt.Fprintf(out, "name:         %s\n", c.Name())
			}
			fmt.Fprintf(out, "input shape:  %v\n", c.InputShape())
			fmt.Fprintf(out, "labels:       %s\n", strings.Join(c.Labels(), ", "))
			fmt.Fprintf(out, "scaler:       %s\n", cfg.Artifacts.ScalerPath)

			names := artifacts.Scaler.FeatureNames()
			if len(names) == 0 {
				names = extractors.ColumnNames()
			}
			fmt.Fprintf(out, "columns (%d): %s\n", artifacts.Scaler.Width(), strings.Join(names, ", "))
			fmt.Fprintf(out, "frame:        %gs at %d Hz, %d frames per window\n",
				cfg.Audio.FrameSeconds, cfg.Audio.SampleRate, cfg.Audio.WindowFrames)
			return nil
		},
	}
}
