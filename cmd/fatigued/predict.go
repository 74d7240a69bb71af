package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-fatigue/fatigue"
	"github.com/RyanBlaney/sonido-fatigue/server"
)

func newPredictCmd(opts *cliOptions) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "predict <audio-file>",
		Short: "Classify a local audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			artifacts, err := fatigue.LoadArtifacts(cfg)
			if err != nil {
				return err
			}
			pipeline, err := fatigue.NewPipeline(cfg, artifacts, nil)
			if err != nil {
				return err
			}

			predictions, err := pipeline.PredictFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(server.PredictResponse{Predictions: predictions})
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}
