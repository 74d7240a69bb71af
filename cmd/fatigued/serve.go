package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-fatigue/fatigue"
	"github.com/RyanBlaney/sonido-fatigue/logging"
	"github.com/RyanBlaney/sonido-fatigue/metrics"
	"github.com/RyanBlaney/sonido-fatigue/server"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP prediction API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			artifacts, err := fatigue.LoadArtifacts(cfg)
			if err != nil {
				return err
			}
			pipeline, err := fatigue.NewPipeline(cfg, artifacts, metrics.New(prometheus.DefaultRegisterer))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Decoder.EnableFFmpeg {
				if err := pipeline.Decoder().CheckFFmpeg(ctx); err != nil {
					logging.Warn("ffmpeg unavailable, only PCM WAV uploads will decode", logging.Fields{
						"error": err.Error(),
					})
				}
			}

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(cfg.Server, pipeline, prometheus.DefaultGatherer)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

