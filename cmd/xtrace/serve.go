package main

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/spf13/cobra"

	"github.com/imattdu/xtrace/collector"
	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/reporter"
	"github.com/imattdu/xtrace/store"
	"github.com/imattdu/xtrace/tracex"
)

func newServeCmd(opts *options) *cobra.Command {
	var selfTrace bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the collector: UDP, TCP and HTTP ingest plus the query API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if err := logx.Init(cfg.LogOptions()); err != nil {
				return err
			}
			defer logx.Close()
			ctx := cmd.Context()
			logger := logx.L()

			st, err := store.NewSQLiteStore(cfg.Server.StorePath)
			if err != nil {
				return err
			}
			defer st.Close()

			srvOpts := collector.Options{
				HTTPAddr:       cfg.Server.HTTPAddr,
				UDPAddr:        cfg.Server.UDPAddr,
				TCPAddr:        cfg.Server.TCPAddr,
				IngestRPS:      cfg.Server.IngestRPS,
				IngestBurst:    cfg.Server.IngestBurst,
				MaxIngestBytes: cfg.Server.MaxIngestBytes,
				Logger:         logger,
			}

			// The collector's own request traces go through an in-process
			// channel straight back into its pipeline.
			if selfTrace {
				ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
				defer ps.Close()

				rc := cfg.ReporterOptions(logger)
				rc.Name = "pubsub"
				rc.Publisher = ps
				rep, err := reporter.Build(rc)
				if err != nil {
					return err
				}
				defer rep.Close()
				tracex.SetDefault(tracex.New(cfg.TracerOptions(rep)...))

				srvOpts.Subscriber = ps
				srvOpts.Topic = rc.Topic
			}

			logger.Info(ctx, logx.TagServer, "collector starting",
				"store", cfg.Server.StorePath, "http", cfg.Server.HTTPAddr,
				"udp", cfg.Server.UDPAddr, "tcp", cfg.Server.TCPAddr, "self_trace", selfTrace)
			return collector.New(st, srvOpts).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&selfTrace, "self-trace", false, "trace the collector's own HTTP API into its store")
	return cmd
}
