package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/reporter"
	"github.com/imattdu/xtrace/reportx"
)

func newSendCmd(opts *options) *cobra.Command {
	var (
		file string
		name string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a blank-line separated report stream through the configured reporter.",
		Long: `send reads reports from --file, or stdin when no file is given, ` +
			`and hands each one to the reporter named by XTRACE_REPORTER_NAME ` +
			`or --reporter. Malformed records are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			rc := opts.cfg.ReporterOptions(logx.Nop())
			if name != "" {
				rc.Name = name
			}
			rep, err := reporter.Build(rc)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sc := reportx.NewScanner(in)
			n := 0
			for sc.Scan() {
				rep.Send(ctx, sc.Report().String())
				n++
			}
			if err := rep.Close(); err != nil {
				return err
			}
			if err := sc.Err(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "read %d reports, skipped %d\n", n, sc.Skipped())
			if s, ok := rep.(interface{ Stats() reporter.Stats }); ok {
				st := s.Stats()
				fmt.Fprintf(out, "%s: sent %d, dropped %d, failed %d\n", rc.Name, st.Sent, st.Dropped, st.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "report stream to send (default stdin)")
	cmd.Flags().StringVar(&name, "reporter", "", "reporter to use instead of the configured one")
	return cmd
}
