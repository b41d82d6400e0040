package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/imattdu/xtrace/store"
)

func newTasksCmd(opts *options) *cobra.Command {
	var (
		limit  int
		offset int
		tag    string
		title  string
		query  string
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List stored tasks, most recently updated first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewSQLiteStore(opts.cfg.Server.StorePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			var tasks []*store.Task
			switch {
			case tag != "":
				tasks, err = st.TasksByTag(ctx, tag, offset, limit)
			case title != "":
				tasks, err = st.TasksByTitle(ctx, title, offset, limit)
			case query != "":
				tasks, err = st.TasksByTitleSubstring(ctx, query, offset, limit)
			case since > 0:
				tasks, err = st.TasksSince(ctx, time.Now().Add(-since), offset, limit)
			default:
				tasks, err = st.LatestTasks(ctx, offset, limit)
			}
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), tasks)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum tasks to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "tasks to skip")
	cmd.Flags().StringVar(&tag, "tag", "", "only tasks carrying this tag")
	cmd.Flags().StringVar(&title, "title", "", "only tasks with exactly this title")
	cmd.Flags().StringVarP(&query, "query", "q", "", "only tasks whose title contains this text")
	cmd.Flags().DurationVar(&since, "since", 0, "only tasks updated within this long")
	return cmd
}

func printTasks(w io.Writer, tasks []*store.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tREPORTS\tLAST UPDATED\tTITLE\tTAGS")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			t.ID, t.NumReports, t.LastUpdated.Format(time.RFC3339), t.Title, strings.Join(t.Tags, ","))
	}
	return tw.Flush()
}
