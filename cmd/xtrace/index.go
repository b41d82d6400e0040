package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/graphx"
	"github.com/imattdu/xtrace/reportx"
	"github.com/imattdu/xtrace/store"
)

func newIndexCmd(opts *options) *cobra.Command {
	var (
		file   string
		taskID string
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Print the start/end durations of a task.",
		Long: `index matches every Start tag of a task to its closest End and ` +
			`prints one "<tag> <ms>,<ms>,..." line per tag. Reports come from ` +
			`--file (a report stream, every task in it is indexed) or from the ` +
			`store for --task.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case file != "":
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				rs, err := reportx.ParseStream(f)
				if err != nil {
					return err
				}
				return printIndexes(out, graphx.GroupByTask(rs), taskID)

			case taskID != "":
				st, err := store.NewSQLiteStore(opts.cfg.Server.StorePath)
				if err != nil {
					return err
				}
				defer st.Close()
				reports, err := st.Reports(cmd.Context(), taskID)
				if err != nil {
					return err
				}
				return printLines(out, graphx.Reconstruct(reports))

			default:
				return errorx.New(errorx.ErrConfig, errorx.WithMessage("index needs --file or --task"))
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "report stream to index")
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "task id; with --file, index only this task")
	return cmd
}

// printIndexes prints one task bare and several under "# <task id>" headers.
func printIndexes(w io.Writer, tasks map[string]map[string]*reportx.Report, only string) error {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		if only != "" && !strings.EqualFold(id, only) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		if len(ids) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "# %s\n", id)
		}
		if err := printLines(w, graphx.Reconstruct(tasks[id])); err != nil {
			return err
		}
	}
	return nil
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
