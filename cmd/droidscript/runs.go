package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holla2040/droidscript/internal/report"
	"github.com/holla2040/droidscript/internal/store"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(a.cfg.Server.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.QueryRuns(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCRIPT\tDEVICE\tSTARTED\tSTATUS\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.ScriptName, r.DeviceSerial,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Status, time.Duration(r.DurationMs)*time.Millisecond)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print runs as JSON")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var (
		dir     string
		formats []string
	)
	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Export a recorded run as JSON, CSV or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(a.cfg.Server.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			files, err := report.ExportToDir(st, args[0], dir, formats...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(files, "\n"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "reports", "directory to write into")
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "formats: json, csv, pdf (default json,pdf)")
	return cmd
}
