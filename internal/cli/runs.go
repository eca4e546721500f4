package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}

	var (
		status string
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			svc, closeFn, err := cliCtx.openService()
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := svc.ListRuns(status, limit, 0)
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd, runs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tLOCATIONS\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.BaseName, r.Status, r.LocationCount, r.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by status (pending, running, completed, failed)")
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its stages and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			svc, closeFn, err := cliCtx.openService()
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := svc.GetRun(args[0])
			if err != nil {
				return err
			}
			stages, err := svc.ListStages(run.ID)
			if err != nil {
				return err
			}
			artifacts, err := svc.ListArtifacts(run.ID)
			if err != nil {
				return err
			}

			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd, map[string]interface{}{
					"run":       run,
					"stages":    stages,
					"artifacts": artifacts,
				})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Run\t%s\n", run.ID)
			fmt.Fprintf(w, "Status\t%s\n", run.Status)
			fmt.Fprintf(w, "Rows\t%d (%d skipped)\n", run.TotalRows, run.SkippedRows)
			fmt.Fprintf(w, "Locations\t%d\n", run.LocationCount)
			if run.ErrorMessage != "" {
				fmt.Fprintf(w, "Error\t%s\n", run.ErrorMessage)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "SEQ\tSTAGE\tSTATUS\tIN\tOUT\tMS")
			for _, s := range stages {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\n", s.Seq, s.Name, s.Status, s.InputCount, s.OutputCount, s.DurationMS)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "KIND\tNAME\tFEATURES\tPATH")
			for _, a := range artifacts {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", a.Kind, a.Name, a.FeatureCount, a.Path)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}
