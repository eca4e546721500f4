package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/service"
	"github.com/spf13/cobra"
)

// runView is the json output of a completed run
type runView struct {
	Run      *models.Run `json:"run"`
	Outputs  []string    `json:"outputs"`
	Warnings []string    `json:"warnings"`
}

type runOptions struct {
	req               service.RunRequest
	bufferDistance    float64
	failOnInvalidRows bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the LOI pipeline once",
		Long: "Run reads the event table and the three context layers, writes\n" +
			"<name>.shp, <name>_Address and <name>_Accounts to the output directory\n" +
			"and records the run in the run store.",
		Example: "  loitool run --events logins.xlsx --jurisdiction lga.shp \\\n" +
			"    --police police_areas.shp --addresses vicmap_address.shp \\\n" +
			"    --target-crs 32755 --buffer 50 --output-dir out --name LOI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("buffer") {
				opts.req.BufferDistance = &opts.bufferDistance
			}
			if cmd.Flags().Changed("fail-on-invalid-rows") {
				opts.req.FailOnInvalidRows = &opts.failOnInvalidRows
			}
			return runPipeline(cmd, cliCtx, opts.req)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.req.EventsPath, "events", "", "event table (.xlsx or .csv)")
	f.StringVar(&opts.req.JurisdictionPath, "jurisdiction", "", "jurisdiction boundary layer (.shp or .geojson)")
	f.StringVar(&opts.req.PolicePath, "police", "", "police area of responsibility layer")
	f.StringVar(&opts.req.AddressPath, "addresses", "", "address point layer")
	f.IntVar(&opts.req.SourceCRS, "source-crs", 0, "EPSG code of the event coordinates (default pipeline.source_crs)")
	f.IntVar(&opts.req.JurisdictionCRS, "jurisdiction-crs", 0, "EPSG code of the jurisdiction layer (default: source CRS)")
	f.IntVar(&opts.req.PoliceCRS, "police-crs", 0, "EPSG code of the police layer (default: source CRS)")
	f.IntVar(&opts.req.AddressCRS, "address-crs", 0, "EPSG code of the address layer (default: source CRS)")
	f.IntVar(&opts.req.TargetCRS, "target-crs", 0, "EPSG code of the working CRS (default pipeline.target_crs)")
	f.Float64Var(&opts.bufferDistance, "buffer", 0, "buffer distance in working CRS units (default pipeline.buffer_distance)")
	f.StringVar(&opts.req.DegeneratePolicy, "degenerate-policy", "", "min == max normalisation: zero or fail")
	f.BoolVar(&opts.failOnInvalidRows, "fail-on-invalid-rows", false, "fail the run when any event row cannot be geocoded")
	f.StringVar(&opts.req.OutputDir, "output-dir", "", "output directory (default pipeline.output_dir)")
	f.StringVar(&opts.req.BaseName, "name", service.DefaultBaseName, "output base file name, without extension")
	f.StringVar(&opts.req.ReportFormat, "report-format", "", "report format: xlsx or csv (default pipeline.report_format)")

	for _, name := range []string{"events", "jurisdiction", "police", "addresses"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runPipeline(cmd *cobra.Command, cliCtx *CLIContext, req service.RunRequest) error {
	svc, closeFn, err := cliCtx.openService()
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := svc.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		return printJSON(cmd, runView{
			Run:      out.Run,
			Outputs:  out.Outputs,
			Warnings: out.Result.Warnings(),
		})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run\t%s\n", out.Run.ID)
	fmt.Fprintf(w, "Events\t%d\n", out.Result.Events)
	fmt.Fprintf(w, "Skipped rows\t%d\n", out.Run.SkippedRows)
	fmt.Fprintf(w, "Points in jurisdiction\t%d\n", out.Result.Filtered)
	fmt.Fprintf(w, "Locations\t%d\n", len(out.Result.Locations))
	for _, o := range out.Outputs {
		fmt.Fprintf(w, "Output\t%s\n", o)
	}
	for _, warn := range out.Result.Warnings() {
		fmt.Fprintf(w, "Warning\t%s\n", warn)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if n := len(out.Result.Locations); n > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		t := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(t, "LOI\tINCIDENTS\tIDENTITIES\tINDEX\tPOLICE")
		for _, l := range out.Result.Locations[:min(n, 10)] {
			fmt.Fprintf(t, "%d\t%d\t%d\t%.4f\t%s\n", l.Rank, l.IncidentCount, l.IdentityCount, l.CompositeScore, l.Jurisdiction())
		}
		return t.Flush()
	}
	return nil
}
