package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/config"
	"github.com/sells-group/landcover-cli/internal/output"
	"github.com/sells-group/landcover-cli/internal/raster"
	"github.com/sells-group/landcover-cli/internal/region"
	"github.com/sells-group/landcover-cli/internal/store"
	"github.com/sells-group/landcover-cli/internal/zonal"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute land-cover statistics for every region",
	Long:  "Loads the classified raster and region boundaries, computes per-region class areas and percentages, writes the configured outputs and, when a store is configured, records the run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyAnalyzeFlags(cmd, cfg)
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		outcome, err := runAnalysis(ctx, cfg)
		if err != nil {
			return err
		}
		printSummary(os.Stdout, outcome)
		return nil
	},
}

func init() {
	addAnalyzeFlags(analyzeCmd.Flags())
	rootCmd.AddCommand(analyzeCmd)
}

func addAnalyzeFlags(f *pflag.FlagSet) {
	f.String("raster", "", "classified raster (ESRI ASCII grid)")
	f.String("regions", "", "region boundaries (.shp, .geojson)")
	f.String("out", "", "output directory")
	f.Int("workers", 0, "regions processed concurrently")
	f.StringSlice("format", nil, "output formats (json, geojson, csv, xlsx, maxima)")
	f.String("classes", "", "YAML class table overriding the configured classes")
	f.Bool("count-unrecognized", true, "count valid codes missing from the class table toward region totals")
}

// applyAnalyzeFlags copies explicitly set flags over the loaded config.
func applyAnalyzeFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("raster") {
		c.Input.Raster, _ = f.GetString("raster")
	}
	if f.Changed("regions") {
		c.Input.Regions, _ = f.GetString("regions")
	}
	if f.Changed("out") {
		c.Output.Dir, _ = f.GetString("out")
	}
	if f.Changed("workers") {
		c.Batch.MaxConcurrentRegions, _ = f.GetInt("workers")
	}
	if f.Changed("format") {
		c.Output.Formats, _ = f.GetStringSlice("format")
	}
	if f.Changed("classes") {
		c.ClassesFile, _ = f.GetString("classes")
	}
	if f.Changed("count-unrecognized") {
		c.Zonal.CountUnrecognized, _ = f.GetBool("count-unrecognized")
	}
}

// analysisOutcome is what an analysis produced.
type analysisOutcome struct {
	Analysis *output.Analysis
	RunID    string
	Elapsed  time.Duration
}

// runAnalysis executes the full pipeline: load inputs, run the batch, write
// the sinks and, if configured, persist the run.
func runAnalysis(ctx context.Context, c *config.Config) (*analysisOutcome, error) {
	start := time.Now()

	for _, path := range []string{c.Input.Raster, c.Input.Regions} {
		if _, err := os.Stat(path); err != nil {
			return nil, eris.Wrapf(err, "analyze: input %s", path)
		}
	}

	classes, err := c.ClassTable()
	if err != nil {
		return nil, err
	}

	grid, err := raster.LoadASCII(c.Input.Raster)
	if err != nil {
		return nil, err
	}

	src, err := region.Open(c.Input.Regions, region.Options{
		NameFields: c.Input.NameFields,
		Encoding:   c.Input.Encoding,
	})
	if err != nil {
		return nil, err
	}
	regions, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, eris.Errorf("analyze: %s contains no regions", c.Input.Regions)
	}

	engine := zonal.NewEngine(classes,
		zonal.WithCountUnrecognized(c.Zonal.CountUnrecognized),
		zonal.WithAreaScale(c.Zonal.AreaScale),
	)
	report, err := zonal.NewRunner(engine, classes, c.Batch.MaxConcurrentRegions).
		Run(ctx, grid, region.Zones(regions))
	if err != nil {
		return nil, err
	}

	analysis := &output.Analysis{Report: report, Regions: regions, Classes: classes}
	sinks, err := output.New(c.Output.Formats, output.Options{Dir: c.Output.Dir})
	if err != nil {
		return nil, err
	}
	if err := output.WriteAll(ctx, sinks, analysis); err != nil {
		return nil, err
	}

	outcome := &analysisOutcome{Analysis: analysis}
	if c.Store.Driver != "" {
		id, err := persistRun(ctx, c, analysis)
		if err != nil {
			return nil, err
		}
		outcome.RunID = id
	}

	outcome.Elapsed = time.Since(start)
	zap.L().Info("analyze: complete",
		zap.Int("regions", len(regions)),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("empty", report.Empty),
		zap.String("run_id", outcome.RunID),
		zap.Duration("elapsed", outcome.Elapsed),
	)
	return outcome, nil
}

func persistRun(ctx context.Context, c *config.Config, a *output.Analysis) (string, error) {
	st, err := initStore(ctx, c.Store)
	if err != nil {
		return "", err
	}
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, store.Run{
		RasterPath:  c.Input.Raster,
		RegionsPath: c.Input.Regions,
		Regions:     len(a.Regions),
	})
	if err != nil {
		return "", err
	}
	if err := st.SaveReport(ctx, run.ID, a.Report, a.Regions); err != nil {
		return "", err
	}
	return run.ID, nil
}

// printSummary writes the batch counters and the class maxima to out.
func printSummary(out io.Writer, o *analysisOutcome) {
	r := o.Analysis.Report
	_, _ = fmt.Fprintf(out, "Regions: %d  processed: %d  failed: %d  empty: %d  (%s)\n",
		len(r.Results), r.Processed, r.Failed, r.Empty, o.Elapsed.Round(time.Millisecond))
	if o.RunID != "" {
		_, _ = fmt.Fprintf(out, "Run: %s\n", o.RunID)
	}
	if len(r.Maxima) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nCLASS\tREGION\tPERCENT")
	for _, m := range r.Maxima {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f%%\n", m.Class, m.Region, zonal.Round2(m.Percent))
	}
	_ = w.Flush()
}
