package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/landcover-cli/internal/region"
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Print the region(s) containing a point",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		if !f.Changed("x") || !f.Changed("y") {
			return eris.New("locate: --x and --y are required")
		}
		if f.Changed("regions") {
			cfg.Input.Regions, _ = f.GetString("regions")
		}
		if err := cfg.Validate("locate"); err != nil {
			return err
		}
		x, _ := f.GetFloat64("x")
		y, _ := f.GetFloat64("y")

		src, err := region.Open(cfg.Input.Regions, region.Options{
			NameFields: cfg.Input.NameFields,
			Encoding:   cfg.Input.Encoding,
		})
		if err != nil {
			return err
		}
		regions, err := src.Load(cmd.Context())
		if err != nil {
			return err
		}

		hits := region.NewIndex(regions).Locate(x, y)
		formatLocate(os.Stdout, x, y, hits)
		return nil
	},
}

func init() {
	locateCmd.Flags().Float64("x", 0, "x coordinate (same CRS as the regions)")
	locateCmd.Flags().Float64("y", 0, "y coordinate (same CRS as the regions)")
	locateCmd.Flags().String("regions", "", "region boundaries (.shp, .geojson)")
	rootCmd.AddCommand(locateCmd)
}

func formatLocate(out io.Writer, x, y float64, hits []region.Region) {
	if len(hits) == 0 {
		_, _ = fmt.Fprintf(out, "No region contains (%g, %g).\n", x, y)
		return
	}
	for _, r := range hits {
		_, _ = fmt.Fprintf(out, "%d\t%s\n", r.Index, r.Name)
	}
}
