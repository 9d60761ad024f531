package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Print the configured land-cover class table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if f := cmd.Flags(); f.Changed("classes") {
			cfg.ClassesFile, _ = f.GetString("classes")
		}
		table, err := cfg.ClassTable()
		if err != nil {
			return err
		}
		formatClasses(os.Stdout, table)
		return nil
	},
}

func init() {
	classesCmd.Flags().String("classes", "", "YAML class table overriding the configured classes")
	rootCmd.AddCommand(classesCmd)
}

func formatClasses(out io.Writer, table *zonal.ClassTable) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tNAME\tCOLOR")
	for _, c := range table.Classes() {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", c.Code, c.Name, c.Color)
	}
	_ = w.Flush()
}
