package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/firerisk-cli/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List catalog datasets and whether their files exist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		entries, err := cat.Entries()
		if err != nil {
			return err
		}
		formatCatalog(os.Stdout, entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func formatCatalog(out io.Writer, entries []catalog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tFILES\tPATH")
	for _, e := range entries {
		files := "missing"
		if e.Exists() {
			files = fmt.Sprintf("%d", len(e.Files))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Type, files, e.Path)
	}
	_ = w.Flush()
}
