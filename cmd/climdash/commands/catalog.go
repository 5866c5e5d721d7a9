package commands

import (
	"fmt"
	"io"

	"climdash/pkg/exporter"
	"climdash/pkg/storage"

	"github.com/spf13/cobra"
)

func newCatalogCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [dir]",
		Short: "List what is available under a directory across all backends",
		Long: `List a directory on every backend and merge the results. An entry held by
several backends is attributed to the one with the highest precedence.`,
		Example: `  climdash catalog sn/ts
  climdash catalog sn/map/tasmax --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			listing, err := e.svc.Catalog(cmd.Context(), dir)
			if err != nil {
				return explain(cmd, err)
			}
			return e.output(cmd.OutOrStdout(), listing, func(w io.Writer) error {
				return exporter.PrintListing(w, listing)
			})
		},
	}
}

func newMirrorCmd(e *env) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "mirror <dir> <target>",
		Short: "Copy a directory tree from the backends to local disk",
		Long: `Download every file under dir, wherever it is resolved, into target.
The copy can then be configured as a local disk backend for offline use.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var files int
			var bytes int64
			err := exporter.NewExporter(e.svc).RestoreTree(cmd.Context(), args[0], args[1],
				func(local string, h storage.Handle, size int64) {
					files++
					bytes += size
					if !quiet {
						fmt.Fprintf(cmd.OutOrStdout(), "%s <- %s\n", local, h.Location)
					}
				})
			if err != nil {
				return explain(cmd, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "mirrored %d files (%d bytes)\n", files, bytes)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the summary")
	return cmd
}
