package commands

import (
	"io"

	"climdash/pkg/boundary"
	"climdash/pkg/exporter"

	"github.com/spf13/cobra"
)

func newBoundaryCmd(e *env) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "boundary <path>",
		Short:   "Load a GeoJSON region boundary from any backend",
		Long:    `Resolve a boundary file and print its shapes and bounding box. Only the first feature is read unless --all is given.`,
		Example: `  climdash boundary boundaries/sn.geojson --all --json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := boundary.Load(cmd.Context(), e.svc, args[0], !all)
			if err != nil {
				return explain(cmd, err)
			}
			return e.output(cmd.OutOrStdout(), b, func(w io.Writer) error {
				return exporter.PrintBoundary(w, b)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "read every feature instead of the first one")
	return cmd
}
