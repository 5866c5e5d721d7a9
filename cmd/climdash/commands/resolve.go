package commands

import (
	"fmt"
	"io"

	"climdash/pkg/exporter"
	"climdash/pkg/resolver"

	"github.com/spf13/cobra"
)

func newResolveCmd(e *env) *cobra.Command {
	var (
		rf   refFlags
		path string
	)
	cmd := &cobra.Command{
		Use:   "resolve [project/view/varidx/scenario[/horizon]]",
		Short: "Show which backend holds a dataset",
		Long: `Probe every configured backend and print the location that wins under the
precedence order, together with what each backend answered.

Auxiliary files such as region boundaries are resolved with --path.`,
		Example: `  climdash resolve sn/ts/tasmax/rcp45 --horizon 2041-2070
  climdash resolve --path boundaries/sn.geojson`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				res *resolver.Result
				err error
			)
			switch {
			case path != "" && len(args) > 0:
				return fmt.Errorf("give either a dataset or --path, not both")
			case path != "":
				res, err = e.svc.ResolvePath(ctx, path)
			case len(args) == 1:
				ref, perr := rf.parse(args[0])
				if perr != nil {
					return perr
				}
				res, err = e.svc.Resolve(ctx, ref)
			default:
				return fmt.Errorf("a dataset or --path is required")
			}
			if err != nil {
				return explain(cmd, err)
			}

			return e.output(cmd.OutOrStdout(), res, func(w io.Writer) error {
				return exporter.PrintResult(w, res)
			})
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&path, "path", "", "resolve an auxiliary file by its relative path")
	return cmd
}
