package commands

import (
	"errors"
	"io"

	"climdash/pkg/audit"
	"climdash/pkg/exporter"

	"github.com/spf13/cobra"
)

func newHistoryCmd(e *env) *cobra.Command {
	var (
		rf    refFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history [project/view/varidx/scenario[/horizon]]",
		Short: "Show past resolutions from the audit trail",
		Long:  `Print recent resolutions, or those of one dataset, most recent first. Requires audit.enabled.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.app == nil {
				return errors.New("history is only available locally (the server exposes GET /api/v1/history)")
			}
			if e.app.Audit == nil {
				return errors.New("audit trail is disabled (set audit.enabled: true)")
			}

			var (
				records []audit.ResolutionRecord
				err     error
			)
			if len(args) == 1 {
				ref, perr := rf.parse(args[0])
				if perr != nil {
					return perr
				}
				records, err = e.app.Audit.ForKey(cmd.Context(), ref.Key(), limit)
			} else {
				records, err = e.app.Audit.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			return e.output(cmd.OutOrStdout(), records, func(w io.Writer) error {
				return exporter.PrintHistory(w, records)
			})
		},
	}
	rf.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", audit.DefaultLimit, "maximum number of records")
	return cmd
}
