package commands

import (
	"fmt"

	"climdash/pkg/exporter"

	"github.com/spf13/cobra"
)

func newOpenCmd(e *env) *cobra.Command {
	var (
		rf     refFlags
		path   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "open [project/view/varidx/scenario[/horizon]]",
		Short: "Fetch a dataset from whichever backend holds it",
		Long:  `Resolve a dataset and write its content to stdout, or to a file with -o.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. 确定要读取的路径
			p := path
			switch {
			case path != "" && len(args) > 0:
				return fmt.Errorf("give either a dataset or --path, not both")
			case len(args) == 1:
				ref, err := rf.parse(args[0])
				if err != nil {
					return err
				}
				p = ref.Path()
			case path == "":
				return fmt.Errorf("a dataset or --path is required")
			}

			exp := exporter.NewExporter(e.svc)

			// 2. 写到 stdout：文本直接显示，二进制可以重定向
			if output == "" {
				if _, _, err := exp.ExportFile(cmd.Context(), p, cmd.OutOrStdout()); err != nil {
					return explain(cmd, err)
				}
				return nil
			}

			// 3. 写到文件
			h, n, err := exp.ExportToFile(cmd.Context(), p, output)
			if err != nil {
				return explain(cmd, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes from %s to %s\n", n, h.Location, output)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&path, "path", "", "open an auxiliary file by its relative path")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}
