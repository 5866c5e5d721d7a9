package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const configTemplate = `# climdash configuration
# Backends are tried in the order listed unless resolver.precedence says otherwise.
backends:
  - name: local
    type: disk
    path: %s
#  - name: hosted
#    type: http
#    url: https://data.example.org/climate
#  - name: cloud
#    type: s3
#    bucket: climate-data
#    region: eu-central-1

resolver:
  budget: 5s
  probe_timeout: 2s
#  precedence: [local, hosted, cloud]

cache:
  type: memory
  ttl: 10m

audit:
  enabled: true
  driver: sqlite
  path: %s

log:
  level: info
  format: text
`

func newInitCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a climdash configuration in the current directory",
		Long:  `Write .climdash/config.yaml with a single local backend and create its data directory.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. 确定目录
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = wd
			}
			confDir := filepath.Join(dir, ".climdash")
			confFile := filepath.Join(confDir, "config.yaml")
			dataDir := filepath.Join(dir, "data")

			// 2. 已存在则不覆盖
			if _, err := os.Stat(confFile); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "climdash is already initialized in %s\n", confDir)
				return nil
			}

			// 3. 创建目录和配置
			if err := os.MkdirAll(confDir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			content := fmt.Sprintf(configTemplate, quote(dataDir), quote(filepath.Join(confDir, "audit.db")))
			if err := os.WriteFile(confFile, []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized climdash in %s\n", confDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to initialize (default is the current directory)")
	return cmd
}

// quote 生成 YAML 双引号字符串
func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
