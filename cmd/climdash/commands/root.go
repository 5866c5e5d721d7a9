package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"climdash/pkg/app"
	"climdash/pkg/client"
	"climdash/pkg/config"
	"climdash/pkg/dataset"
	"climdash/pkg/exporter"
	"climdash/pkg/observability"
	"climdash/pkg/resolver"
	"climdash/pkg/storage"
	"climdash/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// service 是子命令需要的解析能力，本地解析器和远程客户端都满足
type service interface {
	Resolve(ctx context.Context, ref dataset.Ref) (*resolver.Result, error)
	ResolvePath(ctx context.Context, p string) (*resolver.Result, error)
	exporter.Source
}

// localService 让本地解析器的 OpenPath 与客户端保持一致
type localService struct {
	*resolver.Resolver
}

func (l localService) OpenPath(ctx context.Context, p string) (io.ReadCloser, storage.Handle, error) {
	return exporter.FromResolver(l.Resolver).OpenPath(ctx, p)
}

// env 是一次命令执行的运行环境
type env struct {
	cfgFile string
	remote  string
	jsonOut bool

	app    *app.App       // 本地模式
	client *client.Client // --remote 模式
	svc    service
}

// newRootCmd 构建完整的命令树
// 每次调用都返回独立的 flag 状态，测试可以反复执行。
func newRootCmd() (*cobra.Command, *env) {
	e := &env{}

	root := &cobra.Command{
		Use:           "climdash",
		Short:         "climdash: locate climate datasets across local, hosted and cloud storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		// PersistentPreRunE 会在所有子命令执行前运行
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// init 负责创建配置，不依赖已有环境
			if cmd.Name() == "init" {
				return nil
			}
			return e.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&e.cfgFile, "config", "", "config file (default is ./config.yaml, .climdash/config.yaml or $HOME/.climdash/config.yaml)")
	pf.StringVar(&e.remote, "remote", "", "resolve through a climdash server at host:port instead of the configured backends")
	pf.BoolVar(&e.jsonOut, "json", false, "print results as JSON")

	// 绑定到 Viper：既可以写在 yaml 里，也可以用参数覆盖
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.Duration("budget", 0, "overall time budget of one resolution")
	pf.Duration("probe-timeout", 0, "time limit of a single backend probe")
	bind := map[string]string{
		"log.level":              "log-level",
		"resolver.budget":        "budget",
		"resolver.probe_timeout": "probe-timeout",
	}
	for key, flag := range bind {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	root.AddCommand(
		newInitCmd(),
		newResolveCmd(e),
		newOpenCmd(e),
		newCatalogCmd(e),
		newMirrorCmd(e),
		newBoundaryCmd(e),
		newHistoryCmd(e),
	)

	return root, e
}

func (e *env) setup(ctx context.Context, stderr io.Writer) error {
	if _, err := config.Load(e.cfgFile); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	s, err := config.Decode()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(s.Log.Level, s.Log.Format, stderr)

	if e.remote != "" {
		c, err := client.New(e.remote)
		if err != nil {
			return err
		}
		e.client, e.svc = c, c
		return nil
	}

	// CLI 不暴露 /metrics，使用独立的注册表
	metrics := observability.NewMetricsWithRegisterer(prometheus.NewRegistry())
	a, err := app.New(ctx, s, app.WithLogger(logger), app.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to initialize climdash: %w\n(Did you run 'climdash init'?)", err)
	}
	e.app, e.svc = a, localService{a.Resolver}
	return nil
}

func (e *env) close() error {
	var errs []error
	if e.app != nil {
		errs = append(errs, e.app.Close())
		e.app = nil
	}
	if e.client != nil {
		errs = append(errs, e.client.Close())
		e.client = nil
	}
	return errors.Join(errs...)
}

// output 按 --json 选择输出格式
func (e *env) output(w io.Writer, v any, text func(io.Writer) error) error {
	if e.jsonOut {
		return exporter.PrintJSON(w, v)
	}
	return text(w)
}

// explain 在解析失败时把每个后端的尝试打印到 stderr
func explain(cmd *cobra.Command, err error) error {
	var ue *resolver.UnavailableError
	if errors.As(err, &ue) {
		fmt.Fprintln(cmd.ErrOrStderr(), "some backends could not be reached:")
		_ = exporter.PrintAttempts(cmd.ErrOrStderr(), ue.Attempts)
	}
	return err
}

// refFlags 是数据集引用的可选维度
type refFlags struct {
	horizon string
	region  string
	stat    string
	delta   bool
	format  string
}

func (f *refFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.horizon, "horizon", "", "temporal extent, e.g. 2041-2070")
	fs.StringVar(&f.region, "region", "", "spatial extent (region code)")
	fs.StringVar(&f.stat, "stat", "", "statistic, e.g. mean")
	fs.BoolVar(&f.delta, "delta", false, "change relative to the reference period")
	fs.StringVar(&f.format, "format", string(types.FormatCSV), "file format (csv, nc, geojson)")
}

// parse 解析 project/view/varidx/scenario[/horizon]
func (f *refFlags) parse(arg string) (dataset.Ref, error) {
	return dataset.Parse(arg, dataset.Options{
		Horizon: f.horizon,
		Region:  f.region,
		Stat:    f.stat,
		Delta:   f.delta,
		Format:  types.Format(f.format),
	})
}

// Execute 是入口，执行结束后释放连接
func Execute(ctx context.Context) error {
	root, e := newRootCmd()
	err := root.ExecuteContext(ctx)
	if closeErr := e.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
