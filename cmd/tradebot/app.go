package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newplayman/futures-tradebot/internal/config"
	gateway "github.com/newplayman/futures-tradebot/internal/exchange"
	"github.com/newplayman/futures-tradebot/internal/logging"
	"github.com/newplayman/futures-tradebot/internal/menu"
	"github.com/newplayman/futures-tradebot/internal/metrics"
	"github.com/newplayman/futures-tradebot/internal/runner"
)

// exitUsage 参数或配置错误；其余非零退出码来自 gateway.ErrorKind
const exitUsage = 1

// app 一次进程调用的状态
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	apiKey     string
	apiSecret  string

	loader  *config.Loader
	cfg     *config.Config
	logger  zerolog.Logger
	output  *logging.Output
	console *menu.Console
	session *runner.Session

	code int
}

// run 解析参数并执行子命令，返回进程退出码。
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var ce *codeError
		if errors.As(err, &ce) {
			fmt.Fprintln(stderr, "Error:", ce.err)
			return ce.code
		}
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}
	return a.code
}

// codeError 在 setup 阶段携带确定的退出码
type codeError struct {
	code int
	err  error
}

func (e *codeError) Error() string { return e.err.Error() }
func (e *codeError) Unwrap() error { return e.err }

// prepare 加载配置并初始化日志，不涉及凭证。
func (a *app) prepare(cmd *cobra.Command) error {
	a.loader = config.NewLoader(a.configPath)
	if err := a.loader.BindFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	cfg, err := a.loader.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, output, err := logging.Setup(logging.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Console: a.stderr})
	if err != nil {
		return err
	}
	a.logger, a.output = logger, output
	log.Logger = logger
	if file := a.loader.ConfigFile(); file != "" {
		logger.Debug().Str("file", file).Msg("配置加载成功")
	}
	a.console = menu.NewConsole(a.stdin, a.stdout)
	return nil
}

// connect 解析凭证并建立 Session。
// interactive 为 true 时凭证缺失总是询问，否则仅在 stdin 为终端时询问。
func (a *app) connect(ctx context.Context, interactive bool) error {
	var prompter config.Prompter
	if interactive || isTerminal(a.stdin) {
		prompter = a.console
	}
	creds, err := config.ResolveCredentials(a.apiKey, a.apiSecret, a.cfg.Credentials, prompter)
	if err != nil {
		a.logger.Error().Err(err).Msg("凭证不可用")
		return &codeError{code: gateway.KindSigning.ExitCode(), err: err}
	}
	a.session = runner.NewSession(a.cfg, creds, a.logger)
	a.session.SyncTime(ctx)
	return nil
}

// reload 配置文件热更新
func (a *app) reload(cfg *config.Config) {
	a.session.ApplyConfig(cfg)
	a.output.SetLevel(cfg.Log.Level)
}

// fail 输出失败报告并记录退出码
func (a *app) fail(opErr *gateway.OperationError, human string) {
	fmt.Fprint(a.stderr, human)
	a.code = opErr.Kind.ExitCode()
}

func (a *app) runInteractive(ctx context.Context) error {
	if a.loader.Watch(a.logger, a.reload) {
		a.logger.Info().Str("file", a.loader.ConfigFile()).Msg("配置热重载已启用")
	}
	if a.cfg.Metrics.Enabled {
		if _, err := metrics.StartMetricsServer(a.cfg.Metrics.Port); err != nil {
			a.logger.Warn().Err(err).Msg("监控服务器启动失败")
		}
	}
	start := time.Now()
	err := menu.New(a.session, a.console, a.session.Client.BaseURL).Run(ctx)
	a.logger.Info().Dur("uptime", time.Since(start)).Msg("交互会话结束")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) close() {
	if a.output != nil {
		a.output.Close()
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
