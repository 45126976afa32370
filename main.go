package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/config"
	"github.com/any-hub/any-cache/internal/gateway"
	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/metrics"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/storage"
	"github.com/any-hub/any-cache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr

	// onListening 在监听成功后被调用，测试借此获取实际端口。
	onListening = func(addr net.Addr) {}
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	return runContext(context.Background(), opts)
}

// runContext 与 run 相同，但 ctx 被取消时也会触发优雅关闭。
func runContext(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer logging.CloseLogger(logger)

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storage"] = cfg.Global.Storage
		fields["max_body_size"] = cfg.Global.MaxBodySize.String()
		if cfg.Global.Storage == storage.BackendS3 {
			fields["s3_auth"] = cfg.S3.AuthMode()
		}
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为“配置 → 存储后端 → 读写锁包装 → Fiber server”，
	// 所有请求共享同一个存储实例，存储失败属于启动期错误直接退出。
	backend, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		fmt.Fprintf(stdErr, "初始化存储失败: %v\n", err)
		return 1
	}
	store := storage.NewGuarded(backend, storage.WithWriteTimeout(cfg.Global.WriteTimeout.DurationValue()))

	recorder := metrics.New()
	handler := gateway.NewHandler(logger, recorder, cfg.Global.MaxBodySize.Int64())

	fields := logging.BaseFields("startup", opts.configPath)
	for k, v := range logging.StorageFields(cfg.Global.Storage, storageLocation(cfg)) {
		fields[k] = v
	}
	fields["listen_addr"] = cfg.Global.ListenAddr
	fields["max_body_size"] = cfg.Global.MaxBodySize.String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(ctx, cfg, store, handler, recorder, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务运行失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("any-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ANY_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ANY_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(
	ctx context.Context,
	cfg *config.Config,
	store storage.Storage,
	handler server.CacheHandler,
	recorder *metrics.Recorder,
	logger *logrus.Logger,
) error {
	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Store:       store,
		Handler:     handler,
		Metrics:     recorder,
		MaxBodySize: cfg.Global.MaxBodySize.Int64(),
		ReadTimeout: cfg.Global.ReadTimeout.DurationValue(),
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Global.ListenAddr)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   ln.Addr().String(),
	}).Info("Fiber 服务启动")
	onListening(ln.Addr())

	if err := server.Serve(ctx, app, ln, logger, cfg.Global.ShutdownTimeout.DurationValue()); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("服务已停止")
	return nil
}

func storageLocation(cfg *config.Config) string {
	switch cfg.Global.Storage {
	case storage.BackendDisk:
		return cfg.Global.StoragePath
	case storage.BackendS3:
		return cfg.S3.Endpoint + "/" + cfg.S3.Bucket
	default:
		return "memory"
	}
}
