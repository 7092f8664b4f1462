// xkeyrwload 是 xkeyrw 读写锁注册表的并发负载与不变量校验工具。
//
// 启动一组并发读者和写者，按配置的 key 空间反复获取/释放锁，
// 运行期间实时校验读写锁不变量（写独占、读共享），结束后校验
// 注册表无条目泄漏。建议配合 -race 使用。
//
// 用法:
//
//	xkeyrwload [选项]
//
// 选项:
//
//	--keys       key 空间大小 (默认: 16)
//	--readers    并发读者数 (默认: 8)
//	--writers    并发写者数 (默认: 4)
//	--duration   运行时长 (默认: 5s)
//	--shards     注册表分片数，须为 2 的幂 (默认: 32)
//	--try        使用非阻塞获取 + 指数退避重试，而非阻塞获取
//	--config     从 YAML/JSON 文件加载负载配置（命令行选项优先）
//
// 退出码:
//
//	0: 运行完成且所有不变量成立
//	1: 检测到不变量违例或条目泄漏
//	2: 参数错误（无效配置、未知 flag 等）
//
// 示例:
//
//	xkeyrwload --keys 4 --readers 32 --writers 8 --duration 30s
//	xkeyrwload --try --duration 10s
//	xkeyrwload --config workload.yaml
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xkeyrwload",
		Usage:   "xkeyrw 读写锁注册表负载与不变量校验工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keys",
				Usage: "key 空间大小",
				Value: defaultKeys,
			},
			&cli.IntFlag{
				Name:  "readers",
				Usage: "并发读者数",
				Value: defaultReaders,
			},
			&cli.IntFlag{
				Name:  "writers",
				Usage: "并发写者数",
				Value: defaultWriters,
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "运行时长",
				Value: defaultDuration,
			},
			&cli.IntFlag{
				Name:  "shards",
				Usage: "注册表分片数（2 的幂）",
				Value: defaultShards,
			},
			&cli.BoolFlag{
				Name:  "try",
				Usage: "使用非阻塞获取 + 退避重试",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "负载配置文件路径 (YAML/JSON)",
			},
		},
		Action: runLoad,
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

// runLoad 合并配置并执行负载。
func runLoad(ctx context.Context, cmd *cli.Command) error {
	cfg := defaultWorkloadConfig()

	if path := cmd.String("config"); path != "" {
		fileCfg, err := loadWorkloadConfig(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("配置文件加载失败: %v", err), 2)
		}
		cfg = fileCfg
	}

	// 命令行显式给出的选项覆盖配置文件。
	if cmd.IsSet("keys") {
		cfg.Keys = cmd.Int("keys")
	}
	if cmd.IsSet("readers") {
		cfg.Readers = cmd.Int("readers")
	}
	if cmd.IsSet("writers") {
		cfg.Writers = cmd.Int("writers")
	}
	if cmd.IsSet("duration") {
		cfg.Duration = cmd.Duration("duration")
	}
	if cmd.IsSet("shards") {
		cfg.Shards = cmd.Int("shards")
	}
	if cmd.IsSet("try") {
		cfg.Try = cmd.Bool("try")
	}

	if err := cfg.validate(); err != nil {
		return cli.Exit(fmt.Sprintf("参数错误: %v", err), 2)
	}

	result, err := runWorkload(ctx, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("负载执行失败: %v", err), 2)
	}

	result.print(os.Stdout)
	if !result.ok() {
		return cli.Exit("不变量校验失败", 1)
	}
	return nil
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		if coder, ok := err.(cli.ExitCoder); ok {
			return coder.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
