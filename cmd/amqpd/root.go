package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "amqpd",
	Short: "AMQP 1.0 帧层服务",
	Long: `amqpd - AMQP 1.0 帧分发引擎

  amqpd serve              # 启动 TCP 网关与 HTTP 健康/指标端点
  amqpd decode <hex>       # 离线解析一段帧字节`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, decodeCmd)
}
