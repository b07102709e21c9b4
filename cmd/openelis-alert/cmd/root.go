package cmd

import (
	"fmt"
	"os"

	"openelis-alert/common/logger"
	"openelis-alert/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "openelis-alert"

var (
	// configPath YAML 配置文件路径，为空时读取 CONFIG_FILE
	configPath string

	rootCmd = &cobra.Command{
		Use:           serviceName,
		Short:         "Laboratory alert lifecycle and notification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute 执行 CLI，出错时以非零状态退出
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // cobra 注册子命令
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// setup 加载配置并创建 Logger
func setup() (*config.Config, *zap.Logger, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
