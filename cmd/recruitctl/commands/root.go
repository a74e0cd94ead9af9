package commands

import (
	"context"
	"os"
	"path/filepath"

	"RecruitChain/internal/config"
	"RecruitChain/pkg/logger"

	"github.com/spf13/cobra"
)

const configEnv = "RECRUITCHAIN_CONFIG"

type globalFlags struct {
	configPath string
	network    string
	verify     string
}

// Execute 构建并运行根命令。
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "recruitctl",
		Short:        "Connect to the recruitment contract and inspect the session",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"config file (default $"+configEnv+" or configs/recruitchain.json)")
	root.PersistentFlags().StringVar(&flags.network, "network", "", "override web3.network")
	root.PersistentFlags().StringVar(&flags.verify, "verify", "", "override web3.verify (strict|log)")

	root.AddCommand(
		initCmd(flags),
		operationsCmd(flags),
		callCmd(flags),
		sessionsCmd(flags),
		serveCmd(flags),
	)
	return root
}

// loadConfig 读取配置文件，应用命令行覆盖项并初始化日志。
func (f *globalFlags) loadConfig() (*config.Config, error) {
	path := f.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		path = filepath.Join("configs", "recruitchain.json")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if f.network != "" {
		cfg.Web3.Network = f.network
	}
	if f.verify != "" {
		cfg.Web3.Verify = f.verify
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
