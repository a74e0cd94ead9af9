package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config 描述了 RecruitChain 在启动阶段需要加载的全部配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Web3    Web3Config    `json:"web3"`
	Ledger  LedgerConfig  `json:"ledger"`
	Events  EventsConfig  `json:"events"`
}

// ServerConfig 控制状态接口的监听地址。
type ServerConfig struct {
	Address   string          `json:"address"`
	TokenEnv  string          `json:"token_env"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// RateLimitConfig 控制状态接口按客户端的限流，RPS 为 0 表示不限流。
type RateLimitConfig struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// LoggingConfig 对应 pkg/logger 的配置项。
type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format"`
	Outputs []string    `json:"outputs"`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig 控制会话审计日志。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Web3Config 描述连接节点、选择账户以及绑定合约所需的信息。
type Web3Config struct {
	Network         string         `json:"network"`
	NetworksFile    string         `json:"networks_file"`
	APIKey          string         `json:"api_key"`
	APIKeyEnv       string         `json:"api_key_env"`
	ContractAddress string         `json:"contract_address"`
	InterfacePath   string         `json:"interface_path"`
	AccountSource   string         `json:"account_source"`
	Keystore        KeystoreConfig `json:"keystore"`
	Verify          string         `json:"verify"`
}

// KeystoreConfig 描述本地 keystore 账户来源。
type KeystoreConfig struct {
	Dir         string `json:"dir"`
	PasswordEnv string `json:"password_env"`
}

// LedgerConfig 选择会话台账的存储后端。
type LedgerConfig struct {
	Driver string      `json:"driver"`
	Redis  RedisConfig `json:"redis"`
	MySQL  MySQLConfig `json:"mysql"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	KeyPrefix  string `json:"key_prefix"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// MySQLConfig 描述 MySQL 连接参数。
type MySQLConfig struct {
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// EventsConfig 选择会话事件的发布方式。
type EventsConfig struct {
	Driver   string         `json:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 交换机参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Exchange   string `json:"exchange"`
	// RoutingKey 为空时按事件类型路由（session.initialized / session.failed）。
	RoutingKey string `json:"routing_key"`
}

const (
	AccountSourceNode     = "node"
	AccountSourceKeystore = "keystore"

	VerifyStrict = "strict"
	VerifyLog    = "log"

	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverMySQL    = "mysql"
	DriverRabbitMQ = "rabbitmq"
)

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Audit.Enabled {
		c.Logging.Audit.Path = resolvePath(baseDir, c.Logging.Audit.Path, "audit/session.log")
	}

	if c.Web3.Network == "" {
		c.Web3.Network = "sepolia"
	}
	if c.Web3.NetworksFile != "" {
		c.Web3.NetworksFile = resolvePath(baseDir, c.Web3.NetworksFile, "")
	}
	if c.Web3.InterfacePath != "" {
		c.Web3.InterfacePath = resolvePath(baseDir, c.Web3.InterfacePath, "")
	}
	c.Web3.AccountSource = strings.ToLower(strings.TrimSpace(c.Web3.AccountSource))
	if c.Web3.AccountSource == "" {
		c.Web3.AccountSource = AccountSourceNode
	}
	if c.Web3.AccountSource == AccountSourceKeystore {
		c.Web3.Keystore.Dir = resolvePath(baseDir, c.Web3.Keystore.Dir, "keystore")
	}
	c.Web3.Verify = strings.ToLower(strings.TrimSpace(c.Web3.Verify))
	if c.Web3.Verify == "" {
		c.Web3.Verify = VerifyStrict
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = DriverNone
	}
	if c.Ledger.Redis.KeyPrefix == "" {
		c.Ledger.Redis.KeyPrefix = "recruitchain:session"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = DriverNone
	}
	if c.Events.RabbitMQ.Exchange == "" {
		c.Events.RabbitMQ.Exchange = "recruitchain.sessions"
	}
}

// Validate 检查必填项以及枚举值。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Web3.ContractAddress) == "" {
		return errors.New("web3.contract_address 不能为空")
	}
	if strings.TrimSpace(c.Web3.InterfacePath) == "" {
		return errors.New("web3.interface_path 不能为空")
	}
	switch c.Web3.AccountSource {
	case AccountSourceNode, AccountSourceKeystore:
	default:
		return fmt.Errorf("未知的账户来源: %s", c.Web3.AccountSource)
	}
	switch c.Web3.Verify {
	case VerifyStrict, VerifyLog:
	default:
		return fmt.Errorf("未知的合约校验模式: %s", c.Web3.Verify)
	}
	switch c.Ledger.Driver {
	case DriverNone, DriverMemory, DriverRedis, DriverMySQL:
	default:
		return fmt.Errorf("未知的会话台账驱动: %s", c.Ledger.Driver)
	}
	switch c.Events.Driver {
	case DriverNone, DriverRabbitMQ:
	default:
		return fmt.Errorf("未知的事件驱动: %s", c.Events.Driver)
	}
	return nil
}

// ResolveAPIKey 返回节点访问凭证，优先使用显式配置，其次读取环境变量。
func (w Web3Config) ResolveAPIKey() string {
	if key := strings.TrimSpace(w.APIKey); key != "" {
		return key
	}
	if w.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(w.APIKeyEnv))
	}
	return ""
}

// ResolveToken 读取状态接口的访问令牌，未配置时返回空串。
func (s ServerConfig) ResolveToken() string {
	if s.TokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(s.TokenEnv))
}

// ResolvePassword 从环境变量中读取 keystore 口令。
func (k KeystoreConfig) ResolvePassword() string {
	if k.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(k.PasswordEnv)
}

func resolvePath(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if value == "" || filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
