package commands

import (
	"context"
	"fmt"
	"time"

	"RecruitChain/internal/config"
	"RecruitChain/internal/events"
	"RecruitChain/internal/observability/metrics"
	"RecruitChain/internal/session"
	"RecruitChain/internal/storage/mysql"
	"RecruitChain/internal/storage/redis"
	"RecruitChain/internal/web3/contract"
	"RecruitChain/internal/web3/ethereum"
	"RecruitChain/internal/web3/provider"
	"RecruitChain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// app 汇总一次命令执行所需的全部组件。
type app struct {
	cfg       *config.Config
	provider  *ethereum.Provider
	session   *session.Session
	recorder  session.Recorder
	publisher events.Publisher
	metrics   *metrics.Collector
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewCollector()}

	iface, err := contract.LoadInterface(cfg.Web3.InterfacePath)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.Web3.ContractAddress) {
		return nil, fmt.Errorf("web3.contract_address 不是合法地址: %s", cfg.Web3.ContractAddress)
	}

	recorder, closeRecorder, err := buildRecorder(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}
	a.recorder = recorder
	a.closers = append(a.closers, closeRecorder)

	publisher, err := buildPublisher(cfg.Events)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = publisher
	a.closers = append(a.closers, publisher.Close)

	p, err := provider.Open(ctx, cfg.Web3, ethereum.WithLogger(logger.Named("provider")))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.provider = p
	a.closers = append(a.closers, func() error { p.Close(); return nil })

	opts := []session.Option{
		session.WithPublisher(publisher),
		session.WithMetrics(a.metrics),
	}
	if recorder != nil {
		opts = append(opts, session.WithRecorder(recorder))
	}
	sess, err := session.New(p, session.Config{
		ContractAddress: common.HexToAddress(cfg.Web3.ContractAddress),
		Interface:       iface,
		Verify:          session.VerifyPolicy(cfg.Web3.Verify),
	}, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.session = sess
	return a, nil
}

// Close 按创建的逆序释放资源。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.L().Warn("释放资源失败", "error", err)
		}
	}
	a.closers = nil
	_ = logger.Sync()
}

func buildRecorder(ctx context.Context, cfg config.LedgerConfig) (session.Recorder, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.DriverNone:
		return nil, noop, nil
	case config.DriverMemory:
		return session.NewMemoryRecorder(), noop, nil
	case config.DriverRedis:
		store, err := redis.NewSessionStore(ctx, redis.Config{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.DriverMySQL:
		store, err := mysql.NewSessionStore(ctx, mysql.Config{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.MySQL.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("未知的会话台账驱动: %s", cfg.Driver)
	}
}

func buildPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Driver {
	case config.DriverNone:
		return events.NopPublisher{}, nil
	case config.DriverRabbitMQ:
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
		})
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Driver)
	}
}
