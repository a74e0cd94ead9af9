package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/web3"
	"RecruitChain/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Provider implements web3.Provider for EVM compatible nodes.
type Provider struct {
	endpoint  web3.Endpoint
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	backend   bind.ContractBackend
	source    web3.AccountSource
	logger    *slog.Logger
	mu        sync.Mutex
}

// Option customises a Provider.
type Option func(*Provider)

// WithAccountSource replaces the node account source, for example with a
// local keystore.
func WithAccountSource(source web3.AccountSource) Option {
	return func(p *Provider) {
		if source != nil {
			p.source = source
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider configures an RPC client for the endpoint. HTTP endpoints are
// dialed lazily so no request reaches the node until accounts are listed or a
// contract is read.
func NewProvider(ctx context.Context, endpoint web3.Endpoint, opts ...Option) (*Provider, error) {
	url := strings.TrimSpace(endpoint.URL)
	if url == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConnectivity, err, "连接以太坊节点失败",
			xerrors.WithMetadata("network", endpoint.Network))
	}
	return NewProviderFromClient(endpoint, rpcClient, opts...), nil
}

// NewProviderFromClient wraps an existing RPC client, such as an in-process
// client in tests.
func NewProviderFromClient(endpoint web3.Endpoint, rpcClient *gethrpc.Client, opts ...Option) *Provider {
	eth := ethclient.NewClient(rpcClient)
	p := &Provider{
		endpoint:  endpoint,
		rpcClient: rpcClient,
		eth:       eth,
		backend:   eth,
		source:    NewNodeSource(rpcClient),
		logger:    logger.Named("ethereum"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// NewSimulatedProvider wraps a go-ethereum simulated backend for testing
// purposes. A simulated node holds no accounts, so a source is required.
func NewSimulatedProvider(endpoint web3.Endpoint, backend *simulated.Backend, source web3.AccountSource) *Provider {
	return &Provider{
		endpoint: endpoint,
		backend:  backend.Client(),
		source:   source,
		logger:   logger.Named("ethereum"),
	}
}

// Endpoint returns the endpoint the provider was configured with.
func (p *Provider) Endpoint() web3.Endpoint {
	return p.endpoint
}

// Accounts lists the accounts available from the configured source.
func (p *Provider) Accounts(ctx context.Context) ([]common.Address, error) {
	if p == nil {
		return nil, errors.New("未初始化的以太坊连接")
	}
	source := p.accountSource()
	if source == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "当前连接未配置账户来源")
	}
	accounts, err := source.Accounts(ctx)
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeConnectivity, err, "列举账户失败",
			xerrors.WithMetadata("network", p.endpoint.Network))
	}
	p.logger.Debug("accounts listed", slog.Any("endpoint", p.endpoint), slog.Int("count", len(accounts)))
	return accounts, nil
}

// Signer derives transact options scoped to account. No network I/O happens
// here; signing work is deferred until a transaction is submitted.
func (p *Provider) Signer(account common.Address) (*bind.TransactOpts, error) {
	if account == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "签名账户不能为空")
	}
	source := p.accountSource()
	if source == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "当前连接未配置账户来源")
	}
	if p.endpoint.ChainID == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置链 ID")
	}
	opts, err := source.Transactor(account, p.endpoint.ChainID)
	if err != nil {
		return nil, fmt.Errorf("创建签名器失败: %w", err)
	}
	return opts, nil
}

// Backend returns the contract backend used for bindings.
func (p *Provider) Backend() bind.ContractBackend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend
}

// Close releases the RPC connection held by the provider.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.eth != nil {
		// ethclient.Close closes the underlying rpc client as well.
		p.eth.Close()
		p.eth = nil
		p.rpcClient = nil
	}
	if p.rpcClient != nil {
		p.rpcClient.Close()
		p.rpcClient = nil
	}
	p.backend = nil
}

func (p *Provider) accountSource() web3.AccountSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

var _ web3.Provider = (*Provider)(nil)
