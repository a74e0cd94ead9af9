package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/events"
	"RecruitChain/internal/web3"
	"RecruitChain/internal/web3/contract"
	"RecruitChain/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// VerifyPolicy controls how a failed confirmatory contract read is treated.
type VerifyPolicy string

const (
	// VerifyStrict fails initialization when the contract cannot be confirmed.
	VerifyStrict VerifyPolicy = "strict"
	// VerifyLog logs the failure and completes initialization anyway.
	VerifyLog VerifyPolicy = "log"
)

var (
	// ErrNoAccounts is returned when the provider lists no accounts.
	ErrNoAccounts = xerrors.New(xerrors.CodeNoAccounts, "")
	// ErrNotInitialized is returned by accessors used before Initialize succeeded.
	ErrNotInitialized = xerrors.New(xerrors.CodeInitializationFailure, "")
)

// Config fixes the contract a Session binds to.
type Config struct {
	ContractAddress common.Address
	Interface       *contract.Interface
	Verify          VerifyPolicy
}

// Metrics receives initialization telemetry.
type Metrics interface {
	ObserveInitialize(result string, duration time.Duration)
	SetSessionState(state int)
}

// Option customises a Session.
type Option func(*Session)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder persists successful initializations.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithPublisher emits lifecycle events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides the time source used for records and events.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session holds the account, signer and contract handle for one endpoint.
type Session struct {
	id       string
	provider web3.Provider
	cfg      Config

	initMu sync.Mutex

	mu       sync.RWMutex
	state    State
	account  common.Address
	signer   *bind.TransactOpts
	contract *contract.Handle

	logger    *slog.Logger
	recorder  Recorder
	publisher events.Publisher
	metrics   Metrics
	now       func() time.Time
}

// New creates an uninitialized Session. It performs no network I/O.
func New(provider web3.Provider, cfg Config, opts ...Option) (*Session, error) {
	if provider == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "provider 不能为空")
	}
	if cfg.ContractAddress == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "合约地址不能为空")
	}
	if cfg.Interface == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "合约接口描述不能为空")
	}
	switch cfg.Verify {
	case "":
		cfg.Verify = VerifyStrict
	case VerifyStrict, VerifyLog:
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的合约校验策略: "+string(cfg.Verify))
	}

	s := &Session{
		id:        uuid.NewString(),
		provider:  provider,
		cfg:       cfg,
		logger:    logger.Named("session"),
		publisher: events.NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.id, "network", provider.Endpoint().Network)
	return s, nil
}

// Initialize resolves the account, binds the signer and binds the contract.
// Once it has succeeded further calls return nil without doing any work. On
// failure the Session is left Uninitialized and the next call starts over.
func (s *Session) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.State() == StateInitialized {
		return nil
	}

	started := s.now()
	s.setState(StateInitializing)

	account, signer, handle, err := s.connect(ctx)
	if err != nil {
		s.reset()
		s.observe(started, err)
		s.logger.Error("会话初始化失败", "error", err)
		if xerrors.ShouldAlert(err) {
			logger.Audit().Warn("session initialization failed",
				"session_id", s.id,
				"network", s.provider.Endpoint().Network,
				"code", string(xerrors.CodeOf(err)))
		}
		s.publish(ctx, events.Event{
			Type:      events.TypeSessionFailed,
			ErrorCode: string(xerrors.CodeOf(err)),
		})
		return err
	}

	s.mu.Lock()
	s.account = account
	s.signer = signer
	s.contract = handle
	s.state = StateInitialized
	s.mu.Unlock()
	s.observe(started, nil)

	s.logger.Info("会话初始化完成", "account", account.Hex(), "contract", handle.Address().Hex(),
		"duration", s.now().Sub(started))
	logger.Audit().Info("session initialized",
		"session_id", s.id,
		"network", s.provider.Endpoint().Network,
		"account", account.Hex(),
		"contract", handle.Address().Hex())

	s.record(ctx, account, handle)
	s.publish(ctx, events.Event{
		Type:    events.TypeSessionInitialized,
		Account: account.Hex(),
	})
	return nil
}

func (s *Session) connect(ctx context.Context) (common.Address, *bind.TransactOpts, *contract.Handle, error) {
	account, err := s.resolveAccount(ctx)
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	signer, err := s.provider.Signer(account)
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	handle, err := contract.Bind(s.cfg.ContractAddress, s.cfg.Interface, s.provider.Backend(), signer)
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	resolved, err := handle.Resolve(ctx)
	switch {
	case err == nil:
		s.logger.Info("合约地址确认", "contract", resolved.Hex(), "interface", s.cfg.Interface.String())
	case s.cfg.Verify == VerifyLog:
		s.logger.Warn("合约确认失败，按配置继续", "contract", s.cfg.ContractAddress.Hex(), "error", err)
	default:
		return common.Address{}, nil, nil, err
	}
	return account, signer, handle, nil
}

// resolveAccount selects the first account the provider reports.
func (s *Session) resolveAccount(ctx context.Context) (common.Address, error) {
	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	hexes := make([]string, len(accounts))
	for i, a := range accounts {
		hexes[i] = a.Hex()
	}
	s.logger.Debug("可用账户", "accounts", hexes)

	if len(accounts) == 0 {
		return common.Address{}, xerrors.New(xerrors.CodeNoAccounts, "节点未返回任何账户",
			xerrors.WithMetadata("network", s.provider.Endpoint().Network))
	}
	return accounts[0], nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetSessionState(int(state))
	}
}

func (s *Session) reset() {
	s.mu.Lock()
	s.account = common.Address{}
	s.signer = nil
	s.contract = nil
	s.state = StateUninitialized
	s.mu.Unlock()
}

func (s *Session) observe(started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(xerrors.CodeOf(err))
	}
	s.metrics.ObserveInitialize(result, s.now().Sub(started))
	if err == nil {
		s.metrics.SetSessionState(int(StateInitialized))
	} else {
		s.metrics.SetSessionState(int(StateUninitialized))
	}
}

func (s *Session) record(ctx context.Context, account common.Address, handle *contract.Handle) {
	if s.recorder == nil {
		return
	}
	endpoint := s.provider.Endpoint()
	rec := Record{
		SessionID:     s.id,
		Network:       endpoint.Network,
		ChainID:       chainIDString(endpoint),
		Account:       account.Hex(),
		Contract:      handle.Address().Hex(),
		Interface:     handle.Interface().String(),
		InitializedAt: s.now().UTC(),
	}
	if err := s.recorder.Save(ctx, rec); err != nil {
		s.logger.Warn("写入会话记录失败", "error", err)
	}
}

func (s *Session) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	endpoint := s.provider.Endpoint()
	event.SessionID = s.id
	event.Network = endpoint.Network
	event.ChainID = chainIDString(endpoint)
	event.Contract = s.cfg.ContractAddress.Hex()
	event.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("发布会话事件失败", "type", event.Type, "error", err)
	}
}

func chainIDString(endpoint web3.Endpoint) string {
	if endpoint.ChainID == nil {
		return ""
	}
	return endpoint.ChainID.String()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Endpoint returns the endpoint fixed at construction.
func (s *Session) Endpoint() web3.Endpoint { return s.provider.Endpoint() }

// ContractAddress returns the configured contract address.
func (s *Session) ContractAddress() common.Address { return s.cfg.ContractAddress }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Account returns the resolved account.
func (s *Session) Account() (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateInitialized {
		return common.Address{}, ErrNotInitialized
	}
	return s.account, nil
}

// Signer returns the signer bound to the resolved account.
func (s *Session) Signer() (*bind.TransactOpts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateInitialized {
		return nil, ErrNotInitialized
	}
	return s.signer, nil
}

// Contract returns the bound contract handle.
func (s *Session) Contract() (*contract.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateInitialized {
		return nil, ErrNotInitialized
	}
	return s.contract, nil
}

// Snapshot is a point-in-time view of the Session for status reporting.
type Snapshot struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Network  string `json:"network"`
	ChainID  string `json:"chain_id"`
	Account  string `json:"account,omitempty"`
	Contract string `json:"contract"`
}

// Snapshot returns the current status view.
func (s *Session) Snapshot() Snapshot {
	endpoint := s.provider.Endpoint()
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:       s.id,
		State:    s.state.String(),
		Network:  endpoint.Network,
		ChainID:  chainIDString(endpoint),
		Contract: s.cfg.ContractAddress.Hex(),
	}
	if s.state == StateInitialized {
		snap.Account = s.account.Hex()
	}
	return snap
}

// IsNoAccounts reports whether err is the empty-account failure.
func IsNoAccounts(err error) bool {
	return errors.Is(err, ErrNoAccounts)
}
