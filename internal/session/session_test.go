package session

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/events"
	"RecruitChain/internal/web3"
	"RecruitChain/internal/web3/contract"
	"RecruitChain/internal/web3/simtest"
	"RecruitChain/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	accountA     = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	accountB     = common.HexToAddress("0xBBB0000000000000000000000000000000000002")
	contractAddr = common.HexToAddress("0xcEC7000000000000000000000000000000000003")
)

type fakeBackend struct {
	bind.ContractBackend
	code []byte
	err  error
}

func (b *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return b.code, b.err
}

type fakeProvider struct {
	mu       sync.Mutex
	accounts []common.Address
	err      error
	gate     chan struct{}
	entered  chan struct{}
	calls    atomic.Int32
	signers  atomic.Int32
	backend  *fakeBackend
}

func newFakeProvider(accounts ...common.Address) *fakeProvider {
	return &fakeProvider{accounts: accounts, backend: &fakeBackend{code: []byte{0x60}}}
}

func (p *fakeProvider) Endpoint() web3.Endpoint {
	return web3.Endpoint{Network: "sepolia", ChainID: big.NewInt(11155111), URL: "https://rpc.example.org"}
}

func (p *fakeProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.calls.Add(1)
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]common.Address(nil), p.accounts...), p.err
}

func (p *fakeProvider) Signer(account common.Address) (*bind.TransactOpts, error) {
	p.signers.Add(1)
	return &bind.TransactOpts{
		From: account,
		Signer: func(common.Address, *coretypes.Transaction) (*coretypes.Transaction, error) {
			return nil, errors.New("not used")
		},
	}, nil
}

func (p *fakeProvider) Backend() bind.ContractBackend { return p.backend }

func (p *fakeProvider) Close() {}

func (p *fakeProvider) setResult(accounts []common.Address, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts, p.err = accounts, err
}

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
	state   int
}

func (m *recordingMetrics) ObserveInitialize(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *recordingMetrics) SetSessionState(state int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func testInterface(t *testing.T) *contract.Interface {
	t.Helper()
	iface, err := contract.ParseInterface([]byte(simtest.RecruitmentABI))
	if err != nil {
		t.Fatalf("parse interface: %v", err)
	}
	return iface
}

func newTestSession(t *testing.T, p web3.Provider, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	s, err := New(p, Config{ContractAddress: contractAddr, Interface: testInterface(t)}, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestInitializeSelectsFirstAccount(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, newFakeProvider(accountA, accountB))
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	account, err := s.Account()
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account != accountA {
		t.Fatalf("selected %s, want %s", account.Hex(), accountA.Hex())
	}
	signer, _ := s.Signer()
	if signer.From != accountA {
		t.Fatalf("signer bound to %s", signer.From.Hex())
	}
	handle, _ := s.Contract()
	if handle.Signer() != signer {
		t.Fatal("contract handle must use the session signer")
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	t.Parallel()

	p := newFakeProvider(accountA)
	s := newTestSession(t, p)
	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	signer, _ := s.Signer()
	handle, _ := s.Contract()

	p.setResult([]common.Address{accountB}, nil)
	for i := 0; i < 3; i++ {
		if err := s.Initialize(ctx); err != nil {
			t.Fatalf("repeat initialize: %v", err)
		}
	}

	account, _ := s.Account()
	signer2, _ := s.Signer()
	handle2, _ := s.Contract()
	if account != accountA || signer2 != signer || handle2 != handle {
		t.Fatal("session fields changed after a repeated initialize")
	}
	if p.calls.Load() != 1 || p.signers.Load() != 1 {
		t.Fatalf("expected one resolution pass, got %d account calls and %d signers", p.calls.Load(), p.signers.Load())
	}
}

func TestInitializeEmptyAccountsFails(t *testing.T) {
	t.Parallel()

	metrics := &recordingMetrics{}
	s := newTestSession(t, newFakeProvider(), WithMetrics(metrics))
	err := s.Initialize(context.Background())
	if !errors.Is(err, ErrNoAccounts) || !IsNoAccounts(err) {
		t.Fatalf("expected no accounts, got %v", err)
	}
	if s.State() != StateUninitialized {
		t.Fatalf("unexpected state %s", s.State())
	}
	if _, err := s.Contract(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("contract handle must be absent, got %v", err)
	}
	if len(metrics.results) != 1 || metrics.results[0] != string(xerrors.CodeNoAccounts) || metrics.state != 0 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestInitializeListingFailureLeavesUninitialized(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	p := newFakeProvider()
	p.setResult(nil, xerrors.Wrap(xerrors.CodeConnectivity, cause, "获取账户列表失败"))
	publisher := events.NewMemoryPublisher()
	s := newTestSession(t, p, WithPublisher(publisher))

	err := s.Initialize(context.Background())
	if !errors.Is(err, cause) || xerrors.CodeOf(err) != xerrors.CodeConnectivity {
		t.Fatalf("expected connectivity failure wrapping the cause, got %v", err)
	}
	if s.State() != StateUninitialized {
		t.Fatalf("unexpected state %s", s.State())
	}
	if _, err := s.Signer(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("signer must be absent, got %v", err)
	}
	if p.signers.Load() != 0 {
		t.Fatal("no signer may be created when listing fails")
	}
	got := publisher.Events()
	if len(got) != 1 || got[0].Type != events.TypeSessionFailed || got[0].ErrorCode != string(xerrors.CodeConnectivity) {
		t.Fatalf("unexpected events %+v", got)
	}

	p.setResult([]common.Address{accountB}, nil)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if account, _ := s.Account(); account != accountB {
		t.Fatalf("unexpected account after retry %s", account.Hex())
	}
}

func TestConcurrentInitializeRunsOnce(t *testing.T) {
	t.Parallel()

	p := newFakeProvider(accountA, accountB)
	p.gate = make(chan struct{})
	p.entered = make(chan struct{}, 2)
	s := newTestSession(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- s.Initialize(ctx) }()
	<-p.entered
	if s.State() != StateInitializing {
		t.Fatalf("expected initializing, got %s", s.State())
	}
	go func() { errs <- s.Initialize(ctx) }()

	// The second caller must wait for the first pass instead of starting its own.
	select {
	case <-p.entered:
		t.Fatal("second initialize reached the provider while the first was in flight")
	case err := <-errs:
		t.Fatalf("second initialize returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected one account call while gated, got %d", p.calls.Load())
	}

	close(p.gate)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}
	if p.calls.Load() != 1 || p.signers.Load() != 1 {
		t.Fatalf("expected a single pass, got %d account calls", p.calls.Load())
	}
	if s.State() != StateInitialized {
		t.Fatalf("unexpected state %s", s.State())
	}
	first, err := s.Contract()
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	second, _ := s.Contract()
	if first != second {
		t.Fatal("callers must observe the same contract handle")
	}
}

func TestVerifyPolicy(t *testing.T) {
	t.Parallel()

	strict := newFakeProvider(accountA)
	strict.backend.code = nil
	s := newTestSession(t, strict)
	if err := s.Initialize(context.Background()); !errors.Is(err, contract.ErrContractNotDeployed) {
		t.Fatalf("expected not deployed, got %v", err)
	}
	if s.State() != StateUninitialized {
		t.Fatalf("strict failure must reset, got %s", s.State())
	}

	lenient := newFakeProvider(accountA)
	lenient.backend.err = errors.New("node unreachable")
	s, err := New(lenient, Config{ContractAddress: contractAddr, Interface: testInterface(t), Verify: VerifyLog},
		WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("log policy must tolerate the read failure: %v", err)
	}
	if s.State() != StateInitialized {
		t.Fatalf("unexpected state %s", s.State())
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	iface := testInterface(t)
	p := newFakeProvider(accountA)
	cases := map[string]struct {
		provider web3.Provider
		cfg      Config
	}{
		"nil provider": {nil, Config{ContractAddress: contractAddr, Interface: iface}},
		"zero address": {p, Config{Interface: iface}},
		"no interface": {p, Config{ContractAddress: contractAddr}},
		"bad policy":   {p, Config{ContractAddress: contractAddr, Interface: iface, Verify: "maybe"}},
	}
	for name, tc := range cases {
		if _, err := New(tc.provider, tc.cfg); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
}

func TestInitializeOnSimulatedChain(t *testing.T) {
	t.Parallel()

	chain := simtest.NewChain(t)
	recorder := NewMemoryRecorder()
	publisher := events.NewMemoryPublisher()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s, err := New(chain.Provider(), Config{ContractAddress: chain.Contract, Interface: testInterface(t)},
		WithLogger(logger.Discard()),
		WithRecorder(recorder),
		WithPublisher(publisher),
		WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	handle, err := s.Contract()
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	resolved, err := handle.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != chain.Contract {
		t.Fatalf("resolved %s, want %s", resolved.Hex(), chain.Contract.Hex())
	}
	if account, _ := s.Account(); account != chain.Account {
		t.Fatalf("unexpected account %s", account.Hex())
	}

	rec, err := recorder.Get(ctx, s.ID())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Contract != chain.Contract.Hex() || rec.ChainID != "1337" || !rec.InitializedAt.Equal(fixed) {
		t.Fatalf("unexpected record %+v", rec)
	}
	got := publisher.Events()
	if len(got) != 1 || got[0].Type != events.TypeSessionInitialized || got[0].Account != chain.Account.Hex() {
		t.Fatalf("unexpected events %+v", got)
	}

	snap := s.Snapshot()
	if snap.State != "initialized" || snap.Account != chain.Account.Hex() || snap.Network != "simulated" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestMemoryRecorderOrdering(t *testing.T) {
	t.Parallel()

	r := NewMemoryRecorder()
	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	_ = r.Save(ctx, Record{SessionID: "a", InitializedAt: base})
	_ = r.Save(ctx, Record{SessionID: "b", InitializedAt: base.Add(time.Minute)})
	_ = r.Save(ctx, Record{SessionID: "c", InitializedAt: base.Add(2 * time.Minute)})

	list, err := r.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != "c" || list[1].SessionID != "b" {
		t.Fatalf("unexpected order %+v", list)
	}
	if _, err := r.Get(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
