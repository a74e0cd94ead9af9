package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"RecruitChain/internal/config"
	"RecruitChain/internal/events"
	"RecruitChain/internal/session"
	"RecruitChain/internal/web3/simtest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

var (
	nodeAccount  = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	contractAddr = common.HexToAddress("0xcEC7000000000000000000000000000000000003")
)

// nodeAPI serves the eth_ methods recruitctl needs to initialize and read.
type nodeAPI struct{}

func (nodeAPI) Accounts() []common.Address {
	return []common.Address{nodeAccount, common.HexToAddress("0xBBB0000000000000000000000000000000000002")}
}

func (nodeAPI) GetCode(addr common.Address, _ string) hexutil.Bytes {
	if addr == contractAddr {
		return hexutil.Bytes{0x60, 0x2a}
	}
	return hexutil.Bytes{}
}

func (nodeAPI) Call(_ map[string]any, _ string) hexutil.Bytes {
	return common.LeftPadBytes(big.NewInt(42).Bytes(), 32)
}

func startNode(t *testing.T) string {
	t.Helper()
	server := gethrpc.NewServer()
	if err := server.RegisterName("eth", nodeAPI{}); err != nil {
		t.Fatalf("register api: %v", err)
	}
	httpSrv := httptest.NewServer(server)
	t.Cleanup(func() {
		httpSrv.Close()
		server.Stop()
	})
	return httpSrv.URL
}

func writeConfig(t *testing.T, rpcURL string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Recruitment.json"), []byte(simtest.RecruitmentABI), 0o600); err != nil {
		t.Fatalf("write abi: %v", err)
	}
	networks := "networks:\n  devnet:\n    chain_id: 1337\n    rpc_url: " + rpcURL + "\n"
	if err := os.WriteFile(filepath.Join(dir, "networks.yaml"), []byte(networks), 0o600); err != nil {
		t.Fatalf("write networks: %v", err)
	}
	cfg := map[string]any{
		"logging": map[string]any{"outputs": []string{"discard"}},
		"web3": map[string]any{
			"network":          "devnet",
			"networks_file":    "networks.yaml",
			"contract_address": contractAddr.Hex(),
			"interface_path":   "Recruitment.json",
		},
		"ledger": map[string]any{"driver": "memory"},
	}
	content, _ := json.Marshal(cfg)
	path := filepath.Join(dir, "recruitchain.json")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOperationsCommand(t *testing.T) {
	path := writeConfig(t, "http://127.0.0.1:1")
	out, err := runCmd(t, "operations", "--config", path)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if !strings.Contains(out, "applicantCount()") || !strings.Contains(out, "hire(address)") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestInitCommandSelectsFirstAccount(t *testing.T) {
	path := writeConfig(t, startNode(t))
	out, err := runCmd(t, "init", "--config", path)
	if err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Account:  "+nodeAccount.Hex()) {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "chain 1337") {
		t.Fatalf("missing chain id:\n%s", out)
	}
}

func TestCallCommand(t *testing.T) {
	path := writeConfig(t, startNode(t))
	out, err := runCmd(t, "call", "applicantCount", "--config", path)
	if err != nil {
		t.Fatalf("call: %v\n%s", err, out)
	}
	if strings.TrimSpace(out) != "[0] 42" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInitFailsWhenContractMissing(t *testing.T) {
	path := writeConfig(t, startNode(t))
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Web3.ContractAddress = "0x000000000000000000000000000000000000dEaD"
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	if err := a.session.Initialize(context.Background()); err == nil {
		t.Fatal("expected strict verification to fail for an empty address")
	}
	if a.session.State() != session.StateUninitialized {
		t.Fatalf("unexpected state %s", a.session.State())
	}
}

func TestBuildBackends(t *testing.T) {
	recorder, closeFn, err := buildRecorder(context.Background(), config.LedgerConfig{Driver: config.DriverNone})
	if err != nil || recorder != nil {
		t.Fatalf("none driver: %v %v", recorder, err)
	}
	_ = closeFn()
	if _, _, err := buildRecorder(context.Background(), config.LedgerConfig{Driver: "cassandra"}); err == nil {
		t.Fatal("unknown ledger driver must fail")
	}

	pub, err := buildPublisher(config.EventsConfig{Driver: config.DriverNone})
	if err != nil {
		t.Fatalf("none publisher: %v", err)
	}
	if _, ok := pub.(events.NopPublisher); !ok {
		t.Fatalf("unexpected publisher %T", pub)
	}
	if _, err := buildPublisher(config.EventsConfig{Driver: config.DriverRabbitMQ}); err == nil {
		t.Fatal("rabbitmq without url must fail")
	}
}

func TestInitializeUntilReadyStopsOnPermanentFailure(t *testing.T) {
	path := writeConfig(t, startNode(t))
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Web3.ContractAddress = "0x000000000000000000000000000000000000dEaD"
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := initializeUntilReady(ctx, a.session, 10*time.Millisecond); err == nil {
		t.Fatal("contract-not-deployed is not retryable and must be returned")
	}
}

func TestInitializeUntilReadySucceeds(t *testing.T) {
	path := writeConfig(t, startNode(t))
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	if err := initializeUntilReady(context.Background(), a.session, 10*time.Millisecond); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if a.session.State() != session.StateInitialized {
		t.Fatalf("unexpected state %s", a.session.State())
	}
}

func TestServeWhileInitializingWaitsForInitializer(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	initialize := func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}
	listenErr := errors.New("listen tcp :8080: address already in use")
	serve := func(context.Context) error {
		<-started
		return listenErr
	}

	err := serveWhileInitializing(context.Background(), initialize, serve)
	if !errors.Is(err, listenErr) {
		t.Fatalf("expected serve error, got %v", err)
	}
	if !finished.Load() {
		t.Fatal("initializer must finish before serveWhileInitializing returns")
	}
}

func TestServeWhileInitializingStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	initialized := make(chan struct{})
	initialize := func(context.Context) error {
		close(initialized)
		return nil
	}
	serve := func(ctx context.Context) error {
		<-initialized
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	if err := serveWhileInitializing(ctx, initialize, serve); err != nil {
		t.Fatalf("cancellation should be a clean shutdown, got %v", err)
	}
}
