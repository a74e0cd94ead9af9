package contract

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/web3/simtest"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseInterfaceRawABI(t *testing.T) {
	t.Parallel()

	iface, err := ParseInterface([]byte(simtest.RecruitmentABI))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ops := iface.Operations()
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations, got %v", ops)
	}
	if ops["hire"] != "hire(address)" || ops["applicantCount"] != "applicantCount()" {
		t.Fatalf("unexpected signatures %v", ops)
	}
	if names := iface.OperationNames(); names[0] != "applicantCount" || names[1] != "hire" {
		t.Fatalf("names not sorted: %v", names)
	}
}

func TestParseInterfaceArtifact(t *testing.T) {
	t.Parallel()

	artifact := `{"contractName":"Recruitment","schemaVersion":"3.4.9","abi":` + simtest.RecruitmentABI + `,"bytecode":"0x00"}`
	path := filepath.Join(t.TempDir(), "Recruitment.json")
	if err := os.WriteFile(path, []byte(artifact), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	iface, err := LoadInterface(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if iface.Name != "Recruitment" || iface.Version != "3.4.9" {
		t.Fatalf("unexpected metadata %+v", iface)
	}
	if got := iface.String(); got != "Recruitment@3.4.9[applicantCount,hire]" {
		t.Fatalf("unexpected description %s", got)
	}
}

func TestParseInterfaceRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":       "  ",
		"malformed":   `[{"type":"function"`,
		"no abi":      `{"contractName":"Recruitment"}`,
		"events only": `[{"type":"event","name":"Hired","inputs":[]}]`,
	}
	for name, input := range cases {
		if _, err := ParseInterface([]byte(input)); xerrors.CodeOf(err) != xerrors.CodeBinding {
			t.Fatalf("%s: expected binding failure, got %v", name, err)
		}
	}
	if _, err := LoadInterface(filepath.Join(t.TempDir(), "missing.json")); xerrors.CodeOf(err) != xerrors.CodeBinding {
		t.Fatalf("missing file: expected binding failure, got %v", err)
	}
}

func TestHandleResolveCallTransact(t *testing.T) {
	t.Parallel()

	chain := simtest.NewChain(t)
	provider := chain.Provider()
	iface, err := ParseInterface([]byte(simtest.RecruitmentABI))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	signer, err := provider.Signer(chain.Account)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	handle, err := Bind(chain.Contract, iface, provider.Backend(), signer)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolved, err := handle.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != chain.Contract {
		t.Fatalf("resolved %s, want %s", resolved.Hex(), chain.Contract.Hex())
	}

	out, err := handle.Call(ctx, "applicantCount")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	count, ok := out[0].(*big.Int)
	if !ok || count.Int64() != 42 {
		t.Fatalf("unexpected call output %v", out)
	}

	signerCtx := handle.Signer().Context
	tx, err := handle.Transact(ctx, "hire", common.HexToAddress("0x00000000000000000000000000000000000000cc"))
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	chain.Backend.Commit()
	receipt, err := chain.Backend.Client().TransactionReceipt(ctx, tx.Hash())
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if receipt.Status != 1 {
		t.Fatalf("unexpected receipt status %d", receipt.Status)
	}
	if handle.Signer().Context != signerCtx {
		t.Fatal("transact must not change the shared signer context")
	}

	if _, err := handle.Call(ctx, "fire"); xerrors.CodeOf(err) != xerrors.CodeBinding {
		t.Fatalf("unknown operation should fail binding, got %v", err)
	}
}

func TestTransactLeavesSharedSignerUntouched(t *testing.T) {
	t.Parallel()

	chain := simtest.NewChain(t)
	provider := chain.Provider()
	iface, _ := ParseInterface([]byte(simtest.RecruitmentABI))
	signer, err := provider.Signer(chain.Account)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	handle, err := Bind(chain.Contract, iface, provider.Backend(), signer)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	original := signer.Context

	done := make(chan struct{})
	readerErr := make(chan string, 1)
	go func() {
		defer close(readerErr)
		for {
			select {
			case <-done:
				return
			default:
			}
			if handle.Signer().Context != original {
				readerErr <- "signer context changed during transact"
				return
			}
		}
	}()

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := handle.Transact(ctx, "hire", common.BigToAddress(big.NewInt(int64(i+1))))
		cancel()
		if err != nil {
			close(done)
			t.Fatalf("transact %d: %v", i, err)
		}
	}
	close(done)
	if msg, ok := <-readerErr; ok {
		t.Fatal(msg)
	}
}

func TestHandleResolveEmptyAddress(t *testing.T) {
	t.Parallel()

	chain := simtest.NewChain(t)
	provider := chain.Provider()
	iface, _ := ParseInterface([]byte(simtest.RecruitmentABI))
	signer, err := provider.Signer(chain.Account)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	handle, err := Bind(common.HexToAddress("0x000000000000000000000000000000000000dEaD"), iface, provider.Backend(), signer)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	_, err = handle.Resolve(context.Background())
	if !errors.Is(err, ErrContractNotDeployed) {
		t.Fatalf("expected not deployed, got %v", err)
	}
}

func TestBindValidation(t *testing.T) {
	t.Parallel()

	chain := simtest.NewChain(t)
	provider := chain.Provider()
	iface, _ := ParseInterface([]byte(simtest.RecruitmentABI))
	signer, _ := provider.Signer(chain.Account)

	if _, err := Bind(common.Address{}, iface, provider.Backend(), signer); err == nil {
		t.Fatal("zero address must be rejected")
	}
	if _, err := Bind(chain.Contract, nil, provider.Backend(), signer); err == nil {
		t.Fatal("nil interface must be rejected")
	}
	if _, err := Bind(chain.Contract, iface, provider.Backend(), nil); err == nil {
		t.Fatal("nil signer must be rejected")
	}
}
