// Package simtest spins up a go-ethereum simulated chain with a funded
// keystore account and a deployed stub of the recruitment contract. It is
// meant for tests only.
package simtest

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"RecruitChain/internal/web3"
	"RecruitChain/internal/web3/ethereum"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

const (
	// RecruitmentABI describes the stub contract. Every call returns 42.
	RecruitmentABI = `[
		{"type":"function","name":"applicantCount","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
		{"type":"function","name":"hire","inputs":[{"name":"candidate","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"event","name":"Hired","inputs":[{"name":"candidate","type":"address","indexed":true}],"anonymous":false}
	]`

	// recruitmentBin deploys runtime code that stores 42 at memory 0 and
	// returns the 32-byte word for any calldata.
	recruitmentBin = "0x600a600c600039600a6000f3602a60005260206000f3"

	// Passphrase unlocks the generated keystore account.
	Passphrase = "simtest"
)

// ChainID is the chain ID of the go-ethereum simulated backend.
var ChainID = big.NewInt(1337)

// Chain bundles the simulated backend, the funded account and the deployed
// contract address.
type Chain struct {
	Backend  *simulated.Backend
	Keystore *keystore.KeyStore
	Account  common.Address
	Contract common.Address
	Endpoint web3.Endpoint
}

// NewChain creates the chain and deploys the stub contract from the funded
// account.
func NewChain(t *testing.T) *Chain {
	t.Helper()

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.NewAccount(Passphrase)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if err := ks.Unlock(acct, Passphrase); err != nil {
		t.Fatalf("unlock account: %v", err)
	}

	backend := simulated.NewBackend(coretypes.GenesisAlloc{
		acct.Address: {Balance: new(big.Int).Mul(big.NewInt(10), big.NewInt(1_000_000_000_000_000_000))},
	}, simulated.WithBlockGasLimit(30_000_000))
	t.Cleanup(func() { _ = backend.Close() })

	auth, err := bind.NewKeyStoreTransactorWithChainID(ks, accounts.Account{Address: acct.Address}, ChainID)
	if err != nil {
		t.Fatalf("transactor: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	auth.Context = ctx

	parsed, err := abi.JSON(strings.NewReader(RecruitmentABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	address, _, _, err := bind.DeployContract(auth, parsed, common.FromHex(recruitmentBin), backend.Client())
	if err != nil {
		t.Fatalf("deploy contract: %v", err)
	}
	backend.Commit()

	return &Chain{
		Backend:  backend,
		Keystore: ks,
		Account:  acct.Address,
		Contract: address,
		Endpoint: web3.Endpoint{Network: "simulated", ChainID: ChainID, URL: "simulated://"},
	}
}

// Provider returns a provider serving the chain's keystore account.
func (c *Chain) Provider() *ethereum.Provider {
	return ethereum.NewSimulatedProvider(c.Endpoint, c.Backend, ethereum.NewKeystoreSource(c.Keystore))
}
