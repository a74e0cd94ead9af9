package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// AccountSource lists the accounts that can sign for a session and derives
// signing capabilities for them. Implementations decide where keys live: on
// the node itself or in a local keystore.
type AccountSource interface {
	// Accounts returns the available accounts in the order the source reports
	// them. It may block on network I/O.
	Accounts(ctx context.Context) ([]common.Address, error)
	// Transactor derives transact options bound to account. It must not
	// perform network I/O.
	Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error)
}

// Provider is the connection to a single node for a single network. It is the
// only component that talks to the chain during session setup.
type Provider interface {
	Endpoint() Endpoint
	Accounts(ctx context.Context) ([]common.Address, error)
	Signer(account common.Address) (*bind.TransactOpts, error)
	Backend() bind.ContractBackend
	Close()
}
