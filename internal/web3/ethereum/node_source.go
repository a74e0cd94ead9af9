package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"RecruitChain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// NodeSource uses the accounts managed by the node: eth_accounts to list them
// and eth_signTransaction to sign on their behalf.
type NodeSource struct {
	client *gethrpc.Client
}

// NewNodeSource returns a source backed by the node's own accounts.
func NewNodeSource(client *gethrpc.Client) *NodeSource {
	return &NodeSource{client: client}
}

// Accounts calls eth_accounts and returns the addresses in node order.
func (s *NodeSource) Accounts(ctx context.Context) ([]common.Address, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("节点账户来源未初始化")
	}
	var accounts []common.Address
	if err := s.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Transactor returns transact options whose Signer asks the node to sign.
func (s *NodeSource) Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("节点账户来源未初始化")
	}
	signer := &NodeSigner{client: s.client, account: account, chainID: new(big.Int).Set(chainID)}
	return signer.TransactOpts(), nil
}

// NodeSigner signs transactions through the node's eth_signTransaction.
type NodeSigner struct {
	client  *gethrpc.Client
	account common.Address
	chainID *big.Int
}

// TransactOpts builds bind options for the signer. The Signer callback uses
// the options' Context when one is set.
func (s *NodeSigner) TransactOpts() *bind.TransactOpts {
	opts := &bind.TransactOpts{From: s.account}
	opts.Signer = func(from common.Address, tx *coretypes.Transaction) (*coretypes.Transaction, error) {
		ctx := opts.Context
		if ctx == nil {
			ctx = context.Background()
		}
		if from != s.account {
			return nil, bind.ErrNotAuthorized
		}
		return s.SignTx(ctx, tx)
	}
	return opts
}

type signTxArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Input                hexutil.Bytes   `json:"input"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
}

type signTxResult struct {
	Raw hexutil.Bytes `json:"raw"`
}

// SignTx asks the node to sign tx and checks the returned transaction was
// signed by the bound account.
func (s *NodeSigner) SignTx(ctx context.Context, tx *coretypes.Transaction) (*coretypes.Transaction, error) {
	args := signTxArgs{
		From:    s.account,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Input:   tx.Data(),
		ChainID: (*hexutil.Big)(s.chainID),
	}
	if tx.Type() == coretypes.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}

	var res signTxResult
	if err := s.client.CallContext(ctx, &res, "eth_signTransaction", args); err != nil {
		return nil, fmt.Errorf("节点签名交易失败: %w", err)
	}
	signed := new(coretypes.Transaction)
	if err := signed.UnmarshalBinary(res.Raw); err != nil {
		return nil, fmt.Errorf("解析已签名交易失败: %w", err)
	}
	sender, err := coretypes.Sender(coretypes.LatestSignerForChainID(s.chainID), signed)
	if err != nil {
		return nil, fmt.Errorf("校验交易签名失败: %w", err)
	}
	if sender != s.account {
		return nil, fmt.Errorf("节点使用了错误的账户签名: %s", sender.Hex())
	}
	return signed, nil
}

var _ web3.AccountSource = (*NodeSource)(nil)
