package contract

import (
	"context"
	"fmt"

	xerrors "RecruitChain/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// ErrContractNotDeployed is returned by Resolve when the configured address
// carries no code. Compare with errors.Is.
var ErrContractNotDeployed = xerrors.New(xerrors.CodeContractNotDeployed, "")

// Handle is a contract binding combining an address, an interface
// description and a signer.
type Handle struct {
	address common.Address
	iface   *Interface
	signer  *bind.TransactOpts
	backend bind.ContractBackend
	bound   *bind.BoundContract
}

// Bind constructs the handle. It performs no network I/O.
func Bind(address common.Address, iface *Interface, backend bind.ContractBackend, signer *bind.TransactOpts) (*Handle, error) {
	if address == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeBinding, "合约地址不能为空")
	}
	if iface == nil || len(iface.ABI.Methods) == 0 {
		return nil, xerrors.New(xerrors.CodeBinding, "合约接口描述不能为空")
	}
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeBinding, "缺少合约访问后端")
	}
	if signer == nil || signer.Signer == nil {
		return nil, xerrors.New(xerrors.CodeBinding, "缺少交易签名器")
	}
	return &Handle{
		address: address,
		iface:   iface,
		signer:  signer,
		backend: backend,
		bound:   bind.NewBoundContract(address, iface.ABI, backend, backend, backend),
	}, nil
}

// Address returns the configured contract address.
func (h *Handle) Address() common.Address { return h.address }

// Interface returns the interface description the handle was bound with.
func (h *Handle) Interface() *Interface { return h.iface }

// Signer returns the transact options the handle signs with.
func (h *Handle) Signer() *bind.TransactOpts { return h.signer }

// Resolve confirms the contract is deployed by reading its code from the
// node and returns the address it was found at.
func (h *Handle) Resolve(ctx context.Context) (common.Address, error) {
	code, err := h.backend.CodeAt(ctx, h.address, nil)
	if err != nil {
		return common.Address{}, xerrors.Wrap(xerrors.CodeConnectivity, err, "读取合约代码失败",
			xerrors.WithMetadata("contract", h.address.Hex()))
	}
	if len(code) == 0 {
		return common.Address{}, xerrors.New(xerrors.CodeContractNotDeployed,
			fmt.Sprintf("地址 %s 上没有合约代码", h.address.Hex()))
	}
	return h.address, nil
}

// Call invokes a read-only operation and returns its decoded outputs.
func (h *Handle) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	if _, err := h.iface.Method(method); err != nil {
		return nil, err
	}
	var out []any
	opts := &bind.CallOpts{Context: ctx, From: h.signer.From}
	if err := h.bound.Call(opts, &out, method, args...); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeBinding, err, fmt.Sprintf("调用合约操作 %s 失败", method))
	}
	return out, nil
}

// Transact submits a state-changing operation signed by the session signer.
// The shared signer is never mutated; each call signs with a copy carrying
// ctx. Confirmation is left to the caller.
func (h *Handle) Transact(ctx context.Context, method string, args ...any) (*coretypes.Transaction, error) {
	if _, err := h.iface.Method(method); err != nil {
		return nil, err
	}
	opts := *h.signer
	opts.Context = ctx

	tx, err := h.bound.Transact(&opts, method, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeBinding, err, fmt.Sprintf("提交合约操作 %s 失败", method))
	}
	return tx, nil
}
