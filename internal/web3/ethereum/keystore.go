package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// KeystoreSource serves accounts from a local encrypted keystore. Only
// unlocked accounts can sign.
type KeystoreSource struct {
	ks *keystore.KeyStore
}

// NewKeystoreSource wraps an already configured keystore.
func NewKeystoreSource(ks *keystore.KeyStore) *KeystoreSource {
	return &KeystoreSource{ks: ks}
}

// OpenKeystoreSource opens the keystore at dir and unlocks every account in it
// with passphrase until the process exits.
func OpenKeystoreSource(dir, passphrase string) (*KeystoreSource, error) {
	if dir == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "keystore 目录不能为空")
	}
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	for _, acct := range ks.Accounts() {
		if err := ks.Unlock(acct, passphrase); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解锁 keystore 账户失败",
				xerrors.WithMetadata("account", acct.Address.Hex()))
		}
	}
	return NewKeystoreSource(ks), nil
}

// Accounts returns the keystore accounts ordered by key file name.
func (s *KeystoreSource) Accounts(_ context.Context) ([]common.Address, error) {
	if s == nil || s.ks == nil {
		return nil, errors.New("keystore 账户来源未初始化")
	}
	list := s.ks.Accounts()
	out := make([]common.Address, 0, len(list))
	for _, acct := range list {
		out = append(out, acct.Address)
	}
	return out, nil
}

// Transactor binds the keystore signer to account.
func (s *KeystoreSource) Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	if s == nil || s.ks == nil {
		return nil, errors.New("keystore 账户来源未初始化")
	}
	if !s.ks.HasAddress(account) {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("keystore 中不存在账户 %s", account.Hex()))
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(s.ks, accounts.Account{Address: account}, chainID)
	if err != nil {
		return nil, err
	}
	return opts, nil
}

var _ web3.AccountSource = (*KeystoreSource)(nil)
