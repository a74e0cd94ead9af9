package contract

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	xerrors "RecruitChain/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseArgs converts textual arguments into the Go values the ABI encoder
// expects for the named operation. Only scalar types are supported.
func (i *Interface) ParseArgs(method string, raw []string) ([]any, error) {
	m, err := i.Method(method)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(m.Inputs) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("操作 %s 需要 %d 个参数，实际 %d 个", m.Sig, len(m.Inputs), len(raw)))
	}
	args := make([]any, len(raw))
	for idx, input := range m.Inputs {
		value, err := parseArg(input.Type, strings.TrimSpace(raw[idx]))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
				fmt.Sprintf("参数 %d (%s) 无法解析", idx, input.Type.String()))
		}
		args[idx] = value
	}
	return args, nil
}

func parseArg(typ abi.Type, raw string) (any, error) {
	switch typ.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("非法地址 %q", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		decoded, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(decoded) != typ.Size {
			return nil, fmt.Errorf("需要 %d 字节，实际 %d 字节", typ.Size, len(decoded))
		}
		array := reflect.New(typ.GetType()).Elem()
		reflect.Copy(array, reflect.ValueOf(decoded))
		return array.Interface(), nil
	case abi.IntTy, abi.UintTy:
		return parseInteger(typ, raw)
	default:
		return nil, fmt.Errorf("不支持的参数类型 %s", typ.String())
	}
}

func parseInteger(typ abi.Type, raw string) (any, error) {
	n, ok := new(big.Int).SetString(raw, 0)
	if !ok {
		return nil, fmt.Errorf("非法整数 %q", raw)
	}
	unsigned := typ.T == abi.UintTy
	if unsigned && n.Sign() < 0 {
		return nil, fmt.Errorf("无符号整数不能为负数")
	}
	bits := n.BitLen()
	if !unsigned && n.Sign() < 0 {
		bits = new(big.Int).Add(n, big.NewInt(1)).BitLen()
	}
	limit := typ.Size
	if !unsigned {
		limit--
	}
	if bits > limit {
		return nil, fmt.Errorf("数值超出 %s 范围", typ.String())
	}

	if unsigned {
		switch typ.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		}
		return n, nil
	}
	switch typ.Size {
	case 8:
		return int8(n.Int64()), nil
	case 16:
		return int16(n.Int64()), nil
	case 32:
		return int32(n.Int64()), nil
	case 64:
		return n.Int64(), nil
	}
	return n, nil
}
