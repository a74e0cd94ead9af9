package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	xerrors "RecruitChain/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Interface is the validated description of a contract's callable
// operations. It is produced by an external build step and loaded here either
// as a bare ABI array or as a build artifact carrying an "abi" field.
type Interface struct {
	Name    string
	Version string
	ABI     abi.ABI
}

type artifact struct {
	ContractName  string          `json:"contractName"`
	SchemaVersion string          `json:"schemaVersion"`
	ABI           json.RawMessage `json:"abi"`
}

// LoadInterface reads and parses the interface description at path.
func LoadInterface(path string) (*Interface, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeBinding, err, "读取合约接口描述失败",
			xerrors.WithMetadata("path", path))
	}
	return ParseInterface(content)
}

// ParseInterface accepts either a raw ABI JSON array or an artifact object.
// Descriptions without any callable method are rejected.
func ParseInterface(data []byte) (*Interface, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, xerrors.New(xerrors.CodeBinding, "合约接口描述为空")
	}

	iface := &Interface{}
	abiJSON := trimmed
	if trimmed[0] == '{' {
		var art artifact
		if err := json.Unmarshal(trimmed, &art); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeBinding, err, "解析合约构建产物失败")
		}
		if len(art.ABI) == 0 {
			return nil, xerrors.New(xerrors.CodeBinding, "合约构建产物缺少 abi 字段")
		}
		iface.Name = art.ContractName
		iface.Version = art.SchemaVersion
		abiJSON = art.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeBinding, err, "解析 ABI 失败")
	}
	if len(parsed.Methods) == 0 {
		return nil, xerrors.New(xerrors.CodeBinding, "合约接口描述未包含任何可调用操作")
	}
	iface.ABI = parsed
	return iface, nil
}

// Operations maps each callable operation name to its canonical signature,
// e.g. "hire" -> "hire(address,uint256)".
func (i *Interface) Operations() map[string]string {
	if i == nil {
		return nil
	}
	ops := make(map[string]string, len(i.ABI.Methods))
	for name, method := range i.ABI.Methods {
		ops[name] = method.Sig
	}
	return ops
}

// OperationNames returns the sorted operation names.
func (i *Interface) OperationNames() []string {
	if i == nil {
		return nil
	}
	names := make([]string, 0, len(i.ABI.Methods))
	for name := range i.ABI.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method looks up an operation by name.
func (i *Interface) Method(name string) (abi.Method, error) {
	if i == nil {
		return abi.Method{}, xerrors.New(xerrors.CodeBinding, "合约接口描述未加载")
	}
	method, ok := i.ABI.Methods[name]
	if !ok {
		return abi.Method{}, xerrors.New(xerrors.CodeBinding, fmt.Sprintf("合约接口中不存在操作 %s", name))
	}
	return method, nil
}

// String describes the interface for logs.
func (i *Interface) String() string {
	if i == nil {
		return "<nil>"
	}
	name := i.Name
	if name == "" {
		name = "contract"
	}
	if i.Version != "" {
		name += "@" + i.Version
	}
	return fmt.Sprintf("%s[%s]", name, strings.Join(i.OperationNames(), ","))
}
