package web3

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	xerrors "RecruitChain/internal/errors"

	"gopkg.in/yaml.v3"
)

// APIKeyPlaceholder marks where the access credential is substituted inside
// an RPC URL template.
const APIKeyPlaceholder = "{api_key}"

// NetworkDefinitions models the structure of configs/networks.yaml.
type NetworkDefinitions struct {
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition describes a single network endpoint template.
type NetworkDefinition struct {
	ChainID     uint64 `yaml:"chain_id"`
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// DefaultNetworks returns the built-in catalogue. Entries loaded from a YAML
// file override these by name.
func DefaultNetworks() NetworkDefinitions {
	return NetworkDefinitions{Networks: map[string]NetworkDefinition{
		"mainnet":   {ChainID: 1, RPCURL: "https://mainnet.infura.io/v3/" + APIKeyPlaceholder, Description: "Ethereum mainnet via Infura"},
		"sepolia":   {ChainID: 11155111, RPCURL: "https://sepolia.infura.io/v3/" + APIKeyPlaceholder, Description: "Sepolia testnet via Infura"},
		"holesky":   {ChainID: 17000, RPCURL: "https://holesky.infura.io/v3/" + APIKeyPlaceholder, Description: "Holesky testnet via Infura"},
		"goerli":    {ChainID: 5, RPCURL: "https://goerli.infura.io/v3/" + APIKeyPlaceholder, Description: "Goerli testnet via Infura (deprecated)"},
		"localhost": {ChainID: 1337, RPCURL: "http://127.0.0.1:8545", Description: "local development node"},
	}}
}

// LoadNetworkDefinitions parses the YAML catalogue and merges it over the
// built-in defaults. An empty path yields the defaults.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	defs := DefaultNetworks()
	if strings.TrimSpace(path) == "" {
		return defs, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取网络配置失败: %w", err)
	}

	var loaded NetworkDefinitions
	if err := yaml.Unmarshal(content, &loaded); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	for name, def := range loaded.Networks {
		defs.Networks[strings.ToLower(strings.TrimSpace(name))] = def
	}
	return defs, nil
}

// Endpoint identifies the target network and the credential-bearing URL used
// to reach it. It is fixed when a session is constructed.
type Endpoint struct {
	Network  string
	ChainID  *big.Int
	URL      string
	redacted string
}

// NewEndpoint substitutes the access credential into the definition's URL
// template. A template that expects a key but receives none is rejected.
func NewEndpoint(network string, def NetworkDefinition, apiKey string) (Endpoint, error) {
	template := strings.TrimSpace(def.RPCURL)
	if template == "" {
		return Endpoint{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("网络 %s 未配置 RPC 地址", network))
	}
	if def.ChainID == 0 {
		return Endpoint{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("网络 %s 未配置链 ID", network))
	}
	apiKey = strings.TrimSpace(apiKey)
	if strings.Contains(template, APIKeyPlaceholder) && apiKey == "" {
		return Endpoint{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("网络 %s 需要提供 API key", network))
	}
	return Endpoint{
		Network:  network,
		ChainID:  new(big.Int).SetUint64(def.ChainID),
		URL:      strings.ReplaceAll(template, APIKeyPlaceholder, apiKey),
		redacted: strings.ReplaceAll(template, APIKeyPlaceholder, "***"),
	}, nil
}

// Redacted returns the URL with the credential masked, safe for logs.
func (e Endpoint) Redacted() string {
	if e.redacted != "" {
		return e.redacted
	}
	return e.URL
}

// LogValue keeps the credential out of structured logs.
func (e Endpoint) LogValue() slog.Value {
	chainID := ""
	if e.ChainID != nil {
		chainID = e.ChainID.String()
	}
	return slog.GroupValue(
		slog.String("network", e.Network),
		slog.String("chain_id", chainID),
		slog.String("url", e.Redacted()),
	)
}
