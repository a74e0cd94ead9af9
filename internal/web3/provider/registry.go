package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"RecruitChain/internal/config"
	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/web3"
	"RecruitChain/internal/web3/ethereum"
)

// Registry resolves network names to endpoints using the network catalogue.
type Registry struct {
	networks map[string]web3.NetworkDefinition
}

// NewRegistry loads the catalogue referenced by the web3 configuration.
func NewRegistry(cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadNetworkDefinitions(cfg.NetworksFile)
	if err != nil {
		return nil, err
	}
	return NewRegistryFromDefinitions(defs), nil
}

// NewRegistryFromDefinitions builds a registry from already parsed definitions.
func NewRegistryFromDefinitions(defs web3.NetworkDefinitions) *Registry {
	networks := make(map[string]web3.NetworkDefinition, len(defs.Networks))
	for name, def := range defs.Networks {
		networks[strings.ToLower(strings.TrimSpace(name))] = def
	}
	return &Registry{networks: networks}
}

// Endpoint returns the endpoint for the named network with apiKey applied.
func (r *Registry) Endpoint(network, apiKey string) (web3.Endpoint, error) {
	if r == nil {
		return web3.Endpoint{}, errors.New("未初始化的网络注册表")
	}
	name := strings.ToLower(strings.TrimSpace(network))
	def, ok := r.networks[name]
	if !ok {
		return web3.Endpoint{}, xerrors.New(xerrors.CodeNotFound,
			fmt.Sprintf("网络 %s 未在配置中找到，可选: %s", network, strings.Join(r.Networks(), ", ")))
	}
	return web3.NewEndpoint(name, def, apiKey)
}

// Definition returns the raw catalogue entry for the named network.
func (r *Registry) Definition(network string) (web3.NetworkDefinition, bool) {
	if r == nil {
		return web3.NetworkDefinition{}, false
	}
	def, ok := r.networks[strings.ToLower(strings.TrimSpace(network))]
	return def, ok
}

// Networks returns the list of known network names.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the connection provider for the configured network and account
// source. No request reaches the node here.
func Open(ctx context.Context, cfg config.Web3Config, opts ...ethereum.Option) (*ethereum.Provider, error) {
	registry, err := NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	endpoint, err := registry.Endpoint(cfg.Network, cfg.ResolveAPIKey())
	if err != nil {
		return nil, err
	}

	if cfg.AccountSource == config.AccountSourceKeystore {
		source, err := ethereum.OpenKeystoreSource(cfg.Keystore.Dir, cfg.Keystore.ResolvePassword())
		if err != nil {
			return nil, err
		}
		opts = append(opts, ethereum.WithAccountSource(source))
	}
	return ethereum.NewProvider(ctx, endpoint, opts...)
}
