package network

import (
	"fmt"
	"sort"
	"strings"
)

// Explorer holds block explorer endpoints for a network.
type Explorer struct {
	Name    string
	BaseURL string
	APIURL  string
}

// Network holds the static parameters of a supported chain.
type Network struct {
	Name            string
	DisplayName     string
	ChainID         int64
	RPC             string
	AlternativeRPCs []string
	Explorer        Explorer
	NativeToken     string
	Testnet         bool
}

var networks = map[string]Network{
	"ARBITRUM_ONE": {
		Name:        "ARBITRUM_ONE",
		DisplayName: "Arbitrum One",
		ChainID:     42161,
		RPC:         "https://arb1.arbitrum.io/rpc",
		AlternativeRPCs: []string{
			"https://endpoints.omniatech.io/v1/arbitrum/one/public",
		},
		Explorer: Explorer{
			Name:    "Arbiscan",
			BaseURL: "https://arbiscan.io",
			APIURL:  "https://api.arbiscan.io/api",
		},
		NativeToken: "ETH",
	},
	"ARBITRUM_NOVA": {
		Name:        "ARBITRUM_NOVA",
		DisplayName: "Arbitrum Nova",
		ChainID:     42170,
		RPC:         "https://nova.arbitrum.io/rpc",
		AlternativeRPCs: []string{
			"https://arbitrum-nova.publicnode.com",
			"https://arbitrum-nova.drpc.org",
		},
		Explorer: Explorer{
			Name:    "NovaArbiscan",
			BaseURL: "https://nova.arbiscan.io",
			APIURL:  "https://api-nova.arbiscan.io/api",
		},
		NativeToken: "ETH",
	},
	"ARBITRUM_SEPOLIA": {
		Name:        "ARBITRUM_SEPOLIA",
		DisplayName: "Arbitrum Sepolia",
		ChainID:     421614,
		RPC:         "https://sepolia-rollup.arbitrum.io/rpc",
		Explorer: Explorer{
			Name:    "Sepolia Arbiscan",
			BaseURL: "https://sepolia.arbiscan.io",
			APIURL:  "https://api-sepolia.arbiscan.io/api",
		},
		NativeToken: "ETH",
		Testnet:     true,
	},
	"BERACHAIN": {
		Name:        "BERACHAIN",
		DisplayName: "Berachain Bartio (Testnet)",
		ChainID:     80085,
		RPC:         "https://bartio.rpc.berachain.com",
		AlternativeRPCs: []string{
			"https://bartio.drpc.org",
			"https://bera-testnet.nodeinfra.com",
		},
		Explorer: Explorer{
			Name:    "Beratrail",
			BaseURL: "https://bartio.beratrail.io",
			APIURL:  "https://api.routescan.io/v2/network/testnet/evm/80085/etherscan/api",
		},
		NativeToken: "BERA",
		Testnet:     true,
	},
}

// Get returns the configuration for a named network.
func Get(name string) (Network, error) {
	net, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unsupported network %q, available: %s", name, strings.Join(Names(), ", "))
	}
	return net, nil
}

// Names returns the supported network names, sorted.
func Names() []string {
	out := make([]string, 0, len(networks))
	for name := range networks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns every supported network, sorted by name.
func All() []Network {
	out := make([]Network, 0, len(networks))
	for _, name := range Names() {
		out = append(out, networks[name])
	}
	return out
}

// TxURL returns the explorer URL for a transaction hash.
func (n Network) TxURL(txHash string) string {
	if n.Explorer.BaseURL == "" {
		return txHash
	}
	return n.Explorer.BaseURL + "/tx/" + txHash
}

// AddressURL returns the explorer URL for an address.
func (n Network) AddressURL(addr string) string {
	if n.Explorer.BaseURL == "" {
		return addr
	}
	return n.Explorer.BaseURL + "/address/" + addr
}

// ValidateChainID reports whether the chain id reported by a node matches
// the network's expected id.
func (n Network) ValidateChainID(chainID int64) bool {
	return n.ChainID == chainID
}

// Endpoints returns the default RPC followed by any alternatives.
func (n Network) Endpoints() []string {
	return append([]string{n.RPC}, n.AlternativeRPCs...)
}
