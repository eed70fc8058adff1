package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"mintforge/internal/chain"
)

// Session exposes read-only contract state to the orchestrator. All calls
// go through the chain client so fakes can serve them in tests.
type Session struct {
	client  chain.Client
	address common.Address
	abi     abi.ABI
}

// NewSession binds an ABI to a deployed contract address.
func NewSession(client chain.Client, address common.Address, contractABI abi.ABI) *Session {
	return &Session{client: client, address: address, abi: contractABI}
}

// Address returns the bound contract address.
func (s *Session) Address() common.Address {
	return s.address
}

func (s *Session) has(name string, arity int) bool {
	method, ok := s.abi.Methods[name]
	return ok && len(method.Inputs) == arity
}

func (s *Session) call(ctx context.Context, name string, args ...interface{}) ([]interface{}, error) {
	data, err := s.abi.Pack(name, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", name, err)
	}
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	vals, err := s.abi.Unpack(name, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", name, err)
	}
	return vals, nil
}

func (s *Session) callUint(ctx context.Context, name string, args ...interface{}) (*big.Int, error) {
	vals, err := s.call(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s returned no values", name)
	}
	// Tuple returns (e.g. quoteBatchMint's cost+fee) use the first element.
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, expected uint256", name, vals[0])
	}
	return v, nil
}

// MintActive reports the contract's minting flag. A contract without a
// mintLive function is treated as always active.
func (s *Session) MintActive(ctx context.Context) (bool, error) {
	if !s.has("mintLive", 0) {
		return true, nil
	}
	vals, err := s.call(ctx, "mintLive")
	if err != nil {
		return false, err
	}
	live, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("mintLive returned %T, expected bool", vals[0])
	}
	return live, nil
}

// TotalSupply returns the current supply, or nil when the contract does not
// expose it.
func (s *Session) TotalSupply(ctx context.Context) (*big.Int, error) {
	if !s.has("totalSupply", 0) {
		return nil, nil
	}
	return s.callUint(ctx, "totalSupply")
}

// MaxSupply returns the supply cap, or nil when the contract does not
// expose it.
func (s *Session) MaxSupply(ctx context.Context) (*big.Int, error) {
	if !s.has("maxSupply", 0) {
		return nil, nil
	}
	return s.callUint(ctx, "maxSupply")
}

// allowanceProbes are tried in order, with the group argument first and
// then without it.
var allowanceProbes = []string{"maxMintPerWallet", "maxMint", "maxMintAmount"}

// RemainingAllowance returns the maximum quantity the contract currently
// permits. Contracts exposing none of the known limit functions default
// to 1.
func (s *Session) RemainingAllowance(ctx context.Context, groupID int64) (int64, error) {
	for _, name := range allowanceProbes {
		if s.has(name, 1) {
			if v, err := s.callUint(ctx, name, big.NewInt(groupID)); err == nil {
				return v.Int64(), nil
			}
		}
		if s.has(name, 0) {
			if v, err := s.callUint(ctx, name); err == nil {
				return v.Int64(), nil
			}
		}
	}
	return 1, nil
}

// costProbes pair a quote function with its argument builder.
var costProbes = []struct {
	name string
	args func(groupID, amount int64) []interface{}
}{
	{"quoteBatchMint", func(g, a int64) []interface{} { return []interface{}{big.NewInt(g), big.NewInt(a)} }},
	{"mintPrice", func(g, a int64) []interface{} { return []interface{}{big.NewInt(g), big.NewInt(a)} }},
	{"price", func(_, a int64) []interface{} { return []interface{}{big.NewInt(a)} }},
	{"cost", func(_, a int64) []interface{} { return []interface{}{big.NewInt(a)} }},
}

// MintCost returns the wei price for minting the given quantity. Contracts
// exposing no known quote function are treated as free mints.
func (s *Session) MintCost(ctx context.Context, groupID, amount int64) (*big.Int, error) {
	for _, probe := range costProbes {
		args := probe.args(groupID, amount)
		if !s.has(probe.name, len(args)) {
			continue
		}
		if v, err := s.callUint(ctx, probe.name, args...); err == nil {
			return v, nil
		}
	}
	return big.NewInt(0), nil
}
