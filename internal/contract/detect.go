package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Role names the position of a mint parameter in a candidate signature.
type Role int

const (
	RoleAmount Role = iota
	RoleGroup
	RoleRecipient
)

// Kind identifies which known minting entry point was detected.
type Kind string

const (
	KindBatchMint  Kind = "batchMint"
	KindMint       Kind = "mint"
	KindMintBatch  Kind = "mintBatch"
	KindPublicMint Kind = "publicMint"
)

// UnsupportedContractError is returned when no known minting entry point
// matches the contract's ABI.
type UnsupportedContractError struct {
	Tried []string
}

func (e *UnsupportedContractError) Error() string {
	return fmt.Sprintf("no suitable mint function found in contract, tried: %s", strings.Join(e.Tried, ", "))
}

// candidate order matters: the first ABI match wins.
var candidates = []struct {
	name  string
	kind  Kind
	order []Role
}{
	{"batchMint", KindBatchMint, []Role{RoleAmount, RoleGroup, RoleRecipient}},
	{"mint", KindMint, []Role{RoleRecipient, RoleAmount, RoleGroup}},
	{"mintBatch", KindMintBatch, []Role{RoleRecipient, RoleGroup, RoleAmount}},
	{"publicMint", KindPublicMint, []Role{RoleAmount, RoleGroup}},
}

// Interface is the detected minting entry point of a contract. Immutable
// once detected for a run.
type Interface struct {
	Kind     Kind
	Name     string
	ArgOrder []Role

	abi abi.ABI
}

// Detect probes the prioritized candidate list against the contract ABI and
// returns the first entry point whose arity matches.
func Detect(contractABI abi.ABI) (*Interface, error) {
	tried := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		tried = append(tried, cand.name)
		method, ok := contractABI.Methods[cand.name]
		if !ok {
			continue
		}
		if len(method.Inputs) != len(cand.order) {
			continue
		}
		return &Interface{
			Kind:     cand.kind,
			Name:     cand.name,
			ArgOrder: cand.order,
			abi:      contractABI,
		}, nil
	}
	return nil, &UnsupportedContractError{Tried: tried}
}

// Calldata packs the mint call for the detected entry point.
func (i *Interface) Calldata(groupID, amount int64, recipient common.Address) ([]byte, error) {
	args := make([]interface{}, len(i.ArgOrder))
	for n, role := range i.ArgOrder {
		switch role {
		case RoleAmount:
			args[n] = big.NewInt(amount)
		case RoleGroup:
			args[n] = big.NewInt(groupID)
		case RoleRecipient:
			args[n] = recipient
		}
	}
	data, err := i.abi.Pack(i.Name, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s calldata: %w", i.Name, err)
	}
	return data, nil
}
