package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABIFile reads a contract ABI from disk. Both raw ABI arrays and
// Hardhat/Foundry artifacts with a top-level "abi" key are accepted.
func LoadABIFile(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi file: %w", err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return abi.ABI{}, fmt.Errorf("parse abi artifact %s: %w", path, err)
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, fmt.Errorf("no abi found in artifact %s", path)
		}
		trimmed = string(artifact.ABI)
	}

	parsed, err := abi.JSON(strings.NewReader(trimmed))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}

// explorerResponse is the etherscan-style getabi envelope.
type explorerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// FetchABI retrieves a verified contract's ABI from a block explorer API.
func FetchABI(ctx context.Context, client *http.Client, apiURL, address, apiKey string) (abi.ABI, error) {
	if client == nil {
		client = http.DefaultClient
	}

	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getabi")
	params.Set("address", address)
	params.Set("apikey", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return abi.ABI{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("fetch abi from explorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return abi.ABI{}, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var envelope explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return abi.ABI{}, fmt.Errorf("decode explorer response: %w", err)
	}
	if envelope.Status != "1" || envelope.Result == "" {
		return abi.ABI{}, fmt.Errorf("explorer api error: %s", envelope.Result)
	}

	parsed, err := abi.JSON(strings.NewReader(envelope.Result))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi from explorer: %w", err)
	}
	return parsed, nil
}

// ResolveABI loads the ABI from a local file when a path is set, falling
// back to the explorer API.
func ResolveABI(ctx context.Context, abiPath, explorerAPIURL, address, apiKey string) (abi.ABI, error) {
	if abiPath != "" {
		parsed, err := LoadABIFile(abiPath)
		if err == nil {
			return parsed, nil
		}
		if apiKey == "" {
			return abi.ABI{}, err
		}
	}
	if apiKey == "" {
		return abi.ABI{}, fmt.Errorf("no abi source: provide contract.abi_path or contract.explorer_api_key")
	}
	if explorerAPIURL == "" {
		return abi.ABI{}, fmt.Errorf("no block explorer configured for this network")
	}
	return FetchABI(ctx, nil, explorerAPIURL, address, apiKey)
}
