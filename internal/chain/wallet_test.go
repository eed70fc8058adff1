package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewWalletDerivesAddress(t *testing.T) {
	wallet, err := NewWallet(testKey)
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), wallet.Address())

	prefixed, err := NewWallet("0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), prefixed.Address())
}

func TestNewWalletRejectsInvalidKey(t *testing.T) {
	_, err := NewWallet("not-a-key")
	assert.ErrorContains(t, err, "parse private key")
}

func TestMatchesConfigured(t *testing.T) {
	wallet, err := NewWallet(testKey)
	require.NoError(t, err)

	assert.True(t, wallet.MatchesConfigured(""))
	assert.True(t, wallet.MatchesConfigured(wallet.Address().Hex()))
	assert.True(t, wallet.MatchesConfigured(strings.ToLower(wallet.Address().Hex())))
	assert.False(t, wallet.MatchesConfigured("0x0000000000000000000000000000000000000001"))
}

func TestSignTx(t *testing.T) {
	wallet, err := NewWallet(testKey)
	require.NoError(t, err)

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(100),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(0),
	})

	chainID := big.NewInt(421614)
	signed, err := wallet.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), sender)
}
