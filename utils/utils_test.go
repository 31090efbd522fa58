package utils_test

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evmfactory/paygate/utils"
)

func TestParseAmount(t *testing.T) {
	dec, err := utils.ParseAmount("12.50")
	require.NoError(t, err)
	assert.True(t, dec.Equal(decimal.RequireFromString("12.5")))

	for _, bad := range []string{"", "abc", "-1"} {
		_, err := utils.ParseAmount(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func TestAtomicConversion(t *testing.T) {
	amount := decimal.RequireFromString("1.5")
	atomic := utils.ToAtomic(amount, 6)
	assert.Equal(t, big.NewInt(1_500_000), atomic)

	back := utils.FromAtomic(atomic, 6)
	assert.True(t, back.Equal(amount))

	// Excess precision truncates rather than rounds.
	assert.Equal(t, big.NewInt(1), utils.ToAtomic(decimal.RequireFromString("0.0000019"), 6))
}

func TestParseBigInt(t *testing.T) {
	n, err := utils.ParseBigInt("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", n.String())

	for _, bad := range []string{"", "1.5", "xyz"} {
		_, err := utils.ParseBigInt(bad)
		require.Error(t, err)
	}
}

func TestKeyHelpers(t *testing.T) {
	key, err := utils.PrivateKeyFromHex("0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	require.NoError(t, err)
	addr := utils.AddressFromPrivateKey(key)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", addr.Hex())
}

func TestAddressHelpers(t *testing.T) {
	assert.True(t, utils.ValidateAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"))
	assert.False(t, utils.ValidateAddress("0x123"))

	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		utils.NormalizeAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8"))
	assert.Equal(t, "", utils.NormalizeAddress("nope"))
}
