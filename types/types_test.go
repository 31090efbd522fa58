package types_test

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evmfactory/paygate/types"
)

func TestModuleID(t *testing.T) {
	id := types.ModuleIDFromString("Marketplace")
	assert.Equal(t, "Marketplace", id.String())
	assert.False(t, id.IsZero())
	assert.True(t, types.ModuleID{}.IsZero())

	// Names beyond 32 bytes truncate.
	long := types.ModuleIDFromString("0123456789012345678901234567890123456789")
	assert.Equal(t, "01234567890123456789012345678901", long.String())
}

func TestIsNativeToken(t *testing.T) {
	assert.True(t, types.IsNativeToken(common.Address{}))
	assert.False(t, types.IsNativeToken(common.HexToAddress("0x11")))
}

func TestCodeOf(t *testing.T) {
	err := types.NewError(types.ErrExpired, "authorization expired")
	assert.Equal(t, types.ErrExpired, types.CodeOf(err))

	// Wrapping must not hide the code.
	wrapped := fmt.Errorf("processing payment: %w", err)
	assert.Equal(t, types.ErrExpired, types.CodeOf(wrapped))

	assert.Equal(t, "", types.CodeOf(fmt.Errorf("plain error")))
	assert.Equal(t, "", types.CodeOf(nil))
}

func TestPaymentAuthorization_Validate(t *testing.T) {
	valid := func() *types.PaymentAuthorization {
		return &types.PaymentAuthorization{
			Payer:   common.HexToAddress("0xF1"),
			Module:  types.ModuleIDFromString("Shop"),
			Token:   common.HexToAddress("0x11"),
			Amount:  big.NewInt(1),
			ChainID: big.NewInt(1),
		}
	}
	require.NoError(t, valid().Validate())

	a := valid()
	a.Payer = common.Address{}
	require.Error(t, a.Validate())

	a = valid()
	a.Module = types.ModuleID{}
	require.Error(t, a.Validate())

	a = valid()
	a.Amount = big.NewInt(0)
	require.Error(t, a.Validate())

	a = valid()
	a.ChainID = nil
	require.Error(t, a.Validate())
}

func TestSignedAuthorization_Validate(t *testing.T) {
	signed := types.SignedAuthorization{
		Authorization: types.PaymentAuthorization{
			Payer:   common.HexToAddress("0xF1"),
			Module:  types.ModuleIDFromString("Shop"),
			Amount:  big.NewInt(1),
			ChainID: big.NewInt(1),
		},
		Signature: make([]byte, types.SignatureLength),
	}
	require.NoError(t, signed.Validate())

	signed.Signature = make([]byte, 64)
	require.Error(t, signed.Validate())
}

func TestGatewayConfig_Validate(t *testing.T) {
	valid := func() *types.GatewayConfig {
		return &types.GatewayConfig{
			ChainID:           "1337",
			GatewayAddress:    "0x0000000000000000000000000000000000000001",
			FeeHoldingAddress: "0x0000000000000000000000000000000000000002",
			DomainName:        "Paygate",
			DomainVersion:     "1",
		}
	}
	require.NoError(t, valid().Validate())
	assert.Equal(t, big.NewInt(1337), valid().ChainIDInt())

	c := valid()
	c.ChainID = "not-a-number"
	require.Error(t, c.Validate())

	c = valid()
	c.GatewayAddress = "nope"
	require.Error(t, c.Validate())

	c = valid()
	c.DomainName = ""
	require.Error(t, c.Validate())
}
