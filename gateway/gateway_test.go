package gateway_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evmfactory/paygate/gateway"
	"github.com/evmfactory/paygate/ledger"
	"github.com/evmfactory/paygate/orchestrator"
	"github.com/evmfactory/paygate/registry"
	"github.com/evmfactory/paygate/sigauth"
	"github.com/evmfactory/paygate/types"
)

var (
	admin        = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	moduleCaller = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	recipient    = common.HexToAddress("0x00000000000000000000000000000000000000D1")
	payer        = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	token        = common.HexToAddress("0x0000000000000000000000000000000000000011")

	contest = types.ModuleIDFromString("Contest")
)

type allowAdmin struct{}

func (allowAdmin) HasRole(role common.Hash, account common.Address) bool {
	return role == types.RoleAdmin && account == admin
}

type fixture struct {
	gw     *gateway.Gateway
	ledger *ledger.Ledger
	reg    *registry.ProcessorRegistry
	orch   *orchestrator.Orchestrator
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: ledger.New(),
		reg:    registry.New(),
		now:    time.Unix(1_700_000_000, 0),
	}
	f.orch = orchestrator.New(f.reg, allowAdmin{}, nil)
	cfg := types.GatewayConfig{
		ChainID:           "1337",
		GatewayAddress:    "0x0000000000000000000000000000000000000001",
		FeeHoldingAddress: "0x0000000000000000000000000000000000000002",
		DomainName:        "Paygate",
		DomainVersion:     "1",
	}
	require.NoError(t, cfg.Validate())
	f.gw = gateway.New(cfg, f.orch, f.ledger, allowAdmin{}, nil, nil, func() time.Time { return f.now })
	require.NoError(t, f.gw.SetModuleAuthorization(admin, contest, moduleCaller, recipient, true))
	return f
}

func nativeRequest(amount int64) *types.PaymentRequest {
	return &types.PaymentRequest{
		Module: contest,
		Token:  types.NativeToken,
		Payer:  payer,
		Amount: big.NewInt(amount),
		Caller: moduleCaller,
		Value:  big.NewInt(amount),
	}
}

func TestProcessPayment_Settles(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(types.NativeToken, payer, big.NewInt(100))

	rec, err := f.gw.ProcessPayment(context.Background(), nativeRequest(100))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSettled, rec.Status)
	assert.Equal(t, big.NewInt(100), rec.Gross)
	assert.Equal(t, big.NewInt(100), rec.Net)
	assert.Equal(t, big.NewInt(100), f.ledger.BalanceOf(types.NativeToken, recipient))

	stored, err := f.gw.PaymentRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
}

func TestProcessPayment_TokenPullUsesAllowance(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(token, payer, big.NewInt(100))
	f.ledger.Approve(token, payer, f.gw.Address(), big.NewInt(100))

	req := &types.PaymentRequest{
		Module: contest,
		Token:  token,
		Payer:  payer,
		Amount: big.NewInt(60),
		Caller: moduleCaller,
	}
	_, err := f.gw.ProcessPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(60), f.ledger.BalanceOf(token, recipient))
	assert.Equal(t, big.NewInt(40), f.ledger.Allowance(token, payer, f.gw.Address()))
}

func TestProcessPayment_SettlementFailureUnwinds(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(token, payer, big.NewInt(100))
	// No allowance granted: the pull inside settlement must fail.

	req := &types.PaymentRequest{
		Module: contest,
		Token:  token,
		Payer:  payer,
		Amount: big.NewInt(60),
		Caller: moduleCaller,
	}
	_, err := f.gw.ProcessPayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientAllowance, types.CodeOf(err))
	assert.Equal(t, big.NewInt(100), f.ledger.BalanceOf(token, payer))
	assert.Equal(t, big.NewInt(0), f.ledger.BalanceOf(token, recipient))
}

func TestProcessPayment_NativeValueRules(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(types.NativeToken, payer, big.NewInt(1000))

	under := nativeRequest(100)
	under.Value = big.NewInt(99)
	_, err := f.gw.ProcessPayment(context.Background(), under)
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientBalance, types.CodeOf(err))

	over := nativeRequest(100)
	over.Value = big.NewInt(101)
	_, err = f.gw.ProcessPayment(context.Background(), over)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidAmount, types.CodeOf(err))

	tokenWithValue := &types.PaymentRequest{
		Module: contest,
		Token:  token,
		Payer:  payer,
		Amount: big.NewInt(100),
		Caller: moduleCaller,
		Value:  big.NewInt(1),
	}
	_, err = f.gw.ProcessPayment(context.Background(), tokenWithValue)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidAmount, types.CodeOf(err))
}

func TestProcessPayment_ZeroAmount(t *testing.T) {
	f := newFixture(t)

	req := nativeRequest(0)
	req.Value = big.NewInt(0)
	_, err := f.gw.ProcessPayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidAmount, types.CodeOf(err))
}

func TestProcessPayment_UnauthorizedCaller(t *testing.T) {
	f := newFixture(t)

	req := nativeRequest(10)
	req.Caller = common.HexToAddress("0xdead")
	_, err := f.gw.ProcessPayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrForbidden, types.CodeOf(err))

	// Revoking the caller closes the door again.
	require.NoError(t, f.gw.SetModuleAuthorization(admin, contest, moduleCaller, recipient, false))
	_, err = f.gw.ProcessPayment(context.Background(), nativeRequest(10))
	require.Error(t, err)
	assert.Equal(t, types.ErrForbidden, types.CodeOf(err))
}

func TestSetModuleAuthorization_Rejections(t *testing.T) {
	f := newFixture(t)

	err := f.gw.SetModuleAuthorization(payer, contest, moduleCaller, recipient, true)
	require.Error(t, err)
	assert.Equal(t, types.ErrForbidden, types.CodeOf(err))

	err = f.gw.SetModuleAuthorization(admin, types.ModuleID{}, moduleCaller, recipient, true)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.CodeOf(err))

	err = f.gw.SetModuleAuthorization(admin, contest, moduleCaller, common.Address{}, true)
	require.Error(t, err)
	assert.Equal(t, types.ErrZeroAddress, types.CodeOf(err))
}

// reentrantProcessor calls back into the gateway for the same payer.
type reentrantProcessor struct {
	gw  *gateway.Gateway
	err error
}

func (p *reentrantProcessor) Name() string { return "reentrant" }

func (p *reentrantProcessor) Process(ctx context.Context, req *types.ProcessRequest) (*types.ProcessResult, error) {
	_, p.err = p.gw.ProcessPayment(ctx, &types.PaymentRequest{
		Module: req.Module,
		Token:  req.Token,
		Payer:  req.Payer,
		Amount: big.NewInt(1),
		Caller: moduleCaller,
		Value:  big.NewInt(1),
	})
	if p.err != nil {
		return nil, p.err
	}
	return &types.ProcessResult{Amount: req.Amount}, nil
}

func TestProcessPayment_ReentrancyGuard(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(types.NativeToken, payer, big.NewInt(100))

	proc := &reentrantProcessor{gw: f.gw}
	require.NoError(t, f.reg.Register(proc, 0))
	require.NoError(t, f.orch.ConfigureProcessor(admin, contest, "reentrant", true, nil))

	_, err := f.gw.ProcessPayment(context.Background(), nativeRequest(100))
	require.Error(t, err)
	assert.Equal(t, types.ErrReentrantCall, types.CodeOf(err))
	assert.Equal(t, types.ErrReentrantCall, types.CodeOf(proc.err))

	// The outer payment aborts with nothing settled.
	assert.Equal(t, big.NewInt(100), f.ledger.BalanceOf(types.NativeToken, payer))
	assert.Equal(t, big.NewInt(0), f.ledger.BalanceOf(types.NativeToken, recipient))
}

func signedRequest(t *testing.T, f *fixture, nonce uint64, expiry int64) (*types.PaymentRequest, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	a := &types.PaymentAuthorization{
		Payer:   signer,
		Module:  contest,
		Token:   types.NativeToken,
		Amount:  big.NewInt(50),
		Nonce:   nonce,
		Expiry:  expiry,
		ChainID: big.NewInt(1337),
	}
	digest, err := sigauth.AuthorizationDigest(f.gw.Domain(), a)
	require.NoError(t, err)
	sig, err := sigauth.Sign(digest, key)
	require.NoError(t, err)

	return &types.PaymentRequest{
		Module:        contest,
		Token:         types.NativeToken,
		Payer:         signer,
		Amount:        big.NewInt(50),
		Caller:        moduleCaller,
		Value:         big.NewInt(50),
		Authorization: &types.SignedAuthorization{Authorization: *a, Signature: sig},
	}, signer
}

func TestProcessPayment_DelegatedAdvancesNonce(t *testing.T) {
	f := newFixture(t)
	req, signer := signedRequest(t, f, 0, 0)
	f.ledger.Mint(types.NativeToken, signer, big.NewInt(50))

	_, err := f.gw.ProcessPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.gw.Nonces(signer))
}

func TestProcessPayment_StaleNonce(t *testing.T) {
	f := newFixture(t)
	req, signer := signedRequest(t, f, 1, 0)
	f.ledger.Mint(types.NativeToken, signer, big.NewInt(50))

	_, err := f.gw.ProcessPayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidSignature, types.CodeOf(err))
	assert.Equal(t, uint64(0), f.gw.Nonces(signer))
	assert.Equal(t, big.NewInt(50), f.ledger.BalanceOf(types.NativeToken, signer))
}

func TestProcessPayment_ExpiredDoesNotConsumeNonce(t *testing.T) {
	f := newFixture(t)
	expiry := f.now.Unix() - 1
	req, signer := signedRequest(t, f, 0, expiry)
	f.ledger.Mint(types.NativeToken, signer, big.NewInt(50))

	_, err := f.gw.ProcessPayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrExpired, types.CodeOf(err))
	assert.Equal(t, uint64(0), f.gw.Nonces(signer))

	// The same authorization without the lapsed clock still works, proving
	// expiry rejected it before anything was consumed.
	f.now = time.Unix(expiry-10, 0)
	_, err = f.gw.ProcessPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.gw.Nonces(signer))
}

func TestProcessPayment_TamperedSignature(t *testing.T) {
	f := newFixture(t)
	req, signer := signedRequest(t, f, 0, 0)
	f.ledger.Mint(types.NativeToken, signer, big.NewInt(50))

	// Mutating the authorized amount invalidates the signature.
	req.Authorization.Authorization.Amount = big.NewInt(49)
	req.Amount = big.NewInt(49)
	req.Value = big.NewInt(49)

	_, err := f.gw.ProcessPayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidSignature, types.CodeOf(err))
}

func TestUnknownPaymentRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.gw.PaymentRecord(common.HexToHash("0x01"))
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownPayment, types.CodeOf(err))
	assert.Equal(t, types.StatusNone, f.gw.GetPaymentStatus(common.HexToHash("0x01")))
}
