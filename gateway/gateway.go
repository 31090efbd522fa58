// Package gateway implements the single entry point external modules call
// to move value through the payment pipeline. It verifies caller
// authorization and delegated signatures, runs the orchestrator chain,
// settles all balance movements in one ledger transaction and mints the
// settlement record.
package gateway

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evmfactory/paygate/ledger"
	"github.com/evmfactory/paygate/logger"
	"github.com/evmfactory/paygate/metrics"
	"github.com/evmfactory/paygate/orchestrator"
	"github.com/evmfactory/paygate/sigauth"
	"github.com/evmfactory/paygate/types"
)

// moduleAuthorization is the per-module allow-list of calling contracts and
// the recipient net amounts are forwarded to.
type moduleAuthorization struct {
	callers   map[common.Address]bool
	recipient common.Address
}

// Gateway is the pipeline root. One instance per deployment; its identity
// (address + chain id) is folded into every authorization digest.
type Gateway struct {
	cfg     types.GatewayConfig
	address common.Address
	domain  sigauth.Domain

	orch   *orchestrator.Orchestrator
	ledger *ledger.Ledger
	auth   types.RoleAuthority

	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time

	mu       sync.Mutex
	modules  map[types.ModuleID]*moduleAuthorization
	nonces   map[common.Address]uint64
	records  map[common.Hash]*types.PaymentRecord
	sequence uint64

	// busy is the per-payer reentrancy guard: a nested call into
	// ProcessPayment for a payer already being settled fails fast instead of
	// double-spending.
	busy sync.Map
}

// New creates a gateway. The config must already be validated.
func New(cfg types.GatewayConfig, orch *orchestrator.Orchestrator, led *ledger.Ledger, auth types.RoleAuthority, log logger.Logger, rec metrics.Recorder, now func() time.Time) *Gateway {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if now == nil {
		now = time.Now
	}
	addr := common.HexToAddress(cfg.GatewayAddress)
	return &Gateway{
		cfg:     cfg,
		address: addr,
		domain: sigauth.Domain{
			Name:              cfg.DomainName,
			Version:           cfg.DomainVersion,
			ChainID:           cfg.ChainIDInt(),
			VerifyingContract: addr,
		},
		orch:    orch,
		ledger:  led,
		auth:    auth,
		log:     log,
		metrics: rec,
		now:     now,
		modules: make(map[types.ModuleID]*moduleAuthorization),
		nonces:  make(map[common.Address]uint64),
		records: make(map[common.Hash]*types.PaymentRecord),
	}
}

// Address is the gateway's verifying-context identity.
func (g *Gateway) Address() common.Address {
	return g.address
}

// Domain is the signing domain payers authorize against.
func (g *Gateway) Domain() sigauth.Domain {
	return g.domain
}

// SetModuleAuthorization grants or revokes a calling contract's right to
// request payments for a module, and pins the recipient net amounts are
// forwarded to. Admin only.
func (g *Gateway) SetModuleAuthorization(caller common.Address, module types.ModuleID, moduleCaller, recipient common.Address, allowed bool) error {
	if !g.auth.HasRole(types.RoleAdmin, caller) {
		return types.NewError(types.ErrForbidden, "caller lacks admin capability")
	}
	if module.IsZero() {
		return types.NewError(types.ErrInvalidConfig, "module id is required")
	}
	if allowed && recipient == (common.Address{}) {
		return types.NewError(types.ErrZeroAddress, "module recipient must not be zero")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	ma, ok := g.modules[module]
	if !ok {
		ma = &moduleAuthorization{callers: make(map[common.Address]bool)}
		g.modules[module] = ma
	}
	if allowed {
		ma.callers[moduleCaller] = true
		ma.recipient = recipient
	} else {
		delete(ma.callers, moduleCaller)
	}
	return nil
}

// Nonces returns the payer's next expected authorization nonce.
func (g *Gateway) Nonces(payer common.Address) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nonces[payer]
}

// GetPaymentStatus reports the status of a settled payment, or StatusNone
// for an unknown id.
func (g *Gateway) GetPaymentStatus(id common.Hash) types.PaymentStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.records[id]; ok {
		return rec.Status
	}
	return types.StatusNone
}

// PaymentRecord returns a copy of the settlement record for id.
func (g *Gateway) PaymentRecord(id common.Hash) (*types.PaymentRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[id]
	if !ok {
		return nil, &types.Error{
			Code:    types.ErrUnknownPayment,
			Message: fmt.Sprintf("no payment record for id %s", id),
		}
	}
	cp := *rec
	return &cp, nil
}

// ProcessPayment runs the full pipeline for one payment request and returns
// the minted settlement record. Any failure anywhere unwinds everything:
// balances, nonce and record.
func (g *Gateway) ProcessPayment(ctx context.Context, req *types.PaymentRequest) (*types.PaymentRecord, error) {
	start := g.now()

	// Reentrancy guard. Held for the whole call; a nested call for the same
	// payer fails fast.
	if _, loaded := g.busy.LoadOrStore(req.Payer, struct{}{}); loaded {
		return nil, types.NewError(types.ErrReentrantCall, "payment for this payer is already in flight")
	}
	defer g.busy.Delete(req.Payer)

	recipient, err := g.authorizeCaller(req)
	if err != nil {
		return nil, err
	}

	delegated, err := g.verifyAuthorization(req)
	if err != nil {
		return nil, err
	}

	if err := g.validateAmounts(req); err != nil {
		return nil, err
	}

	outcome, err := g.orch.Process(ctx, req.Module, req.Token, req.Payer, req.Amount)
	if err != nil {
		return nil, err
	}

	record, err := g.settle(req, recipient, outcome, delegated)
	if err != nil {
		return nil, err
	}

	g.metrics.IncCounter("payment_settled", map[string]string{"module": req.Module.String()})
	g.metrics.ObserveLatency("process_payment", g.now().Sub(start), map[string]string{"module": req.Module.String()})
	g.log.Info("payment settled", map[string]any{
		"id":     record.ID.Hex(),
		"module": req.Module.String(),
		"payer":  req.Payer.Hex(),
		"gross":  record.Gross.String(),
		"net":    record.Net.String(),
	})
	return record, nil
}

// authorizeCaller checks the immediate caller against the module allow-list
// and resolves the module's net recipient.
func (g *Gateway) authorizeCaller(req *types.PaymentRequest) (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ma, ok := g.modules[req.Module]
	if !ok || !ma.callers[req.Caller] {
		return common.Address{}, &types.Error{
			Code:    types.ErrForbidden,
			Message: fmt.Sprintf("caller %s is not authorized for module %s", req.Caller, req.Module),
		}
	}
	return ma.recipient, nil
}

// verifyAuthorization validates a delegated authorization if one is
// attached. The nonce is checked here but only advanced at settlement, so a
// failed call never consumes it, and never partially.
func (g *Gateway) verifyAuthorization(req *types.PaymentRequest) (bool, error) {
	if req.Authorization == nil {
		// Direct call: the caller asserts payer identity itself.
		return false, nil
	}

	signed := req.Authorization
	if err := signed.Validate(); err != nil {
		return false, &types.Error{
			Code:    types.ErrInvalidSignature,
			Message: fmt.Sprintf("malformed authorization: %v", err),
		}
	}

	a := &signed.Authorization
	if a.Payer != req.Payer || a.Module != req.Module || a.Token != req.Token ||
		req.Amount == nil || a.Amount.Cmp(req.Amount) != 0 {
		return false, types.NewError(types.ErrInvalidSignature, "authorization does not match payment request")
	}
	if a.ChainID.Cmp(g.domain.ChainID) != 0 {
		return false, types.NewError(types.ErrInvalidSignature, "authorization is bound to a different chain")
	}
	if a.Expiry > 0 && g.now().Unix() > a.Expiry {
		return false, types.NewError(types.ErrExpired, "authorization has expired")
	}
	if current := g.Nonces(a.Payer); a.Nonce != current {
		return false, &types.Error{
			Code:    types.ErrInvalidSignature,
			Message: fmt.Sprintf("authorization nonce %d does not match expected %d", a.Nonce, current),
		}
	}

	digest, err := sigauth.AuthorizationDigest(g.domain, a)
	if err != nil {
		return false, types.NewError(types.ErrInvalidSignature, err.Error())
	}
	signer, err := sigauth.RecoverSigner(digest, signed.Signature)
	if err != nil {
		return false, &types.Error{
			Code:    types.ErrInvalidSignature,
			Message: fmt.Sprintf("signature recovery failed: %v", err),
		}
	}
	if signer != a.Payer {
		return false, types.NewError(types.ErrInvalidSignature, "recovered signer does not match payer")
	}
	return true, nil
}

// validateAmounts enforces the amount and attached-value rules. For native
// payments the attached value must equal the amount exactly.
func (g *Gateway) validateAmounts(req *types.PaymentRequest) error {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return types.NewError(types.ErrInvalidAmount, "amount must be greater than zero")
	}
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if types.IsNativeToken(req.Token) {
		switch value.Cmp(req.Amount) {
		case -1:
			return types.NewError(types.ErrInsufficientBalance, "attached value is less than amount")
		case 1:
			return types.NewError(types.ErrInvalidAmount, "attached value exceeds amount")
		}
	} else if value.Sign() != 0 {
		return types.NewError(types.ErrInvalidAmount, "token payments must not attach native value")
	}
	return nil
}

// settle performs the bookkeeping and balance movements of one payment as a
// single atomic unit. Nonce advancement and the payment record are written
// before any transfer, and both are unwound if any transfer fails.
func (g *Gateway) settle(req *types.PaymentRequest, recipient common.Address, outcome *orchestrator.Outcome, delegated bool) (*types.PaymentRecord, error) {
	g.mu.Lock()
	seq := g.sequence
	g.sequence++

	idNonce := seq
	if delegated {
		idNonce = g.nonces[req.Payer]
		g.nonces[req.Payer]++
	}

	record := &types.PaymentRecord{
		ID:       derivePaymentID(req.Payer, req.Module, req.Token, idNonce, req.Amount, seq),
		Module:   req.Module,
		Token:    req.Token,
		Payer:    req.Payer,
		Gross:    new(big.Int).Set(req.Amount),
		Net:      new(big.Int).Set(outcome.Net),
		Status:   types.StatusSettled,
		Sequence: seq,
	}
	g.records[record.ID] = record
	g.mu.Unlock()

	unwind := func() {
		g.mu.Lock()
		delete(g.records, record.ID)
		if delegated {
			g.nonces[req.Payer]--
		}
		g.mu.Unlock()
	}

	tx := g.ledger.Begin()
	if err := g.moveFunds(tx, req, recipient, outcome); err != nil {
		tx.Rollback()
		unwind()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		unwind()
		return nil, err
	}
	return record, nil
}

// moveFunds stages the gross pull from the payer, the adjustment payouts and
// the net forward inside one ledger transaction.
func (g *Gateway) moveFunds(tx *ledger.Tx, req *types.PaymentRequest, recipient common.Address, outcome *orchestrator.Outcome) error {
	if types.IsNativeToken(req.Token) {
		// Native value rides along with the call, so the pull is a plain
		// balance move from the payer.
		if err := tx.Transfer(req.Token, req.Payer, g.address, req.Amount); err != nil {
			return err
		}
	} else {
		if err := tx.TransferFrom(req.Token, req.Payer, g.address, g.address, req.Amount); err != nil {
			return err
		}
	}

	for _, adj := range outcome.Adjustments {
		if err := tx.Transfer(req.Token, g.address, adj.Recipient, adj.Amount); err != nil {
			return err
		}
	}
	if outcome.Net.Sign() > 0 {
		if err := tx.Transfer(req.Token, g.address, recipient, outcome.Net); err != nil {
			return err
		}
	}
	return nil
}

// derivePaymentID mixes the payer, module, token, nonce-or-sequence, amount
// and the per-gateway call sequence, so ids stay distinct even for repeated
// calls inside one outer flow.
func derivePaymentID(payer common.Address, module types.ModuleID, token common.Address, nonce uint64, amount *big.Int, seq uint64) common.Hash {
	var nonceBuf, seqBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return crypto.Keccak256Hash(
		payer.Bytes(),
		module[:],
		token.Bytes(),
		nonceBuf[:],
		common.LeftPadBytes(amount.Bytes(), 32),
		seqBuf[:],
	)
}
