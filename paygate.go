// Package paygate wires application modules to one shared, policy-driven
// payment pipeline: a gateway entry point, an orchestrator composing a
// per-module chain of pluggable processors, a processor registry, and the
// fee and nonce bookkeeping making delegated payments replay-safe.
package paygate

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/evmfactory/paygate/fees"
	"github.com/evmfactory/paygate/gateway"
	"github.com/evmfactory/paygate/ledger"
	"github.com/evmfactory/paygate/logger"
	"github.com/evmfactory/paygate/metrics"
	"github.com/evmfactory/paygate/orchestrator"
	"github.com/evmfactory/paygate/processors"
	"github.com/evmfactory/paygate/registry"
	"github.com/evmfactory/paygate/sigauth"
	"github.com/evmfactory/paygate/types"
	"github.com/evmfactory/paygate/whitelist"
)

// Paygate is the assembled pipeline: ledger, registry, fee manager,
// orchestrator and gateway, with the built-in processors installed.
type Paygate struct {
	cfg *types.GatewayConfig

	ledger    *ledger.Ledger
	registry  *registry.ProcessorRegistry
	fees      *fees.Manager
	orch      *orchestrator.Orchestrator
	gateway   *gateway.Gateway
	whitelist *whitelist.TokenWhitelist
	auth      types.RoleAuthority

	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// Built-in processor names and their priority buckets. Bucket order is
// execution order: filtering first, then discounts, then fees, so a
// percentage fee applies to the discounted remainder.
const (
	ProcessorTokenFilter = "token-filter"
	ProcessorDiscount    = "discount"
	ProcessorFee         = "fee"

	BucketFilters   uint8 = 0
	BucketDiscounts uint8 = 1
	BucketFees      uint8 = 2
)

// New assembles a pipeline for one gateway deployment. The role authority is
// required; the service registry may be nil when no module wires per-module
// services.
func New(cfg *types.GatewayConfig, auth types.RoleAuthority, services types.ServiceRegistry, opts ...Option) (*Paygate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Paygate{
		cfg:     cfg,
		auth:    auth,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.ledger = ledger.New()
	p.registry = registry.New()
	p.fees = fees.NewManager(p.ledger, auth, common.HexToAddress(cfg.FeeHoldingAddress))
	p.orch = orchestrator.New(p.registry, auth, p.log)
	p.gateway = gateway.New(*cfg, p.orch, p.ledger, auth, p.log, p.metrics, p.now)
	p.whitelist = whitelist.New(auth)

	if err := p.registry.Register(processors.NewTokenFilterProcessor(services, p.whitelist), BucketFilters); err != nil {
		return nil, err
	}
	if err := p.registry.Register(processors.NewDiscountProcessor(), BucketDiscounts); err != nil {
		return nil, err
	}
	if err := p.registry.Register(processors.NewFeeProcessor(p.fees), BucketFees); err != nil {
		return nil, err
	}
	return p, nil
}

// ProcessPayment is the pipeline entry point consumed by application
// modules. It returns the minted settlement record; the net amount is
// record.Net.
func (p *Paygate) ProcessPayment(ctx context.Context, req *types.PaymentRequest) (*types.PaymentRecord, error) {
	if p.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()
	}
	return p.gateway.ProcessPayment(ctx, req)
}

// GetPaymentStatus reports the status of a payment id.
func (p *Paygate) GetPaymentStatus(id common.Hash) types.PaymentStatus {
	return p.gateway.GetPaymentStatus(id)
}

// Nonces returns a payer's next expected authorization nonce.
func (p *Paygate) Nonces(payer common.Address) uint64 {
	return p.gateway.Nonces(payer)
}

// SetModuleAuthorization manages which contracts may request payments for a
// module and where net amounts land. Admin only.
func (p *Paygate) SetModuleAuthorization(caller common.Address, module types.ModuleID, moduleCaller, recipient common.Address, allowed bool) error {
	return p.gateway.SetModuleAuthorization(caller, module, moduleCaller, recipient, allowed)
}

// ConfigureProcessor upserts a module's configuration of a named processor.
// Admin only.
func (p *Paygate) ConfigureProcessor(caller common.Address, module types.ModuleID, name string, enabled bool, configBytes []byte) error {
	return p.orch.ConfigureProcessor(caller, module, name, enabled, configBytes)
}

// RegisterProcessor installs an additional processor. Admin only; the
// built-ins are installed by New.
func (p *Paygate) RegisterProcessor(caller common.Address, proc types.Processor, bucket uint8) error {
	if !p.auth.HasRole(types.RoleAdmin, caller) {
		return types.NewError(types.ErrForbidden, "caller lacks admin capability")
	}
	return p.registry.Register(proc, bucket)
}

// SetPercentFee sets the percentage fee for (module, token).
func (p *Paygate) SetPercentFee(caller common.Address, module types.ModuleID, token common.Address, bps uint16) error {
	return p.fees.SetPercentFee(caller, module, token, bps)
}

// SetFixedFee sets the fixed fee for (module, token).
func (p *Paygate) SetFixedFee(caller common.Address, module types.ModuleID, token common.Address, amount *big.Int) error {
	return p.fees.SetFixedFee(caller, module, token, amount)
}

// SignAuthorization signs a delegated payment authorization against this
// deployment's domain. Convenience for relayer clients and tests.
func (p *Paygate) SignAuthorization(key *ecdsa.PrivateKey, a *types.PaymentAuthorization) (*types.SignedAuthorization, error) {
	digest, err := sigauth.AuthorizationDigest(p.gateway.Domain(), a)
	if err != nil {
		return nil, err
	}
	sig, err := sigauth.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	return &types.SignedAuthorization{Authorization: *a, Signature: sig}, nil
}

// Ledger exposes the account store for funding and balance inspection.
func (p *Paygate) Ledger() *ledger.Ledger { return p.ledger }

// FeeManager exposes the standalone fee surface.
func (p *Paygate) FeeManager() *fees.Manager { return p.fees }

// Registry exposes the processor catalog.
func (p *Paygate) Registry() *registry.ProcessorRegistry { return p.registry }

// Gateway exposes the underlying gateway.
func (p *Paygate) Gateway() *gateway.Gateway { return p.gateway }

// Whitelist exposes the default token allow-list used by the token filter.
func (p *Paygate) Whitelist() *whitelist.TokenWhitelist { return p.whitelist }

// Version information
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)

// DecimalFromString helper function
func DecimalFromString(s string) *decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return &d
}
