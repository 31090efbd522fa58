// Package orchestrator composes the per-module processor chain. It owns the
// module/processor configuration surface; processor internals stay opaque to
// it, which is what lets new processor types ship without touching this
// package.
package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evmfactory/paygate/logger"
	"github.com/evmfactory/paygate/registry"
	"github.com/evmfactory/paygate/types"
)

type configKey struct {
	module types.ModuleID
	name   string
}

// Orchestrator resolves which processors run for a module and in what order.
// Execution order is registry order (priority bucket, then registration),
// never configuration call order.
type Orchestrator struct {
	mu       sync.RWMutex
	configs  map[configKey]*types.ModuleProcessorConfig
	registry *registry.ProcessorRegistry
	auth     types.RoleAuthority
	log      logger.Logger
}

// New creates an orchestrator over the given processor catalog.
func New(reg *registry.ProcessorRegistry, auth types.RoleAuthority, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Orchestrator{
		configs:  make(map[configKey]*types.ModuleProcessorConfig),
		registry: reg,
		auth:     auth,
		log:      log,
	}
}

// ConfigureProcessor enables or disables a named processor for a module and
// stores the opaque configuration blob the processor will receive. Admin
// only; the name must already exist in the registry.
func (o *Orchestrator) ConfigureProcessor(caller common.Address, module types.ModuleID, name string, enabled bool, configBytes []byte) error {
	if !o.auth.HasRole(types.RoleAdmin, caller) {
		return types.NewError(types.ErrForbidden, "caller lacks admin capability")
	}
	if module.IsZero() {
		return types.NewError(types.ErrInvalidConfig, "module id is required")
	}
	if _, err := o.registry.Lookup(name); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs[configKey{module, name}] = &types.ModuleProcessorConfig{
		Enabled:     enabled,
		ConfigBytes: append([]byte(nil), configBytes...),
	}
	return nil
}

// ModuleConfig returns the stored configuration of a named processor for a
// module, if any.
func (o *Orchestrator) ModuleConfig(module types.ModuleID, name string) (types.ModuleProcessorConfig, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	cfg, ok := o.configs[configKey{module, name}]
	if !ok {
		return types.ModuleProcessorConfig{}, false
	}
	return types.ModuleProcessorConfig{
		Enabled:     cfg.Enabled,
		ConfigBytes: append([]byte(nil), cfg.ConfigBytes...),
	}, true
}

// Outcome is the result of running a module's processor chain.
type Outcome struct {
	// Net is the amount surviving the chain, forwarded to the module.
	Net *big.Int
	// Adjustments are the side-payments claimed along the way, settled by
	// the gateway out of the gross amount.
	Adjustments []types.Adjustment
}

// TotalFees sums the fee-kind adjustments.
func (out *Outcome) TotalFees() *big.Int {
	total := big.NewInt(0)
	for _, a := range out.Adjustments {
		if a.Kind == types.AdjustmentFee {
			total.Add(total, a.Amount)
		}
	}
	return total
}

// Process runs the module's enabled processors over amount. Each processor
// sees the amount remaining after its predecessors, so percentage cuts
// compound rather than overlap. Any processor error aborts the whole
// payment.
func (o *Orchestrator) Process(ctx context.Context, module types.ModuleID, token, payer common.Address, amount *big.Int) (*Outcome, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, types.NewError(types.ErrInvalidAmount, "amount must be greater than zero")
	}

	remaining := new(big.Int).Set(amount)
	out := &Outcome{}

	for _, desc := range o.registry.Ordered() {
		cfg, ok := o.ModuleConfig(module, desc.Name)
		if !ok || !cfg.Enabled {
			continue
		}

		res, err := desc.Processor.Process(ctx, &types.ProcessRequest{
			Module: module,
			Token:  token,
			Payer:  payer,
			Amount: new(big.Int).Set(remaining),
			Config: cfg.ConfigBytes,
		})
		if err != nil {
			o.log.Debug("processor aborted payment", map[string]any{
				"module":    module.String(),
				"processor": desc.Name,
				"error":     err.Error(),
			})
			return nil, err
		}
		if err := checkResult(desc.Name, remaining, res); err != nil {
			return nil, err
		}

		out.Adjustments = append(out.Adjustments, res.Adjustments...)
		remaining = res.Amount
	}

	out.Net = remaining
	return out, nil
}

// checkResult enforces the per-processor conservation invariant: the amount
// a processor shaves off must be fully accounted for by its adjustments.
func checkResult(name string, before *big.Int, res *types.ProcessResult) error {
	if res == nil || res.Amount == nil {
		return invalidResult(name, "nil result amount")
	}
	if res.Amount.Sign() < 0 || res.Amount.Cmp(before) > 0 {
		return invalidResult(name, fmt.Sprintf("amount %s outside [0, %s]", res.Amount, before))
	}
	claimed := big.NewInt(0)
	for _, a := range res.Adjustments {
		if a.Amount == nil || a.Amount.Sign() <= 0 {
			return invalidResult(name, "adjustment amount must be positive")
		}
		claimed.Add(claimed, a.Amount)
	}
	delta := new(big.Int).Sub(before, res.Amount)
	if claimed.Cmp(delta) != 0 {
		return invalidResult(name, fmt.Sprintf("adjustments claim %s but amount shrank by %s", claimed, delta))
	}
	return nil
}

func invalidResult(name, detail string) error {
	return &types.Error{
		Code:    types.ErrInvalidConfig,
		Message: fmt.Sprintf("processor %q returned an inconsistent result: %s", name, detail),
	}
}
