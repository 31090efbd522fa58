// Package processors ships the built-in payment middleware: fee collection,
// discount application and token filtering. Each processor interprets its
// own JSON configuration blob; the orchestrator never looks inside it.
package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/evmfactory/paygate/fees"
	"github.com/evmfactory/paygate/types"
)

var validate = validator.New()

// FeeConfig is the per-module configuration of the fee processor.
type FeeConfig struct {
	// Recipient overrides where the fee adjustment is paid. Defaults to the
	// fee manager's holding account.
	Recipient string `json:"recipient,omitempty" validate:"omitempty,eth_addr"`
}

// FeeProcessor charges the fee manager's (module, token) schedule against
// the remaining amount and reports it as a fee adjustment. The gateway
// settles the adjustment; no funds move here.
type FeeProcessor struct {
	manager *fees.Manager
}

// NewFeeProcessor wraps a fee manager as chain middleware.
func NewFeeProcessor(m *fees.Manager) *FeeProcessor {
	return &FeeProcessor{manager: m}
}

func (p *FeeProcessor) Name() string { return "fee" }

func (p *FeeProcessor) Process(_ context.Context, req *types.ProcessRequest) (*types.ProcessResult, error) {
	var cfg FeeConfig
	if err := decodeConfig(p.Name(), req.Config, &cfg); err != nil {
		return nil, err
	}

	fee, err := p.manager.Quote(req.Module, req.Token, req.Amount)
	if err != nil {
		return nil, err
	}
	if fee.Sign() == 0 {
		return &types.ProcessResult{Amount: req.Amount}, nil
	}

	recipient := p.manager.HoldingAccount()
	if cfg.Recipient != "" {
		recipient = common.HexToAddress(cfg.Recipient)
	}
	return &types.ProcessResult{
		Amount: new(big.Int).Sub(req.Amount, fee),
		Adjustments: []types.Adjustment{{
			Kind:      types.AdjustmentFee,
			Recipient: recipient,
			Amount:    fee,
		}},
	}, nil
}

// decodeConfig parses and validates a processor's JSON config blob. An empty
// blob leaves the target at its zero value.
func decodeConfig(name string, raw []byte, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &types.Error{
			Code:    types.ErrInvalidConfig,
			Message: fmt.Sprintf("processor %q config is not valid JSON: %v", name, err),
		}
	}
	if err := validate.Struct(target); err != nil {
		return &types.Error{
			Code:    types.ErrInvalidConfig,
			Message: fmt.Sprintf("processor %q config is invalid: %v", name, err),
		}
	}
	return nil
}
