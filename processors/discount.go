package processors

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evmfactory/paygate/types"
)

// DiscountConfig is the per-module configuration of the discount processor.
// Bps is the discount in basis points; Absorber is the account the shaved
// amount is booked against so fund conservation still holds.
type DiscountConfig struct {
	Bps      uint16 `json:"bps" validate:"required,lte=10000"`
	Absorber string `json:"absorber" validate:"required,eth_addr"`
}

// DiscountProcessor reduces the remaining amount by a configured percentage
// and reports the reduction as a discount adjustment paid to the absorber.
type DiscountProcessor struct{}

// NewDiscountProcessor creates the discount middleware.
func NewDiscountProcessor() *DiscountProcessor {
	return &DiscountProcessor{}
}

func (p *DiscountProcessor) Name() string { return "discount" }

func (p *DiscountProcessor) Process(_ context.Context, req *types.ProcessRequest) (*types.ProcessResult, error) {
	var cfg DiscountConfig
	if len(req.Config) == 0 {
		// A discount processor without configuration has nothing to apply.
		return &types.ProcessResult{Amount: req.Amount}, nil
	}
	if err := decodeConfig(p.Name(), req.Config, &cfg); err != nil {
		return nil, err
	}

	discount := new(big.Int).Mul(req.Amount, big.NewInt(int64(cfg.Bps)))
	discount.Div(discount, big.NewInt(int64(types.MaxBps)))
	if discount.Sign() == 0 {
		return &types.ProcessResult{Amount: req.Amount}, nil
	}

	return &types.ProcessResult{
		Amount: new(big.Int).Sub(req.Amount, discount),
		Adjustments: []types.Adjustment{{
			Kind:      types.AdjustmentDiscount,
			Recipient: common.HexToAddress(cfg.Absorber),
			Amount:    discount,
		}},
	}, nil
}
