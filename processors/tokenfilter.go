package processors

import (
	"context"
	"fmt"

	"github.com/evmfactory/paygate/types"
)

// TokenFilterConfig is the per-module configuration of the token filter.
type TokenFilterConfig struct {
	// AllowNative lets native-asset payments bypass the allow-list. The
	// native asset has no token contract to whitelist.
	AllowNative bool `json:"allowNative"`
}

// TokenFilterProcessor rejects payments in tokens the module's validator
// does not allow. The validator is resolved per module through the service
// registry; the default validator handles modules without one.
type TokenFilterProcessor struct {
	services types.ServiceRegistry
	fallback types.TokenValidator
}

// NewTokenFilterProcessor creates the token-filter middleware. Either
// argument may be nil; a module with no resolvable validator rejects every
// non-native token.
func NewTokenFilterProcessor(services types.ServiceRegistry, fallback types.TokenValidator) *TokenFilterProcessor {
	return &TokenFilterProcessor{services: services, fallback: fallback}
}

func (p *TokenFilterProcessor) Name() string { return "token-filter" }

func (p *TokenFilterProcessor) Process(_ context.Context, req *types.ProcessRequest) (*types.ProcessResult, error) {
	var cfg TokenFilterConfig
	if err := decodeConfig(p.Name(), req.Config, &cfg); err != nil {
		return nil, err
	}

	if types.IsNativeToken(req.Token) && cfg.AllowNative {
		return &types.ProcessResult{Amount: req.Amount}, nil
	}

	validator := p.fallback
	if p.services != nil {
		if svc, ok := p.services.ModuleService(req.Module, types.AliasTokenValidator); ok {
			if v, ok := svc.(types.TokenValidator); ok {
				validator = v
			}
		}
	}
	if validator == nil || !validator.IsAllowed(req.Token) {
		return nil, &types.Error{
			Code:    types.ErrNotAllowedToken,
			Message: fmt.Sprintf("token %s is not allowed for module %s", req.Token, req.Module),
		}
	}
	return &types.ProcessResult{Amount: req.Amount}, nil
}
