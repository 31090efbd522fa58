package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// GatewayConfig identifies one gateway deployment for signing purposes. The
// chain id and gateway address are folded into every authorization digest.
type GatewayConfig struct {
	// ChainID is the decimal chain/network identifier bound into signatures.
	ChainID string `json:"chainId" validate:"required,number"`

	// GatewayAddress is the verifying-context identity of this deployment.
	GatewayAddress string `json:"gatewayAddress" validate:"required,eth_addr"`

	// FeeHoldingAddress is the account collected fees accumulate in.
	FeeHoldingAddress string `json:"feeHoldingAddress" validate:"required,eth_addr"`

	// DomainName and DomainVersion name the signing domain. Rotating the
	// version invalidates all outstanding authorizations.
	DomainName    string `json:"domainName" validate:"required"`
	DomainVersion string `json:"domainVersion" validate:"required"`

	LogLevel      string        `json:"logLevel,omitempty"`
	EnableMetrics bool          `json:"enableMetrics,omitempty"`
	CallTimeout   time.Duration `json:"callTimeout,omitempty"`
}

// Validate checks the config against its struct tags and parses ChainID.
func (c *GatewayConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}
	if _, ok := new(big.Int).SetString(c.ChainID, 10); !ok {
		return fmt.Errorf("invalid gateway config: chainId %q is not a decimal integer", c.ChainID)
	}
	return nil
}

// ChainIDInt returns the parsed chain identifier. Call Validate first.
func (c *GatewayConfig) ChainIDInt() *big.Int {
	n, _ := new(big.Int).SetString(c.ChainID, 10)
	return n
}
