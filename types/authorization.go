package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentAuthorization is the structured payload a payer signs to let a
// relayer submit a payment on their behalf. Every field defends against a
// specific replay vector: Nonce against same-payer replay, ChainID against
// cross-network replay, and the gateway identity bound into the signing
// domain against cross-deployment replay.
type PaymentAuthorization struct {
	Payer  common.Address `json:"payer"`
	Module ModuleID       `json:"module"`
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
	Nonce  uint64         `json:"nonce"`
	// Expiry is a unix timestamp in seconds; zero means no expiry. A payment
	// submitted after Expiry fails without consuming the nonce.
	Expiry  int64    `json:"expiry,omitempty"`
	ChainID *big.Int `json:"chainId"`
}

// Validate checks structural completeness of the authorization payload.
func (a *PaymentAuthorization) Validate() error {
	if a.Payer == (common.Address{}) {
		return fmt.Errorf("authorization payer is required")
	}
	if a.Module.IsZero() {
		return fmt.Errorf("authorization module is required")
	}
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return fmt.Errorf("authorization amount must be positive")
	}
	if a.ChainID == nil || a.ChainID.Sign() <= 0 {
		return fmt.Errorf("authorization chainId is required")
	}
	return nil
}

// SignedAuthorization pairs an authorization payload with the payer's 65-byte
// secp256k1 signature (r || s || v) over its typed digest.
type SignedAuthorization struct {
	Authorization PaymentAuthorization `json:"authorization"`
	Signature     []byte               `json:"signature"`
}

// SignatureLength is the expected r||s||v signature size.
const SignatureLength = 65

// Validate checks the payload and the signature envelope.
func (s *SignedAuthorization) Validate() error {
	if err := s.Authorization.Validate(); err != nil {
		return err
	}
	if len(s.Signature) != SignatureLength {
		return fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(s.Signature))
	}
	return nil
}
