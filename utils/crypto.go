// Package utils carries the small key, address and amount helpers shared by
// examples and tests.
package utils

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKeyFromHex parses a secp256k1 private key from a hex string, with
// or without the 0x prefix.
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	return crypto.HexToECDSA(hexKey)
}

// AddressFromPrivateKey derives the account address of a private key.
func AddressFromPrivateKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// ValidateAddress reports whether s is a well-formed hex address.
func ValidateAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress returns the checksummed form of an address string, or ""
// when the input is not an address.
func NormalizeAddress(s string) string {
	if !common.IsHexAddress(s) {
		return ""
	}
	return common.HexToAddress(s).Hex()
}
