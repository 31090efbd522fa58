// Package sigauth builds and verifies the typed digests behind delegated
// payment authorizations. The digest binds the payer, module, token, amount,
// nonce and expiry to a signing domain carrying the chain identifier and the
// verifying gateway's identity, so a signature cannot be replayed against
// another payer state, another network or another deployment.
package sigauth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evmfactory/paygate/types"
)

var (
	// domainTypeHash follows the EIP-712 domain layout; field order matters.
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	authorizationTypeHash = crypto.Keccak256Hash([]byte(
		"PaymentAuthorization(address payer,bytes32 module,address token,uint256 amount,uint256 nonce,uint256 expiry)"))
)

// Domain identifies one gateway deployment for signing purposes.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Separator hashes the domain per the EIP-712 encoding:
// keccak256(typeHash ‖ keccak256(name) ‖ keccak256(version) ‖ chainId ‖ contract).
func (d Domain) Separator() (common.Hash, error) {
	if d.Name == "" || d.Version == "" {
		return common.Hash{}, errors.New("incomplete signing domain")
	}
	if d.ChainID == nil || d.ChainID.Sign() <= 0 {
		return common.Hash{}, errors.New("signing domain requires a positive chain id")
	}
	return keccakConcat(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		padLeft32(d.ChainID),
		addressTo32(d.VerifyingContract),
	), nil
}

// HashAuthorization computes the struct hash of an authorization payload.
func HashAuthorization(a *types.PaymentAuthorization) common.Hash {
	return keccakConcat(
		authorizationTypeHash.Bytes(),
		addressTo32(a.Payer),
		a.Module[:],
		addressTo32(a.Token),
		padLeft32(a.Amount),
		padLeft32(new(big.Int).SetUint64(a.Nonce)),
		padLeft32(big.NewInt(a.Expiry)),
	)
}

// Digest returns the final signable hash: keccak256("\x19\x01" ‖ domain ‖ struct).
func Digest(domainSeparator, structHash common.Hash) common.Hash {
	prefix := []byte{0x19, 0x01}
	return crypto.Keccak256Hash(append(append(prefix, domainSeparator.Bytes()...), structHash.Bytes()...))
}

// AuthorizationDigest is the high-level helper combining domain and payload.
func AuthorizationDigest(d Domain, a *types.PaymentAuthorization) (common.Hash, error) {
	sep, err := d.Separator()
	if err != nil {
		return common.Hash{}, err
	}
	return Digest(sep, HashAuthorization(a)), nil
}

// Sign produces a 65-byte r||s||v signature over the digest.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig, nil
}

// RecoverSigner recovers the address that signed the digest. V may be 0/1 or
// 27/28; both forms are accepted.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != types.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", types.SignatureLength, len(sig))
	}

	// copy to avoid mutating the caller's slice
	s := make([]byte, types.SignatureLength)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func keccakConcat(parts ...[]byte) common.Hash {
	var joined []byte
	for _, p := range parts {
		joined = append(joined, p...)
	}
	return crypto.Keccak256Hash(joined)
}

// padLeft32 right-aligns a big integer into a 32-byte word.
func padLeft32(i *big.Int) []byte {
	b := i.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// addressTo32 left-pads an address into a 32-byte word.
func addressTo32(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a.Bytes())
	return out
}
