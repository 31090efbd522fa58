// Package types defines the shared data model of the paygate payment
// pipeline: module identifiers, payment records, processor configuration,
// fee schedules and the collaborator contracts consumed by the gateway.
package types

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ModuleID names a calling application module ("Contest", "Marketplace", ...).
// It is opaque to the pipeline and stable for the module's lifetime.
type ModuleID [32]byte

// ModuleIDFromString builds a ModuleID from an ASCII name. Names longer than
// 32 bytes are truncated; shorter names are zero padded on the right.
func ModuleIDFromString(s string) ModuleID {
	var id ModuleID
	copy(id[:], s)
	return id
}

func (m ModuleID) String() string {
	return strings.TrimRight(string(m[:]), "\x00")
}

// IsZero reports whether the identifier is unset.
func (m ModuleID) IsZero() bool {
	return m == ModuleID{}
}

// NativeToken is the sentinel token address denoting the ledger's base
// currency rather than a fungible-token contract balance.
var NativeToken = common.Address{}

// IsNativeToken reports whether token denotes the native asset.
func IsNativeToken(token common.Address) bool {
	return token == NativeToken
}

// PaymentStatus tracks the lifecycle of a payment record.
type PaymentStatus uint8

const (
	StatusNone PaymentStatus = iota
	StatusSettled
	// StatusFailed exists for diagnostic logging only. A failed call unwinds
	// atomically, so a failed record is never persisted.
	StatusFailed
)

func (s PaymentStatus) String() string {
	switch s {
	case StatusSettled:
		return "settled"
	case StatusFailed:
		return "failed"
	default:
		return "none"
	}
}

// PaymentRecord is the settlement record minted by the gateway. The ID is
// unique even across multiple gateway calls issued within one outer flow,
// because a per-gateway monotonic sequence is mixed into its derivation.
type PaymentRecord struct {
	ID       common.Hash    `json:"id"`
	Module   ModuleID       `json:"module"`
	Token    common.Address `json:"token"`
	Payer    common.Address `json:"payer"`
	Gross    *big.Int       `json:"gross"`
	Net      *big.Int       `json:"net"`
	Status   PaymentStatus  `json:"status"`
	Sequence uint64         `json:"sequence"`
}

// AdjustmentKind classifies a side-payment claimed by a processor.
type AdjustmentKind string

const (
	AdjustmentFee      AdjustmentKind = "fee"
	AdjustmentDiscount AdjustmentKind = "discount"
)

// Adjustment is a side-payment reported by a processor, settled by the
// gateway out of the gross amount.
type Adjustment struct {
	Kind      AdjustmentKind `json:"kind"`
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
}

// FeeSchedule holds the per-(module, token) fee parameters. The computed fee
// never exceeds the amount it is charged against.
type FeeSchedule struct {
	PercentBps  uint16   `json:"percentBps"`
	FixedAmount *big.Int `json:"fixedAmount"`
}

// MaxBps is 100% expressed in basis points.
const MaxBps uint16 = 10_000

// ModuleProcessorConfig is the orchestrator-owned configuration of one named
// processor for one module. ConfigBytes is opaque to the orchestrator and
// interpreted solely by the named processor.
type ModuleProcessorConfig struct {
	Enabled     bool   `json:"enabled"`
	ConfigBytes []byte `json:"configBytes,omitempty"`
}

// ProcessRequest is the per-processor view of a payment in flight. Amount is
// the remaining amount after earlier processors in the chain, so fees and
// discounts compound rather than overlap.
type ProcessRequest struct {
	Module ModuleID
	Token  common.Address
	Payer  common.Address
	Amount *big.Int
	Config []byte
}

// ProcessResult carries the amount surviving a processor together with any
// side-payments it claimed.
type ProcessResult struct {
	Amount      *big.Int
	Adjustments []Adjustment
}

// Processor is one unit of payment middleware. Implementations must be
// stateless per call: all per-module tuning arrives through req.Config.
// Returning an error aborts the whole payment with no partial effect.
type Processor interface {
	Name() string
	Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
}

// PaymentRequest is the gateway's entry-point payload. Caller identifies the
// immediate calling module contract; Value is the native value attached to
// the call and must equal Amount exactly when Token is the native asset.
// A nil Authorization means the caller asserts payer identity directly.
type PaymentRequest struct {
	Module        ModuleID
	Token         common.Address
	Payer         common.Address
	Amount        *big.Int
	Caller        common.Address
	Value         *big.Int
	Authorization *SignedAuthorization
}
