package transfer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
)

// ConfirmationStatus is the on-chain outcome reported by a chain adapter.
type ConfirmationStatus int

const (
	ConfirmationConfirmed ConfirmationStatus = iota + 1
	ConfirmationFailed
)

func (s ConfirmationStatus) String() string {
	switch s {
	case ConfirmationConfirmed:
		return "CONFIRMED"
	case ConfirmationFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Confirmation is the result of waiting on a source chain transaction.
type Confirmation struct {
	Status       ConfirmationStatus
	TargetTxHash string
	Reason       string
}

// Adapter is the external chain collaborator.
//
//go:generate mockery --name Adapter --output mocks --outpkg mocks --filename mock_adapter.go --with-expecter
type Adapter interface {
	// LockFunds locks the transfer amount on the source chain and returns the tx hash.
	LockFunds(ctx context.Context, t *Transfer) (string, error)
	// AwaitConfirmation blocks until txHash on chain is final or ctx ends.
	AwaitConfirmation(ctx context.Context, chain bridge.ChainID, txHash string) (Confirmation, error)
}

// SignerVerifier checks signer signatures against the registered signer keys.
type SignerVerifier interface {
	VerifySigner(signerID string, scheme signature.Scheme, message, sig []byte) error
	Active(signerID string) bool
}

// LiquidityReserver is the subset of the pool manager the machine drives.
type LiquidityReserver interface {
	Reserve(ctx context.Context, key bridge.PoolKey, amount decimal.Decimal, transferID string) (string, error)
	Release(ctx context.Context, reservationID string) error
	Consume(ctx context.Context, reservationID string) error
}

// Quoter prices a transfer at submission time.
type Quoter interface {
	Quote(key bridge.PoolKey, amount decimal.Decimal) (fee, slippage decimal.Decimal)
}

// Store persists transfers after each change.
type Store interface {
	SaveTransfer(ctx context.Context, t *Transfer) error
	// LoadTransfer returns the stored transfer in any state, or nil if the id was never saved.
	LoadTransfer(ctx context.Context, transferID string) (*Transfer, error)
}

// Config holds the machine's timing policy.
type Config struct {
	// ExecutionDeadline is how long a transfer may stay EXECUTING before it is escalated.
	ExecutionDeadline time.Duration `mapstructure:"execution_deadline" default:"30m"`
	// ConfirmationTimeout bounds a single Settle wait.
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout" default:"10m"`
	StaleSignatureAge   time.Duration `mapstructure:"stale_signature_age" default:"1h"`
	// LockTimeout bounds a single LockFunds call.
	LockTimeout time.Duration `mapstructure:"lock_timeout" default:"2m"`
}

// SignatureInput is a signature as submitted by a client. Signature is hex encoded.
type SignatureInput struct {
	SignerID  string           `json:"signerId" validate:"required"`
	Scheme    signature.Scheme `json:"scheme" validate:"required"`
	Signature string           `json:"signature" validate:"required"`
}

// SubmitRequest creates a transfer.
type SubmitRequest struct {
	TransferID         string           `json:"transferId" validate:"required,max=128"`
	SourceChain        bridge.ChainID   `json:"sourceChain" validate:"required"`
	TargetChain        bridge.ChainID   `json:"targetChain" validate:"required,nefield=SourceChain"`
	Asset              string           `json:"asset" validate:"required"`
	Amount             decimal.Decimal  `json:"amount"`
	SourceAddress      string           `json:"sourceAddress" validate:"required"`
	TargetAddress      string           `json:"targetAddress" validate:"required"`
	RequiredSignatures int              `json:"requiredSignatures" validate:"gte=1,ltefield=TotalSigners"`
	TotalSigners       int              `json:"totalSigners" validate:"gte=1"`
	DesignatedSigners  []string         `json:"designatedSigners,omitempty" validate:"omitempty,unique,dive,required"`
	Signatures         []SignatureInput `json:"signatures,omitempty" validate:"dive"`
}
