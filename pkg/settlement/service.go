// Package settlement exposes the bridge settlement core over a single Service:
// pre-flight validation, the transfer lifecycle and pool inspection.
package settlement

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	apperrors "github.com/chainsafe/bridge-settlement/pkg/app/errors"
	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
	"github.com/chainsafe/bridge-settlement/pkg/validation"
)

// Service defines the settlement API served over HTTP.
type Service interface {
	Validate(ctx context.Context, req validation.Request) (*validation.Result, error)
	Submit(ctx context.Context, req transfer.SubmitRequest) (*transfer.Transfer, error)
	AddSignature(ctx context.Context, transferID string, in transfer.SignatureInput) (*transfer.Transfer, error)
	Approve(ctx context.Context, transferID string) (*transfer.Transfer, error)
	Execute(ctx context.Context, transferID string) (*transfer.Transfer, error)
	Complete(ctx context.Context, transferID, sourceTxHash, targetTxHash string) (*transfer.Transfer, error)
	Cancel(ctx context.Context, transferID, reason string) (*transfer.Transfer, error)
	GetTransfer(ctx context.Context, transferID string) (*transfer.Transfer, error)
	ListTransfers(ctx context.Context, status transfer.Status) ([]*transfer.Transfer, error)
	Pools(ctx context.Context) ([]liquidity.PoolSnapshot, error)
	Summary(ctx context.Context) (transfer.Summary, error)

	// operator calls
	RevokeSigner(ctx context.Context, signerID string) error
	Deposit(ctx context.Context, key bridge.PoolKey, amount decimal.Decimal) (liquidity.PoolSnapshot, error)
	Withdraw(ctx context.Context, key bridge.PoolKey, amount decimal.Decimal) (liquidity.PoolSnapshot, error)
}

// Validator runs the pre-flight pipeline.
type Validator interface {
	Validate(ctx context.Context, req validation.Request) *validation.Result
}

// PoolManager lists and funds liquidity pools.
type PoolManager interface {
	Snapshots() []liquidity.PoolSnapshot
	Deposit(ctx context.Context, key bridge.PoolKey, amount decimal.Decimal) (liquidity.PoolSnapshot, error)
	Withdraw(ctx context.Context, key bridge.PoolKey, amount decimal.Decimal) (liquidity.PoolSnapshot, error)
}

// SignerRevoker takes signers out of the active set.
type SignerRevoker interface {
	Revoke(id string) error
}

type settlementService struct {
	validator Validator
	machine   *transfer.Machine
	pools     PoolManager
	signers   SignerRevoker
}

// NewService creates the settlement service.
func NewService(validator Validator, machine *transfer.Machine, pools PoolManager, signers SignerRevoker) Service {
	return &settlementService{
		validator: validator,
		machine:   machine,
		pools:     pools,
		signers:   signers,
	}
}

func (s *settlementService) Validate(ctx context.Context, req validation.Request) (*validation.Result, error) {
	return s.validator.Validate(ctx, req), nil
}

func (s *settlementService) Submit(ctx context.Context, req transfer.SubmitRequest) (*transfer.Transfer, error) {
	return s.machine.Submit(ctx, req)
}

func (s *settlementService) AddSignature(
	ctx context.Context,
	transferID string,
	in transfer.SignatureInput,
) (*transfer.Transfer, error) {
	return s.machine.AddSignature(ctx, transferID, in)
}

func (s *settlementService) Approve(ctx context.Context, transferID string) (*transfer.Transfer, error) {
	return s.machine.Approve(ctx, transferID)
}

func (s *settlementService) Execute(ctx context.Context, transferID string) (*transfer.Transfer, error) {
	return s.machine.Execute(ctx, transferID)
}

func (s *settlementService) Complete(
	ctx context.Context,
	transferID, sourceTxHash, targetTxHash string,
) (*transfer.Transfer, error) {
	return s.machine.Complete(ctx, transferID, sourceTxHash, targetTxHash)
}

func (s *settlementService) Cancel(ctx context.Context, transferID, reason string) (*transfer.Transfer, error) {
	return s.machine.Cancel(ctx, transferID, reason)
}

func (s *settlementService) GetTransfer(_ context.Context, transferID string) (*transfer.Transfer, error) {
	return s.machine.Get(transferID)
}

func (s *settlementService) ListTransfers(_ context.Context, status transfer.Status) ([]*transfer.Transfer, error) {
	return s.machine.List(status), nil
}

func (s *settlementService) Pools(_ context.Context) ([]liquidity.PoolSnapshot, error) {
	return s.pools.Snapshots(), nil
}

func (s *settlementService) Summary(_ context.Context) (transfer.Summary, error) {
	return s.machine.Summary(), nil
}

// RevokeSigner revokes signerID. Transfers relying on it lose quorum at approval.
func (s *settlementService) RevokeSigner(_ context.Context, signerID string) error {
	if err := s.signers.Revoke(signerID); err != nil {
		if errors.Is(err, bridge.ErrUnknownSigner) {
			return bridge.SignerNotFoundError(signerID)
		}
		return err
	}
	return nil
}

func (s *settlementService) Deposit(
	ctx context.Context,
	key bridge.PoolKey,
	amount decimal.Decimal,
) (liquidity.PoolSnapshot, error) {
	return s.pools.Deposit(ctx, key, amount)
}

func (s *settlementService) Withdraw(
	ctx context.Context,
	key bridge.PoolKey,
	amount decimal.Decimal,
) (liquidity.PoolSnapshot, error) {
	snap, err := s.pools.Withdraw(ctx, key, amount)
	if errors.Is(err, bridge.ErrPoolNotFound) {
		return liquidity.PoolSnapshot{}, apperrors.ResourceNotFoundError(err, "pool not found")
	}
	return snap, err
}

// LiquidityLookup reports a pool's available liquidity.
type LiquidityLookup interface {
	Available(key bridge.PoolKey) (decimal.Decimal, error)
}

// Quoter prices transfers at submission with the same estimator the pipeline uses.
type Quoter struct {
	estimator *validation.Estimator
	pools     LiquidityLookup
}

// NewQuoter creates a Quoter.
func NewQuoter(estimator *validation.Estimator, pools LiquidityLookup) *Quoter {
	return &Quoter{estimator: estimator, pools: pools}
}

// Quote returns the total fee and the slippage against current availability.
// An unknown pool counts as empty.
func (q *Quoter) Quote(key bridge.PoolKey, amount decimal.Decimal) (fee, slippage decimal.Decimal) {
	available, err := q.pools.Available(key)
	if err != nil {
		available = decimal.Zero
	}
	return q.estimator.Fee(key.TargetChain, key.Asset, amount).Total, q.estimator.Slippage(amount, available)
}
