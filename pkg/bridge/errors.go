package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/chainsafe/bridge-settlement/pkg/app/errors"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrUnsupportedScheme     = errors.New("unsupported signature scheme")
	ErrWrongScheme           = errors.New("signature scheme does not match signer key")
	ErrMalformedSignature    = errors.New("malformed signature or key")
	ErrSignatureInvalid      = errors.New("signature verification failed")
	ErrUnknownSigner         = errors.New("unknown or revoked signer")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrPoolNotFound          = errors.New("liquidity pool not found")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrInvalidTransition     = errors.New("transfer state not eligible")
	ErrTransferExists        = errors.New("transfer already exists")
	ErrTransferNotFound      = errors.New("transfer not found")
	ErrQuorumLost            = errors.New("signature quorum no longer intact")
	ErrExecutionInFlight     = errors.New("chain execution already in flight")
	ErrAdapter               = errors.New("chain adapter failure")
)

// ValidationError reports a malformed or ineligible request. The caller can correct it.
func ValidationError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return apperrors.BadRequestError(fmt.Errorf("%w: %s", ErrInvalidRequest, msg), msg)
}

// RateLimitedError reports that address exhausted its quota until resetAt.
func RateLimitedError(address string, resetAt time.Time) error {
	return apperrors.RateLimitedError(
		fmt.Errorf("%w for %s until %s", ErrRateLimited, address, resetAt.Format(time.RFC3339Nano)),
		"rate limit exceeded, retry after window reset",
	)
}

// SignatureError reports an invalid or unverifiable signature. kind must be one of
// ErrUnsupportedScheme, ErrWrongScheme, ErrMalformedSignature, ErrSignatureInvalid or ErrUnknownSigner.
func SignatureError(kind error, signerID string, cause error) error {
	err := fmt.Errorf("%w: signer %q", kind, signerID)
	if cause != nil {
		err = fmt.Errorf("%w: signer %q: %v", kind, signerID, cause)
	}
	return apperrors.UnAuthorizedError(err, kind.Error())
}

// InsufficientLiquidityError reports that pool cannot cover requested. Retryable later.
func InsufficientLiquidityError(pool PoolKey, requested, available decimal.Decimal) error {
	return apperrors.RecoveringError(
		fmt.Errorf("%w in %s: requested %s, available %s", ErrInsufficientLiquidity, pool, requested, available),
		"insufficient liquidity",
	)
}

// ConflictError reports an operation attempted against a transfer that is not in the required state.
func ConflictError(transferID string, current fmt.Stringer, op string) error {
	return apperrors.ConflictError(
		fmt.Errorf("%w: cannot %s transfer %s in state %s", ErrInvalidTransition, op, transferID, current),
		fmt.Sprintf("transfer %s is %s, cannot %s", transferID, current, op),
	)
}

// NotFoundError reports an unknown transfer id.
func NotFoundError(transferID string) error {
	return apperrors.ResourceNotFoundError(
		fmt.Errorf("%w: %s", ErrTransferNotFound, transferID),
		"transfer not found",
	)
}

// SignerNotFoundError reports an unknown signer id.
func SignerNotFoundError(signerID string) error {
	return apperrors.ResourceNotFoundError(
		fmt.Errorf("%w: %s", ErrUnknownSigner, signerID),
		"signer not found",
	)
}

// AdapterError reports a failed chain interaction.
func AdapterError(chain ChainID, op string, cause error) error {
	return apperrors.DependencyError(
		fmt.Errorf("%w: %s on %s: %v", ErrAdapter, op, chain, cause),
		"chain interaction failed",
	)
}

// TransferExistsError reports a submission whose transfer id is already taken.
func TransferExistsError(transferID string, current fmt.Stringer) error {
	return apperrors.ConflictError(
		fmt.Errorf("%w: %s is %s", ErrTransferExists, transferID, current),
		fmt.Sprintf("transfer %s already exists", transferID),
	)
}

// QuorumLostError reports that approval found fewer valid signatures than required.
func QuorumLostError(transferID string, valid, required int) error {
	return apperrors.ConflictError(
		fmt.Errorf("%w: transfer %s has %d of %d valid signatures", ErrQuorumLost, transferID, valid, required),
		"signature quorum no longer intact",
	)
}

// ExecutionInFlightError reports a mutation attempted while the chain adapter call is outstanding.
func ExecutionInFlightError(transferID string) error {
	return apperrors.ConflictError(
		fmt.Errorf("%w: %s", ErrExecutionInFlight, transferID),
		"transfer execution in progress",
	)
}

// StoreError reports a failed read of persisted settlement state.
func StoreError(op string, cause error) error {
	return apperrors.GeneralError(fmt.Errorf("%s: %w", op, cause))
}
