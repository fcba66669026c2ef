package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
	"github.com/chainsafe/bridge-settlement/pkg/validation"
)

const serviceName = "SettlementService"

const (
	reasonMaxLen         = 64
	signatureDisplaySize = 16
)

// logService wraps Service with logging of the mutating calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the settlement Service.
// Reads are passed through; mutations log entry, exit, duration and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) Validate(ctx context.Context, req validation.Request) (res *validation.Result, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			ls.failed("Validate", start, err, zap.String("bridge_id", req.BridgeID))
			return
		}
		ls.logger.Debug("Validate completed",
			zap.String("service", serviceName),
			zap.String("method", "Validate"),
			zap.String("validation_id", res.ValidationID),
			zap.String("status", string(res.Status)),
			zap.Int("errors", len(res.Errors)),
			zap.Int("warnings", len(res.Warnings)),
			zap.Duration("duration", time.Since(start)),
		)
	}()
	return ls.svc.Validate(ctx, req)
}

func (ls *logService) Submit(ctx context.Context, req transfer.SubmitRequest) (t *transfer.Transfer, err error) {
	start := time.Now()
	ls.logger.Info("Submit started",
		zap.String("service", serviceName),
		zap.String("method", "Submit"),
		zap.String("transfer_id", req.TransferID),
		zap.String("source_chain", string(req.SourceChain)),
		zap.String("target_chain", string(req.TargetChain)),
		zap.String("asset", req.Asset),
		zap.String("amount", req.Amount.String()),
		zap.Int("initial_signatures", len(req.Signatures)),
	)
	defer func() { ls.done("Submit", req.TransferID, start, t, err) }()
	return ls.svc.Submit(ctx, req)
}

func (ls *logService) AddSignature(
	ctx context.Context,
	transferID string,
	in transfer.SignatureInput,
) (t *transfer.Transfer, err error) {
	start := time.Now()
	ls.logger.Info("AddSignature started",
		zap.String("service", serviceName),
		zap.String("method", "AddSignature"),
		zap.String("transfer_id", transferID),
		zap.String("signer_id", in.SignerID),
		zap.String("scheme", in.Scheme.String()),
		zap.String("signature", redactSignature(in.Signature)),
	)
	defer func() { ls.done("AddSignature", transferID, start, t, err) }()
	return ls.svc.AddSignature(ctx, transferID, in)
}

func (ls *logService) Approve(ctx context.Context, transferID string) (t *transfer.Transfer, err error) {
	start := time.Now()
	ls.started("Approve", transferID)
	defer func() { ls.done("Approve", transferID, start, t, err) }()
	return ls.svc.Approve(ctx, transferID)
}

func (ls *logService) Execute(ctx context.Context, transferID string) (t *transfer.Transfer, err error) {
	start := time.Now()
	ls.started("Execute", transferID)
	defer func() { ls.done("Execute", transferID, start, t, err) }()
	return ls.svc.Execute(ctx, transferID)
}

func (ls *logService) Complete(
	ctx context.Context,
	transferID, sourceTxHash, targetTxHash string,
) (t *transfer.Transfer, err error) {
	start := time.Now()
	ls.logger.Info("Complete started",
		zap.String("service", serviceName),
		zap.String("method", "Complete"),
		zap.String("transfer_id", transferID),
		zap.String("source_tx_hash", sourceTxHash),
		zap.String("target_tx_hash", targetTxHash),
	)
	defer func() { ls.done("Complete", transferID, start, t, err) }()
	return ls.svc.Complete(ctx, transferID, sourceTxHash, targetTxHash)
}

func (ls *logService) Cancel(ctx context.Context, transferID, reason string) (t *transfer.Transfer, err error) {
	start := time.Now()
	ls.logger.Info("Cancel started",
		zap.String("service", serviceName),
		zap.String("method", "Cancel"),
		zap.String("transfer_id", transferID),
		zap.String("reason", truncateString(reason, reasonMaxLen)),
	)
	defer func() { ls.done("Cancel", transferID, start, t, err) }()
	return ls.svc.Cancel(ctx, transferID, reason)
}

func (ls *logService) GetTransfer(ctx context.Context, transferID string) (*transfer.Transfer, error) {
	return ls.svc.GetTransfer(ctx, transferID)
}

func (ls *logService) ListTransfers(ctx context.Context, status transfer.Status) ([]*transfer.Transfer, error) {
	return ls.svc.ListTransfers(ctx, status)
}

func (ls *logService) Pools(ctx context.Context) ([]liquidity.PoolSnapshot, error) {
	return ls.svc.Pools(ctx)
}

func (ls *logService) Summary(ctx context.Context) (transfer.Summary, error) {
	return ls.svc.Summary(ctx)
}

func (ls *logService) RevokeSigner(ctx context.Context, signerID string) (err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			ls.failed("RevokeSigner", start, err, zap.String("signer_id", signerID))
			return
		}
		ls.logger.Warn("Signer revoked",
			zap.String("service", serviceName),
			zap.String("method", "RevokeSigner"),
			zap.String("signer_id", signerID),
			zap.Duration("duration", time.Since(start)),
		)
	}()
	return ls.svc.RevokeSigner(ctx, signerID)
}

func (ls *logService) Deposit(
	ctx context.Context,
	key bridge.PoolKey,
	amount decimal.Decimal,
) (snap liquidity.PoolSnapshot, err error) {
	start := time.Now()
	defer func() { ls.poolDone("Deposit", key, amount, start, snap, err) }()
	return ls.svc.Deposit(ctx, key, amount)
}

func (ls *logService) Withdraw(
	ctx context.Context,
	key bridge.PoolKey,
	amount decimal.Decimal,
) (snap liquidity.PoolSnapshot, err error) {
	start := time.Now()
	defer func() { ls.poolDone("Withdraw", key, amount, start, snap, err) }()
	return ls.svc.Withdraw(ctx, key, amount)
}

func (ls *logService) poolDone(
	method string,
	key bridge.PoolKey,
	amount decimal.Decimal,
	start time.Time,
	snap liquidity.PoolSnapshot,
	err error,
) {
	if err != nil {
		ls.failed(method, start, err, zap.String("pool", key.String()), zap.String("amount", amount.String()))
		return
	}
	ls.logger.Info(method+" completed",
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.String("pool", key.String()),
		zap.String("amount", amount.String()),
		zap.String("total", snap.Total.String()),
		zap.String("available", snap.Available.String()),
		zap.Duration("duration", time.Since(start)),
	)
}

func (ls *logService) started(method, transferID string) {
	ls.logger.Info(method+" started",
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.String("transfer_id", transferID),
	)
}

func (ls *logService) done(method, transferID string, start time.Time, t *transfer.Transfer, err error) {
	if err != nil {
		ls.failed(method, start, err, zap.String("transfer_id", transferID))
		return
	}
	ls.logger.Info(method+" completed",
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.String("transfer_id", transferID),
		zap.String("status", t.Status.String()),
		zap.Int("signatures", len(t.Signatures)),
		zap.Duration("duration", time.Since(start)),
	)
}

func (ls *logService) failed(method string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	ls.logger.Error(method+" failed", fields...)
}

// truncateString limits string length for logging
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// redactSignature shows only the edges and length of a hex signature
func redactSignature(sig string) string {
	if sig == "" {
		return "<empty>"
	}
	sigLen := len(sig)
	if sigLen > signatureDisplaySize {
		return fmt.Sprintf("%s...%s (%d chars)", sig[:8], sig[sigLen-4:], sigLen)
	}
	return fmt.Sprintf("<%d chars>", sigLen)
}
