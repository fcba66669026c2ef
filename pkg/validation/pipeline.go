// Package validation assesses a candidate bridge transfer before submission.
//
// The pipeline runs rate limiting, field and route checks, an optional signature
// pre-check, liquidity availability and fee/slippage estimation, in that order,
// stopping at the first step that produces a hard failure. Its only side effect is
// consuming rate-limit quota.
package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/internal/metrics"
	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/ratelimit"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
)

// Status is the overall outcome of a validation.
type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusWarnings Status = "WARNINGS"
	StatusFailed   Status = "FAILED"
)

// Issue codes.
const (
	CodeRateLimited           = "RATE_LIMITED"
	CodeInvalidField          = "INVALID_FIELD"
	CodeUnsupportedRoute      = "UNSUPPORTED_ROUTE"
	CodeUnsupportedAsset      = "UNSUPPORTED_ASSET"
	CodeAmountOutOfBounds     = "AMOUNT_OUT_OF_BOUNDS"
	CodeAmountPrecision       = "AMOUNT_PRECISION"
	CodeSignatureMissing      = "SIGNATURE_MISSING"
	CodeSignatureInvalid      = "SIGNATURE_INVALID"
	CodeSignatureWrongScheme  = "SIGNATURE_WRONG_SCHEME"
	CodeSignatureMalformed    = "SIGNATURE_MALFORMED"
	CodeSignatureUnverifiable = "SIGNATURE_UNVERIFIABLE"
	CodeInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	CodeLowLiquidity          = "LOW_LIQUIDITY"
	CodeThinLiquidity         = "THIN_LIQUIDITY"
	CodeHighSlippage          = "HIGH_SLIPPAGE"
)

// InlineSignature is an optional signature over the request payload for a quick pre-check.
// PublicKey may be omitted for SECP256K1 when SourceAddress is the signer's EVM address.
type InlineSignature struct {
	Scheme    signature.Scheme `json:"scheme"`
	Signature string           `json:"signature" validate:"required"`
	PublicKey string           `json:"publicKey,omitempty"`
}

// Request is a candidate transfer.
type Request struct {
	BridgeID      string           `json:"bridgeId" validate:"required"`
	SourceChain   string           `json:"sourceChain" validate:"required"`
	TargetChain   string           `json:"targetChain" validate:"required"`
	SourceAddress string           `json:"sourceAddress" validate:"required"`
	TargetAddress string           `json:"targetAddress" validate:"required"`
	Asset         string           `json:"asset" validate:"required"`
	Amount        decimal.Decimal  `json:"amount"`
	Signature     *InlineSignature `json:"signature,omitempty"`
}

// Payload returns the bytes an inline signature must cover.
func (r *Request) Payload() []byte {
	return signature.Payload(
		r.BridgeID,
		string(bridge.NormalizeChain(r.SourceChain)),
		string(bridge.NormalizeChain(r.TargetChain)),
		r.SourceAddress,
		r.TargetAddress,
		bridge.NormalizeAsset(r.Asset),
		r.Amount.String(),
	)
}

// Issue is a single error or warning.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the structured outcome of Validate. RateLimit is always populated.
type Result struct {
	ValidationID       string           `json:"validationId"`
	Status             Status           `json:"status"`
	Errors             []Issue          `json:"errors"`
	Warnings           []Issue          `json:"warnings"`
	Fee                *FeeEstimate     `json:"fee,omitempty"`
	SlippagePct        *decimal.Decimal `json:"slippagePct,omitempty"`
	AvailableLiquidity *decimal.Decimal `json:"availableLiquidity,omitempty"`
	EstimatedTime      time.Duration    `json:"estimatedTimeNs,omitempty"`
	RateLimit          ratelimit.Usage  `json:"rateLimitInfo"`
	ValidatedAt        time.Time        `json:"validatedAt"`
	ExpiresAt          time.Time        `json:"expiresAt"`
}

// RateLimiter admits requests per source address.
type RateLimiter interface {
	Admit(address string) (ratelimit.Usage, bool)
	CurrentUsage(address string) ratelimit.Usage
}

// LiquidityReader reports a pool's available liquidity.
type LiquidityReader interface {
	Available(key bridge.PoolKey) (decimal.Decimal, error)
}

// KeyVerifier verifies a signature against an explicit key.
type KeyVerifier interface {
	VerifyKey(label string, scheme signature.Scheme, publicKey, message, sig []byte) error
}

// Config holds pipeline thresholds.
type Config struct {
	// LiquidityBufferThreshold: insufficient liquidity fails amounts above it and only warns at or below it.
	LiquidityBufferThreshold decimal.Decimal
	SlippageWarningPct       decimal.Decimal
	ThinLiquidityRatio       decimal.Decimal
	TTL                      time.Duration
}

// Pipeline runs validation. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	limiter   RateLimiter
	pools     LiquidityReader
	verifier  KeyVerifier
	registry  *Registry
	estimator *Estimator
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	cfg Config,
	limiter RateLimiter,
	pools LiquidityReader,
	verifier KeyVerifier,
	registry *Registry,
	estimator *Estimator,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	p := &Pipeline{
		cfg:       cfg,
		limiter:   limiter,
		pools:     pools,
		verifier:  verifier,
		registry:  registry,
		estimator: estimator,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate assesses req. It never returns an error: every problem is reported in the Result.
func (p *Pipeline) Validate(_ context.Context, req Request) *Result {
	now := p.now()
	res := &Result{
		ValidationID: uuid.NewString(),
		Errors:       []Issue{},
		Warnings:     []Issue{},
		ValidatedAt:  now,
		ExpiresAt:    now.Add(p.cfg.TTL),
	}
	defer p.finish(res, &req)

	// bridgeId and sourceAddress gate everything, sourceAddress is the rate-limit key
	if req.BridgeID == "" || req.SourceAddress == "" {
		res.RateLimit = p.limiter.CurrentUsage(req.SourceAddress)
		if req.BridgeID == "" {
			res.fail(CodeInvalidField, "bridgeId is required")
		}
		if req.SourceAddress == "" {
			res.fail(CodeInvalidField, "sourceAddress is required")
		}
		return res
	}

	// 1. rate limit
	usage, admitted := p.limiter.Admit(req.SourceAddress)
	res.RateLimit = usage
	if !admitted {
		metrics.RateLimitedTotal.Inc()
		res.fail(CodeRateLimited, fmt.Sprintf("more than %d requests within the window, retry after %s",
			usage.Limit, usage.ResetAt.Format(time.RFC3339Nano)))
		return res
	}

	// 2. fields and route
	if !p.checkFields(res, &req) {
		return res
	}

	// 3. signature pre-check
	if !p.checkSignature(res, &req) {
		return res
	}

	// 4. liquidity
	key := bridge.NewPoolKey(req.SourceChain, req.TargetChain, req.Asset)
	available, err := p.pools.Available(key)
	if err != nil {
		available = decimal.Zero
	}
	res.AvailableLiquidity = &available
	if !p.checkLiquidity(res, req.Amount, available) {
		return res
	}

	// 5. fee and slippage, advisory only
	fee := p.estimator.Fee(key.TargetChain, key.Asset, req.Amount)
	slippage := p.estimator.Slippage(req.Amount, available)
	res.Fee = &fee
	res.SlippagePct = &slippage
	res.EstimatedTime = p.estimator.CompletionTime(key.SourceChain, key.TargetChain)
	if slippage.GreaterThan(p.cfg.SlippageWarningPct) {
		res.warn(CodeHighSlippage, fmt.Sprintf("estimated slippage %s%% exceeds %s%%", slippage, p.cfg.SlippageWarningPct))
	}
	return res
}

func (p *Pipeline) checkFields(res *Result, req *Request) bool {
	if err := p.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				res.fail(CodeInvalidField, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
		} else {
			res.fail(CodeInvalidField, err.Error())
		}
		return false
	}
	if !req.Amount.IsPositive() {
		res.fail(CodeInvalidField, "amount must be positive")
		return false
	}

	source := bridge.NormalizeChain(req.SourceChain)
	target := bridge.NormalizeChain(req.TargetChain)
	if !p.registry.SupportsPair(source, target) {
		res.fail(CodeUnsupportedRoute, fmt.Sprintf("route %s -> %s is not supported", source, target))
		return false
	}
	if !p.registry.Bridgeable(source, target, req.Asset) {
		res.fail(CodeUnsupportedAsset, fmt.Sprintf("asset %s is not bridgeable from %s to %s", bridge.NormalizeAsset(req.Asset), source, target))
		return false
	}

	asset, _ := p.registry.Asset(req.Asset)
	if req.Amount.LessThan(asset.Min) {
		res.fail(CodeAmountOutOfBounds, fmt.Sprintf("amount %s below minimum %s for %s", req.Amount, asset.Min, asset.Symbol))
		return false
	}
	if asset.Bounded() && req.Amount.GreaterThan(asset.Max) {
		res.fail(CodeAmountOutOfBounds, fmt.Sprintf("amount %s above maximum %s for %s", req.Amount, asset.Max, asset.Symbol))
		return false
	}
	if !req.Amount.Equal(req.Amount.Truncate(asset.Decimals)) {
		res.fail(CodeAmountPrecision, fmt.Sprintf("amount %s exceeds %d decimals for %s", req.Amount, asset.Decimals, asset.Symbol))
		return false
	}
	return true
}

func (p *Pipeline) checkSignature(res *Result, req *Request) bool {
	sig := req.Signature
	if sig == nil {
		res.warn(CodeSignatureMissing, "no signature supplied, signature checks deferred to settlement")
		return true
	}

	sigBytes, err := signature.DecodeHex(sig.Signature)
	if err != nil {
		res.fail(CodeSignatureMalformed, "signature is not valid hex")
		return false
	}

	var key []byte
	switch {
	case sig.PublicKey != "":
		key, err = signature.DecodeHex(sig.PublicKey)
		if err != nil {
			res.fail(CodeSignatureMalformed, "publicKey is not valid hex")
			return false
		}
	case sig.Scheme == signature.SchemeSecp256k1 && common.IsHexAddress(req.SourceAddress):
		key = common.HexToAddress(req.SourceAddress).Bytes()
	default:
		res.fail(CodeSignatureUnverifiable, fmt.Sprintf("no key available to verify %s signature", sig.Scheme))
		return false
	}

	err = p.verifier.VerifyKey(req.SourceAddress, sig.Scheme, key, req.Payload(), sigBytes)
	switch {
	case err == nil:
		return true
	case errors.Is(err, bridge.ErrUnsupportedScheme), errors.Is(err, bridge.ErrWrongScheme):
		res.fail(CodeSignatureWrongScheme, err.Error())
	case errors.Is(err, bridge.ErrMalformedSignature):
		res.fail(CodeSignatureMalformed, err.Error())
	default:
		res.fail(CodeSignatureInvalid, err.Error())
	}
	return false
}

func (p *Pipeline) checkLiquidity(res *Result, amount, available decimal.Decimal) bool {
	if available.LessThan(amount) {
		msg := fmt.Sprintf("available liquidity %s is below requested %s", available, amount)
		if amount.GreaterThan(p.cfg.LiquidityBufferThreshold) {
			res.fail(CodeInsufficientLiquidity, msg)
			return false
		}
		res.warn(CodeLowLiquidity, msg)
		return true
	}
	if !p.cfg.ThinLiquidityRatio.IsZero() && amount.GreaterThan(available.Mul(p.cfg.ThinLiquidityRatio)) {
		res.warn(CodeThinLiquidity, fmt.Sprintf("amount %s uses more than %s of available liquidity %s",
			amount, p.cfg.ThinLiquidityRatio, available))
	}
	return true
}

func (p *Pipeline) finish(res *Result, req *Request) {
	switch {
	case len(res.Errors) > 0:
		res.Status = StatusFailed
	case len(res.Warnings) > 0:
		res.Status = StatusWarnings
	default:
		res.Status = StatusSuccess
	}
	metrics.ValidationsTotal.WithLabelValues(string(res.Status)).Inc()

	p.logger.Debug("Transfer validated",
		zap.String("validation_id", res.ValidationID),
		zap.String("bridge_id", req.BridgeID),
		zap.String("source_address", req.SourceAddress),
		zap.String("status", string(res.Status)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)))
}

func (r *Result) fail(code, msg string) {
	r.Errors = append(r.Errors, Issue{Code: code, Message: msg})
}

func (r *Result) warn(code, msg string) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Message: msg})
}
