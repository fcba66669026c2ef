package validation

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/keys"
	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/ratelimit"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type pipelineFixture struct {
	pipeline *Pipeline
	pools    *liquidity.Manager
	key      *keys.SignerKeyPair
	address  string
}

func newFixture(t *testing.T, cfg Config, rl ratelimit.Config, poolLiquidity string) *pipelineFixture {
	t.Helper()
	clock := func() time.Time { return fixedNow }

	limiter, err := ratelimit.New(rl, ratelimit.WithClock(clock))
	require.NoError(t, err)

	pools := liquidity.NewManager(zap.NewNop())
	if poolLiquidity != "" {
		_, err = pools.Deposit(context.Background(), bridge.NewPoolKey("ethereum", "polygon", "USDC"), decimal.RequireFromString(poolLiquidity))
		require.NoError(t, err)
	}

	registry := DefaultRegistry()
	estimator := NewEstimator(registry, nil, decimal.RequireFromString("0.001"), decimal.RequireFromString("0.01"), 30*time.Second)
	checker := signature.NewChecker(nil, signature.DefaultSuite())

	if cfg.SlippageWarningPct.IsZero() {
		cfg.SlippageWarningPct = decimal.NewFromInt(2)
	}
	if cfg.ThinLiquidityRatio.IsZero() {
		cfg.ThinLiquidityRatio = decimal.RequireFromString("0.5")
	}

	kp, err := keys.Derive(signature.SchemeSecp256k1, "user", bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	addr, err := kp.Address()
	require.NoError(t, err)

	return &pipelineFixture{
		pipeline: NewPipeline(cfg, limiter, pools, checker, registry, estimator, zap.NewNop(), WithClock(clock)),
		pools:    pools,
		key:      kp,
		address:  addr.Hex(),
	}
}

func (f *pipelineFixture) request(amount string) Request {
	return Request{
		BridgeID:      "bridge-1",
		SourceChain:   "ethereum",
		TargetChain:   "polygon",
		SourceAddress: f.address,
		TargetAddress: "0x000000000000000000000000000000000000dEaD",
		Asset:         "usdc",
		Amount:        decimal.RequireFromString(amount),
	}
}

func (f *pipelineFixture) sign(t *testing.T, req *Request) {
	t.Helper()
	sig, err := f.key.Sign(req.Payload())
	require.NoError(t, err)
	req.Signature = &InlineSignature{Scheme: signature.SchemeSecp256k1, Signature: "0x" + hex.EncodeToString(sig)}
}

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestPipeline_SignedRequestSucceeds(t *testing.T) {
	f := newFixture(t, Config{}, ratelimit.Config{}, "800000")
	req := f.request("1000")
	f.sign(t, &req)

	res := f.pipeline.Validate(context.Background(), req)

	require.Equal(t, StatusSuccess, res.Status, "errors=%v warnings=%v", res.Errors, res.Warnings)
	assert.NotEmpty(t, res.ValidationID)
	assert.Equal(t, fixedNow.Add(5*time.Minute), res.ExpiresAt)
	assert.Equal(t, 99, res.RateLimit.Remaining)
	assert.False(t, res.RateLimit.Limited)

	require.NotNil(t, res.Fee)
	assert.True(t, res.Fee.BridgeFee.Equal(decimal.RequireFromString("1")), "bridge fee %s", res.Fee.BridgeFee)
	assert.True(t, res.Fee.GasFee.Equal(decimal.RequireFromString("0.001")), "gas fee %s", res.Fee.GasFee)
	assert.True(t, res.Fee.Total.Equal(decimal.RequireFromString("1.001")))
	assert.True(t, res.SlippagePct.Equal(decimal.RequireFromString("0.13")), "slippage %s", res.SlippagePct)
	assert.Equal(t, 15*time.Second+30*time.Second+2*time.Second, res.EstimatedTime)
}

func TestPipeline_MissingSignatureIsWarning(t *testing.T) {
	f := newFixture(t, Config{}, ratelimit.Config{}, "800000")

	res := f.pipeline.Validate(context.Background(), f.request("1000"))

	assert.Equal(t, StatusWarnings, res.Status)
	assert.Equal(t, []string{CodeSignatureMissing}, codes(res.Warnings))
}

func TestPipeline_RateLimitShortCircuits(t *testing.T) {
	f := newFixture(t, Config{}, ratelimit.Config{Capacity: 2}, "800000")
	req := f.request("1000")

	f.pipeline.Validate(context.Background(), req)
	f.pipeline.Validate(context.Background(), req)
	res := f.pipeline.Validate(context.Background(), req)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []string{CodeRateLimited}, codes(res.Errors))
	assert.True(t, res.RateLimit.Limited)
	assert.Equal(t, 0, res.RateLimit.Remaining)
	assert.Nil(t, res.Fee, "later steps must not run")
}

func TestPipeline_RequiredFields(t *testing.T) {
	f := newFixture(t, Config{}, ratelimit.Config{}, "800000")
	req := f.request("1000")
	req.BridgeID = ""
	req.SourceAddress = ""

	res := f.pipeline.Validate(context.Background(), req)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, 100, res.RateLimit.Limit, "rate limit info is always present")
	assert.Equal(t, 100, res.RateLimit.Remaining)
}

func TestPipeline_FieldAndRouteFailures(t *testing.T) {
	f := newFixture(t, Config{}, ratelimit.Config{}, "800000")

	cases := []struct {
		name   string
		mutate func(*Request)
		code   string
	}{
		{"missing target address", func(r *Request) { r.TargetAddress = "" }, CodeInvalidField},
		{"non-positive amount", func(r *Request) { r.Amount = decimal.Zero }, CodeInvalidField},
		{"same chain", func(r *Request) { r.TargetChain = "ethereum" }, CodeUnsupportedRoute},
		{"unknown chain", func(r *Request) { r.TargetChain = "dogechain" }, CodeUnsupportedRoute},
		{"unknown asset", func(r *Request) { r.Asset = "DOGE" }, CodeUnsupportedAsset},
		{"below minimum", func(r *Request) { r.Amount = decimal.RequireFromString("50") }, CodeAmountOutOfBounds},
		{"above maximum", func(r *Request) { r.Amount = decimal.RequireFromString("1000001") }, CodeAmountOutOfBounds},
		{"too precise", func(r *Request) { r.Amount = decimal.RequireFromString("100.1234567") }, CodeAmountPrecision},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request("1000")
			tc.mutate(&req)

			res := f.pipeline.Validate(context.Background(), req)

			assert.Equal(t, StatusFailed, res.Status)
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, tc.code, res.Errors[0].Code)
		})
	}
}

func TestPipeline_AssetWithoutMaximumIsUnbounded(t *testing.T) {
	d := decimal.RequireFromString
	registry := NewRegistry(
		[]Chain{
			{ID: "ethereum", BlockTime: 15 * time.Second, GasFee: d("0.01")},
			{ID: "polygon", BlockTime: 2 * time.Second, GasFee: d("0.001")},
		},
		[]Asset{{Symbol: "USDC", Decimals: 6, Min: d("1")}},
		nil,
	)
	limiter, err := ratelimit.New(ratelimit.Config{})
	require.NoError(t, err)
	pools := liquidity.NewManager(zap.NewNop())
	_, err = pools.Deposit(context.Background(), bridge.NewPoolKey("ethereum", "polygon", "USDC"), d("100000000"))
	require.NoError(t, err)

	p := NewPipeline(Config{SlippageWarningPct: d("2"), ThinLiquidityRatio: d("0.5")}, limiter, pools,
		signature.NewChecker(nil, signature.DefaultSuite()), registry,
		NewEstimator(registry, nil, d("0.001"), d("0.01"), 30*time.Second), zap.NewNop())

	for _, amount := range []string{"50", "5000000"} {
		req := Request{
			BridgeID:      "bridge-1",
			SourceChain:   "ethereum",
			TargetChain:   "polygon",
			SourceAddress: "0x1111111111111111111111111111111111111111",
			TargetAddress: "0x000000000000000000000000000000000000dEaD",
			Asset:         "usdc",
			Amount:        d(amount),
		}
		res := p.Validate(context.Background(), req)
		assert.NotContains(t, codes(res.Errors), CodeAmountOutOfBounds, "amount %s", amount)
		assert.NotEqual(t, StatusFailed, res.Status, "amount %s: errors=%v", amount, res.Errors)
	}

	req := Request{
		BridgeID: "bridge-1", SourceChain: "ethereum", TargetChain: "polygon",
		SourceAddress: "0x1111111111111111111111111111111111111111",
		TargetAddress: "0x000000000000000000000000000000000000dEaD",
		Asset:         "usdc", Amount: d("0.5"),
	}
	res := p.Validate(context.Background(), req)
	assert.Equal(t, []string{CodeAmountOutOfBounds}, codes(res.Errors))
}

func TestPipeline_SignatureFailures(t *testing.T) {
	f := newFixture(t, Config{}, ratelimit.Config{}, "800000")
	edKey, err := keys.Generate(signature.SchemeEd25519)
	require.NoError(t, err)

	t.Run("tampered payload", func(t *testing.T) {
		req := f.request("1000")
		f.sign(t, &req)
		req.Amount = decimal.RequireFromString("2000")

		res := f.pipeline.Validate(context.Background(), req)
		assert.Equal(t, []string{CodeSignatureInvalid}, codes(res.Errors))
	})

	t.Run("malformed for scheme", func(t *testing.T) {
		req := f.request("1000")
		f.sign(t, &req)
		req.Signature.Scheme = signature.SchemeEd25519
		req.Signature.PublicKey = edKey.PublicKeyHex()

		res := f.pipeline.Validate(context.Background(), req)
		assert.Equal(t, []string{CodeSignatureMalformed}, codes(res.Errors))
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		req := f.request("1000")
		f.sign(t, &req)
		req.Signature.Scheme = signature.SchemeUnknown
		req.Signature.PublicKey = edKey.PublicKeyHex()

		res := f.pipeline.Validate(context.Background(), req)
		assert.Equal(t, []string{CodeSignatureWrongScheme}, codes(res.Errors))
	})

	t.Run("no key for ed25519", func(t *testing.T) {
		req := f.request("1000")
		sig, err := edKey.Sign(req.Payload())
		require.NoError(t, err)
		req.Signature = &InlineSignature{Scheme: signature.SchemeEd25519, Signature: hex.EncodeToString(sig)}

		res := f.pipeline.Validate(context.Background(), req)
		assert.Equal(t, []string{CodeSignatureUnverifiable}, codes(res.Errors))

		req.Signature.PublicKey = edKey.PublicKeyHex()
		res = f.pipeline.Validate(context.Background(), req)
		assert.Empty(t, res.Errors)
	})
}

func TestPipeline_Liquidity(t *testing.T) {
	t.Run("insufficient is a hard failure", func(t *testing.T) {
		f := newFixture(t, Config{}, ratelimit.Config{}, "500")
		res := f.pipeline.Validate(context.Background(), f.request("1000"))
		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, []string{CodeInsufficientLiquidity}, codes(res.Errors))
	})

	t.Run("missing pool is a hard failure", func(t *testing.T) {
		f := newFixture(t, Config{}, ratelimit.Config{}, "")
		res := f.pipeline.Validate(context.Background(), f.request("1000"))
		assert.Equal(t, []string{CodeInsufficientLiquidity}, codes(res.Errors))
	})

	t.Run("within buffer threshold only warns", func(t *testing.T) {
		f := newFixture(t, Config{LiquidityBufferThreshold: decimal.NewFromInt(5000)}, ratelimit.Config{}, "500")
		req := f.request("1000")
		f.sign(t, &req)

		res := f.pipeline.Validate(context.Background(), req)
		assert.Equal(t, StatusWarnings, res.Status)
		assert.Contains(t, codes(res.Warnings), CodeLowLiquidity)
		assert.True(t, res.SlippagePct.Equal(decimal.NewFromInt(200)))
	})

	t.Run("thin liquidity and slippage warn", func(t *testing.T) {
		f := newFixture(t, Config{}, ratelimit.Config{}, "1500")
		req := f.request("1000")
		f.sign(t, &req)

		res := f.pipeline.Validate(context.Background(), req)
		assert.Equal(t, StatusWarnings, res.Status)
		assert.ElementsMatch(t, []string{CodeThinLiquidity, CodeHighSlippage}, codes(res.Warnings))
		assert.True(t, res.SlippagePct.Equal(decimal.RequireFromString("66.67")), "slippage %s", res.SlippagePct)
	})
}
