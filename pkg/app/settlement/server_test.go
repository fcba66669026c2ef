package settlement

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/config"
	"github.com/chainsafe/bridge-settlement/pkg/keys"
	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/settlement"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
	"github.com/chainsafe/bridge-settlement/pkg/validation"
)

const devSeed = "local-dev-seed-do-not-use-in-production"

func testConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Monitoring: config.MonitoringConfig{Enabled: true},
		Logging:    config.LoggingConfig{Level: "info", Format: "json"},
		RateLimit:  config.RateLimitConfig{Capacity: 10, Window: time.Minute, IdleMultiple: 5},
		Bridge: config.BridgeConfig{
			Chains: map[string]config.ChainConfig{
				"ethereum": {BlockTime: 10 * time.Millisecond, Congestion: "1.5", GasFee: "0.01"},
				"polygon":  {BlockTime: 10 * time.Millisecond, GasFee: "0.001"},
			},
			Assets: map[string]config.AssetConfig{
				"usdc": {Decimals: 6, MinAmount: "100", MaxAmount: "1000000"},
			},
			Pools: []config.PoolConfig{
				{Source: "ethereum", Target: "polygon", Asset: "usdc", Liquidity: "5000"},
			},
			BaseFeeRate:        "0.001",
			DefaultGasFee:      "0.01",
			SlippageWarningPct: "2",
			ThinLiquidityRatio: "0.5",
			ProcessingTime:     30 * time.Second,
			ValidationTTL:      5 * time.Minute,
			StaleSignatureAge:  time.Hour,
		},
		Signers: []config.SignerConfig{
			{ID: "A", Scheme: "secp256k1", DevSeed: devSeed},
			{ID: "B", Scheme: "ed25519", DevSeed: devSeed},
		},
		Settlement: config.SettlementConfig{
			ExecutionDeadline:   30 * time.Minute,
			SweepInterval:       time.Minute,
			ConfirmationTimeout: time.Minute,
			AutoSettle:          true,
		},
	}
}

func TestBuild_WiresInMemoryStack(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	c, err := build(ctx, cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.close()

	key := bridge.NewPoolKey("ethereum", "polygon", "usdc")
	available, err := c.pools.Available(key)
	require.NoError(t, err)
	require.True(t, available.Equal(decimal.NewFromInt(5000)), "available %s", available)
	require.Equal(t, []bridge.ChainID{"ethereum", "polygon"}, c.adapters.router.Chains())

	require.NoError(t, c.engine.Start(ctx))
	defer c.engine.Stop()

	// a transfer signed by both dev signers settles through the simulated adapter
	req := transfer.SubmitRequest{
		TransferID:         "dev-1",
		SourceChain:        key.SourceChain,
		TargetChain:        key.TargetChain,
		Asset:              key.Asset,
		Amount:             decimal.NewFromInt(1000),
		SourceAddress:      "0x1111111111111111111111111111111111111111",
		TargetAddress:      "0x2222222222222222222222222222222222222222",
		RequiredSignatures: 2,
		TotalSigners:       2,
	}
	payload := (&transfer.Transfer{
		ID:                 req.TransferID,
		SourceChain:        req.SourceChain,
		TargetChain:        req.TargetChain,
		Asset:              req.Asset,
		Amount:             req.Amount,
		SourceAddress:      req.SourceAddress,
		TargetAddress:      req.TargetAddress,
		RequiredSignatures: req.RequiredSignatures,
		TotalSigners:       req.TotalSigners,
	}).Payload()
	for id, scheme := range map[string]signature.Scheme{"A": signature.SchemeSecp256k1, "B": signature.SchemeEd25519} {
		kp, err := keys.Derive(scheme, id, []byte(devSeed))
		require.NoError(t, err)
		sig, err := kp.Sign(payload)
		require.NoError(t, err)
		req.Signatures = append(req.Signatures, transfer.SignatureInput{
			SignerID: id, Scheme: scheme, Signature: hex.EncodeToString(sig),
		})
	}

	tr, err := c.service.Submit(ctx, req)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusSigned, tr.Status)
	_, err = c.service.Approve(ctx, "dev-1")
	require.NoError(t, err)
	_, err = c.service.Execute(ctx, "dev-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := c.service.GetTransfer(ctx, "dev-1")
		return err == nil && got.Status == transfer.StatusCompleted
	}, 10*time.Second, 20*time.Millisecond)
}

func TestBuild_RejectsBadConfig(t *testing.T) {
	cases := map[string]func(*config.Config){
		"bad decimal":    func(c *config.Config) { c.Bridge.BaseFeeRate = "abc" },
		"bad scheme":     func(c *config.Config) { c.Signers[0].Scheme = "rsa" },
		"short seed":     func(c *config.Config) { c.Signers[0].DevSeed = "short" },
		"bad public key": func(c *config.Config) { c.Signers[0].PublicKey = "0xzz" },
		"inverted bounds": func(c *config.Config) {
			c.Bridge.Assets["usdc"] = config.AssetConfig{Decimals: 6, MinAmount: "10", MaxAmount: "1"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			if _, err := build(context.Background(), cfg, nil, zap.NewNop()); err == nil {
				t.Fatal("expected build to fail")
			}
		})
	}
}

func TestBuild_AssetWithoutMaxAmountIsUnbounded(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Bridge.Assets["usdc"] = config.AssetConfig{Decimals: 6, MinAmount: "1"}

	c, err := build(ctx, cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.close()

	res, err := c.service.Validate(ctx, validation.Request{
		BridgeID:      "bridge-1",
		SourceChain:   "ethereum",
		TargetChain:   "polygon",
		SourceAddress: "0x1111111111111111111111111111111111111111",
		TargetAddress: "0x2222222222222222222222222222222222222222",
		Asset:         "usdc",
		Amount:        decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	for _, issue := range res.Errors {
		if issue.Code == validation.CodeAmountOutOfBounds {
			t.Fatalf("50 usdc rejected without a max_amount: %s", issue.Message)
		}
	}
	require.NotEqual(t, validation.StatusFailed, res.Status, "errors=%v", res.Errors)
}

func TestNewRegistry_DefaultsWhenUnset(t *testing.T) {
	reg, err := newRegistry(&config.BridgeConfig{})
	require.NoError(t, err)
	require.Len(t, reg.ChainIDs(), 6)
	_, ok := reg.Asset("WBTC")
	require.True(t, ok)

	// configuring only chains keeps the built-in assets
	reg, err = newRegistry(&config.BridgeConfig{
		Chains: map[string]config.ChainConfig{"ethereum": {}, "polygon": {}},
	})
	require.NoError(t, err)
	require.Equal(t, []bridge.ChainID{"ethereum", "polygon"}, reg.ChainIDs())
	require.Len(t, reg.Assets(), 5)
}

func TestNewRegistry_Routes(t *testing.T) {
	reg, err := newRegistry(&config.BridgeConfig{
		Chains: map[string]config.ChainConfig{"ethereum": {}, "polygon": {}, "bsc": {}},
		Routes: []config.RouteConfig{{Source: "Ethereum", Target: "polygon", Assets: []string{"usdc"}}},
	})
	require.NoError(t, err)
	require.True(t, reg.Bridgeable("ethereum", "polygon", "USDC"))
	require.False(t, reg.Bridgeable("ethereum", "polygon", "ETH"))
	require.False(t, reg.SupportsPair("polygon", "ethereum"))
}

func TestNewSignerRegistry_PublicKey(t *testing.T) {
	kp, err := keys.Derive(signature.SchemeECDSA, "C", []byte(devSeed))
	require.NoError(t, err)

	reg, err := newSignerRegistry([]config.SignerConfig{
		{ID: "C", Scheme: "ECDSA", PublicKey: kp.PublicKeyHex()},
	})
	require.NoError(t, err)
	s, ok := reg.Lookup("C")
	require.True(t, ok)
	require.Equal(t, kp.PublicKey, s.PublicKey)
}

func TestNewSignerRegistry_AppliesRevocations(t *testing.T) {
	reg, err := newSignerRegistry([]config.SignerConfig{
		{ID: "A", Scheme: "secp256k1", DevSeed: devSeed},
		{ID: "B", Scheme: "ed25519", DevSeed: devSeed, Revoked: true},
	})
	require.NoError(t, err)
	require.True(t, reg.Active("A"))
	require.False(t, reg.Active("B"))
	_, ok := reg.Lookup("B")
	require.True(t, ok, "a revoked signer stays registered")
}

func TestSeedPools_SkipsFundedPools(t *testing.T) {
	ctx := context.Background()
	m := liquidity.NewManager(zap.NewNop())
	key := bridge.NewPoolKey("ethereum", "polygon", "usdc")
	_, err := m.Deposit(ctx, key, decimal.NewFromInt(42))
	require.NoError(t, err)

	err = seedPools(ctx, []config.PoolConfig{
		{Source: "ethereum", Target: "polygon", Asset: "usdc", Liquidity: "5000"},
		{Source: "polygon", Target: "ethereum", Asset: "usdc", Liquidity: "700"},
		{Source: "bsc", Target: "ethereum", Asset: "usdc"},
	}, m, zap.NewNop())
	require.NoError(t, err)

	funded, err := m.Available(key)
	require.NoError(t, err)
	require.True(t, funded.Equal(decimal.NewFromInt(42)), "funded pool was topped up: %s", funded)

	seeded, err := m.Available(bridge.NewPoolKey("polygon", "ethereum", "usdc"))
	require.NoError(t, err)
	require.True(t, seeded.Equal(decimal.NewFromInt(700)))

	require.Len(t, m.Snapshots(), 2)
}

func TestRouter_HealthReadyAndAPI(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	c, err := build(ctx, cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.close()

	h := newRouter(cfg, c.service, c.engine, zap.NewNop())
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	require.Equal(t, http.StatusOK, get("/health").Code)
	rec := get("/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "NOT_READY", rec.Body.String())

	require.NoError(t, c.engine.Start(ctx))
	defer c.engine.Stop()
	require.Equal(t, http.StatusOK, get("/ready").Code)
	require.Equal(t, http.StatusOK, get("/metrics").Code)

	rec = get("/api/v1/pools")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Pools []liquidity.PoolSnapshot `json:"pools"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&body))
	require.Len(t, body.Pools, 1)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Monitoring.Enabled = false
	c, err := build(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.close()

	rec := httptest.NewRecorder()
	newRouter(cfg, c.service, c.engine, zap.NewNop()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_OperatorRoutes(t *testing.T) {
	deposit := func(h http.Handler, token string) *httptest.ResponseRecorder {
		body := `{"sourceChain":"ethereum","targetChain":"polygon","asset":"usdc","amount":"250"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pools/deposit", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(settlement.OperatorTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	cfg := testConfig()
	c, err := build(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.close()
	require.Equal(t, http.StatusForbidden, deposit(newRouter(cfg, c.service, c.engine, zap.NewNop()), "anything").Code)

	cfg.Settlement.OperatorToken = "s3cret"
	h := newRouter(cfg, c.service, c.engine, zap.NewNop())
	require.Equal(t, http.StatusForbidden, deposit(h, "").Code)
	rec := deposit(h, "s3cret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	available, err := c.pools.Available(bridge.NewPoolKey("ethereum", "polygon", "usdc"))
	require.NoError(t, err)
	require.True(t, available.Equal(decimal.NewFromInt(5250)), "available %s", available)
}
