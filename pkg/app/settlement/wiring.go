package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/chain"
	"github.com/chainsafe/bridge-settlement/pkg/config"
	"github.com/chainsafe/bridge-settlement/pkg/keys"
	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
	"github.com/chainsafe/bridge-settlement/pkg/validation"
)

// parseDecimal parses an optional config decimal. Empty yields zero.
func parseDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", field, value)
	}
	return d, nil
}

// newRegistry builds the chain and asset catalog. Sections left empty in the config
// are taken from the built-in registry.
func newRegistry(cfg *config.BridgeConfig) (*validation.Registry, error) {
	if len(cfg.Chains) == 0 && len(cfg.Assets) == 0 && len(cfg.Routes) == 0 {
		return validation.DefaultRegistry(), nil
	}
	builtin := validation.DefaultRegistry()

	var errs []error
	var chains []validation.Chain
	if len(cfg.Chains) == 0 {
		for _, id := range builtin.ChainIDs() {
			c, _ := builtin.Chain(id)
			chains = append(chains, c)
		}
	}
	for name, c := range cfg.Chains {
		congestion, err := parseDecimal("bridge.chains."+name+".congestion", c.Congestion)
		errs = append(errs, err)
		gas, err := parseDecimal("bridge.chains."+name+".gas_fee", c.GasFee)
		errs = append(errs, err)
		chains = append(chains, validation.Chain{
			ID:         bridge.NormalizeChain(name),
			BlockTime:  c.BlockTime,
			Congestion: congestion,
			GasFee:     gas,
		})
	}

	var assets []validation.Asset
	if len(cfg.Assets) == 0 {
		assets = builtin.Assets()
	}
	for symbol, a := range cfg.Assets {
		field := "bridge.assets." + symbol
		lo, err := parseDecimal(field+".min_amount", a.MinAmount)
		errs = append(errs, err)
		hi, err := parseDecimal(field+".max_amount", a.MaxAmount)
		errs = append(errs, err)
		mult, err := parseDecimal(field+".fee_multiplier", a.FeeMultiplier)
		errs = append(errs, err)
		if !hi.IsZero() && hi.LessThan(lo) {
			errs = append(errs, fmt.Errorf("%s: max_amount below min_amount", field))
		}
		assets = append(assets, validation.Asset{
			Symbol:        symbol,
			Decimals:      a.Decimals,
			Min:           lo,
			Max:           hi,
			FeeMultiplier: mult,
		})
	}

	routes := make([]validation.Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, validation.Route{
			Source: bridge.NormalizeChain(r.Source),
			Target: bridge.NormalizeChain(r.Target),
			Assets: r.Assets,
		})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return validation.NewRegistry(chains, assets, routes), nil
}

func newEstimator(cfg *config.BridgeConfig, registry *validation.Registry) (*validation.Estimator, error) {
	rate, err := parseDecimal("bridge.base_fee_rate", cfg.BaseFeeRate)
	if err != nil {
		return nil, err
	}
	gas, err := parseDecimal("bridge.default_gas_fee", cfg.DefaultGasFee)
	if err != nil {
		return nil, err
	}
	return validation.NewEstimator(registry, nil, rate, gas, cfg.ProcessingTime), nil
}

func newPipelineConfig(cfg *config.BridgeConfig) (validation.Config, error) {
	buffer, err1 := parseDecimal("bridge.liquidity_buffer_threshold", cfg.LiquidityBufferThreshold)
	slippage, err2 := parseDecimal("bridge.slippage_warning_pct", cfg.SlippageWarningPct)
	thin, err3 := parseDecimal("bridge.thin_liquidity_ratio", cfg.ThinLiquidityRatio)
	if err := errors.Join(err1, err2, err3); err != nil {
		return validation.Config{}, err
	}
	return validation.Config{
		LiquidityBufferThreshold: buffer,
		SlippageWarningPct:       slippage,
		ThinLiquidityRatio:       thin,
		TTL:                      cfg.ValidationTTL,
	}, nil
}

// newSignerRegistry registers the configured signers. A signer without a public key
// gets one derived from its dev seed. Signers marked revoked are registered revoked.
func newSignerRegistry(signers []config.SignerConfig) (*signature.Registry, error) {
	entries := make([]signature.Signer, 0, len(signers))
	for _, s := range signers {
		scheme, err := signature.ParseScheme(s.Scheme)
		if err != nil {
			return nil, fmt.Errorf("signer %s: %w", s.ID, err)
		}
		if s.PublicKey != "" {
			pub, err := signature.DecodeHex(s.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("signer %s public key: %w", s.ID, err)
			}
			entries = append(entries, signature.Signer{ID: s.ID, Scheme: scheme, PublicKey: pub})
			continue
		}
		kp, err := keys.Derive(scheme, s.ID, []byte(s.DevSeed))
		if err != nil {
			return nil, fmt.Errorf("signer %s dev key: %w", s.ID, err)
		}
		entries = append(entries, kp.Signer(s.ID))
	}
	registry, err := signature.NewRegistry(entries...)
	if err != nil {
		return nil, err
	}
	for _, s := range signers {
		if !s.Revoked {
			continue
		}
		if err := registry.Revoke(s.ID); err != nil {
			return nil, fmt.Errorf("revoke signer %s: %w", s.ID, err)
		}
	}
	return registry, nil
}

// seedPools deposits the configured liquidity into pools that hold none yet, so a
// restart with restored balances does not top them up again.
func seedPools(ctx context.Context, pools []config.PoolConfig, m *liquidity.Manager, logger *zap.Logger) error {
	for _, p := range pools {
		key := bridge.NewPoolKey(p.Source, p.Target, p.Asset)
		amount, err := parseDecimal("bridge.pools."+key.String()+".liquidity", p.Liquidity)
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			continue
		}
		if snap, err := m.Snapshot(key); err == nil && snap.Total.IsPositive() {
			logger.Debug("Pool already funded, skipping seed", zap.String("pool", key.String()))
			continue
		}
		if _, err := m.Deposit(ctx, key, amount); err != nil {
			return fmt.Errorf("seed pool %s: %w", key, err)
		}
	}
	return nil
}

type closer interface {
	Close()
}

// adapters holds the per-chain adapters behind one router.
type adapters struct {
	router  *chain.Router
	closers []closer
}

func (a *adapters) close() {
	for _, c := range a.closers {
		c.Close()
	}
}

// newAdapters registers an adapter per known chain: an EVM adapter where the chain
// has an evm section, the simulated adapter otherwise or when simulated_chains is set.
func newAdapters(cfg *config.Config, registry *validation.Registry, logger *zap.Logger) (*adapters, error) {
	decimals := make(map[string]int32)
	for symbol, a := range cfg.Bridge.Assets {
		decimals[bridge.NormalizeAsset(symbol)] = a.Decimals
	}
	for _, a := range registry.Assets() {
		if _, ok := decimals[a.Symbol]; !ok {
			decimals[a.Symbol] = a.Decimals
		}
	}

	out := &adapters{router: chain.NewRouter()}
	evmChains := make(map[bridge.ChainID]*config.EVMConfig)
	if !cfg.Settlement.SimulatedChains {
		for name, c := range cfg.Bridge.Chains {
			if c.EVM != nil {
				evmChains[bridge.NormalizeChain(name)] = c.EVM
			}
		}
	}

	ids := registry.ChainIDs()
	for _, id := range ids {
		if evmCfg, ok := evmChains[id]; ok {
			adapter, err := chain.NewEVM(id, evmCfg, decimals, logger.Named("evm"))
			if err != nil {
				out.close()
				return nil, fmt.Errorf("connect %s adapter: %w", id, err)
			}
			out.router.Register(id, adapter)
			out.closers = append(out.closers, adapter)
			continue
		}

		blockTime := cfg.Bridge.Chains[string(id)].BlockTime
		if c, ok := registry.Chain(id); ok && blockTime <= 0 {
			blockTime = c.BlockTime
		}
		sim, err := chain.NewSimulated(id, chain.SimulatedConfig{BlockTime: blockTime}, logger.Named("simulated"))
		if err != nil {
			out.close()
			return nil, fmt.Errorf("create simulated %s adapter: %w", id, err)
		}
		out.router.Register(id, sim)
	}
	logger.Info("Chain adapters registered",
		zap.Int("evm", len(out.closers)),
		zap.Int("total", len(ids)))
	return out, nil
}
