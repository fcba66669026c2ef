package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

// SimulatedConfig controls how quickly simulated transactions finalize.
type SimulatedConfig struct {
	BlockTime     time.Duration `mapstructure:"block_time" default:"2s"`
	Confirmations int           `mapstructure:"confirmations" default:"1"`
}

type simTx struct {
	transferID  string
	submittedAt time.Time
	revertedBy  string
}

// Simulated is an in-process chain adapter for development and tests. Transaction
// hashes are deterministic per chain and nonce; confirmations arrive after
// BlockTime * Confirmations.
type Simulated struct {
	chain  bridge.ChainID
	cfg    SimulatedConfig
	logger *zap.Logger

	mu     sync.Mutex
	nonce  uint64
	txs    map[string]*simTx
	reject func(*transfer.Transfer) error
}

// SimulatedOption configures a Simulated adapter.
type SimulatedOption func(*Simulated)

// WithRejectFunc makes LockFunds fail whenever fn returns an error.
func WithRejectFunc(fn func(*transfer.Transfer) error) SimulatedOption {
	return func(s *Simulated) {
		s.reject = fn
	}
}

// NewSimulated creates a simulated adapter for chain.
func NewSimulated(chain bridge.ChainID, cfg SimulatedConfig, logger *zap.Logger, opts ...SimulatedOption) (*Simulated, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set simulated chain defaults: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulated{
		chain:  bridge.NormalizeChain(string(chain)),
		cfg:    cfg,
		logger: logger.With(zap.String("chain", string(chain))),
		txs:    make(map[string]*simTx),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LockFunds records a synthetic lock transaction and returns its hash.
func (s *Simulated) LockFunds(_ context.Context, t *transfer.Transfer) (string, error) {
	if t.SourceChain != s.chain {
		return "", fmt.Errorf("transfer %s is from %s, adapter serves %s", t.ID, t.SourceChain, s.chain)
	}
	if s.reject != nil {
		if err := s.reject(t); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce++
	hash := syntheticHash(string(s.chain), s.nonce, t.Payload())
	s.txs[hash] = &simTx{transferID: t.ID, submittedAt: time.Now()}

	s.logger.Info("Simulated lock submitted",
		zap.String("transfer_id", t.ID),
		zap.String("tx_hash", hash),
		zap.Uint64("nonce", s.nonce))
	return hash, nil
}

// Revert marks txHash as failed on chain. It reports whether the hash is known.
func (s *Simulated) Revert(txHash, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[txHash]
	if !ok {
		return false
	}
	if reason == "" {
		reason = "execution reverted"
	}
	tx.revertedBy = reason
	return true
}

// AwaitConfirmation blocks until the transaction has its confirmations or ctx ends.
func (s *Simulated) AwaitConfirmation(ctx context.Context, _ bridge.ChainID, txHash string) (transfer.Confirmation, error) {
	s.mu.Lock()
	tx, ok := s.txs[txHash]
	var submitted time.Time
	if ok {
		submitted = tx.submittedAt
	}
	s.mu.Unlock()
	if !ok {
		return transfer.Confirmation{Status: transfer.ConfirmationFailed, Reason: "unknown transaction " + txHash}, nil
	}

	finalAt := submitted.Add(s.cfg.BlockTime * time.Duration(s.cfg.Confirmations))
	if wait := time.Until(finalAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return transfer.Confirmation{}, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	reverted := tx.revertedBy
	s.mu.Unlock()
	if reverted != "" {
		return transfer.Confirmation{Status: transfer.ConfirmationFailed, Reason: reverted}, nil
	}
	return transfer.Confirmation{
		Status:       transfer.ConfirmationConfirmed,
		TargetTxHash: syntheticHash("target", 0, []byte(txHash)),
	}, nil
}

func syntheticHash(domain string, nonce uint64, data []byte) string {
	n := make([]byte, 8)
	binary.BigEndian.PutUint64(n, nonce)
	return crypto.Keccak256Hash([]byte(domain), n, data).Hex()
}
