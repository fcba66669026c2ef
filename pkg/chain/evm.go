package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/config"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

// lockABI is the bridge contract entry point used to lock funds on an EVM source chain.
const lockABI = `[{"inputs":[
	{"internalType":"bytes32","name":"transferId","type":"bytes32"},
	{"internalType":"address","name":"token","type":"address"},
	{"internalType":"uint256","name":"amount","type":"uint256"},
	{"internalType":"string","name":"targetChain","type":"string"},
	{"internalType":"string","name":"recipient","type":"string"}],
	"name":"lock","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// receiptReader is the part of an EVM node AwaitConfirmation needs.
type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EVM is a chain adapter that locks funds through the bridge contract of an EVM chain.
type EVM struct {
	chain    bridge.ChainID
	cfg      *config.EVMConfig
	decimals map[string]int32
	logger   *zap.Logger

	client     *ethclient.Client
	receipts   receiptReader
	contract   *bind.BoundContract
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewEVM dials the node in cfg. decimals maps asset symbols to their on-chain decimals.
func NewEVM(chain bridge.ChainID, cfg *config.EVMConfig, decimals map[string]int32, logger *zap.Logger) (*EVM, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", chain, err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(lockABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse bridge ABI: %w", err)
	}
	bridgeAddress := common.HexToAddress(cfg.BridgeContract)
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 5 * time.Second
	}

	logger.Info("Connected to EVM chain",
		zap.String("chain", string(chain)),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("bridge_contract", bridgeAddress.Hex()),
		zap.String("sender", address.Hex()))

	return &EVM{
		chain:      chain,
		cfg:        cfg,
		decimals:   decimals,
		logger:     logger.With(zap.String("chain", string(chain))),
		client:     client,
		receipts:   client,
		contract:   bind.NewBoundContract(bridgeAddress, parsed, client, client, client),
		privateKey: privateKey,
		address:    address,
	}, nil
}

// Close closes the node connection.
func (e *EVM) Close() {
	if e.client != nil {
		e.client.Close()
	}
}

// LockFunds submits the lock transaction and returns its hash without waiting for it.
func (e *EVM) LockFunds(ctx context.Context, t *transfer.Transfer) (string, error) {
	token, ok := e.cfg.Tokens[t.Asset]
	if !ok {
		return "", fmt.Errorf("no token contract for %s on %s", t.Asset, e.chain)
	}
	decimals, ok := e.decimals[t.Asset]
	if !ok {
		return "", fmt.Errorf("unknown decimals for %s", t.Asset)
	}
	amount, err := toBaseUnits(t.Amount, decimals)
	if err != nil {
		return "", err
	}

	auth, err := e.transactor(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create transactor: %w", err)
	}

	tx, err := e.contract.Transact(auth, "lock",
		crypto.Keccak256Hash([]byte(t.ID)),
		common.HexToAddress(token),
		amount,
		string(t.TargetChain),
		t.TargetAddress,
	)
	if err != nil {
		return "", fmt.Errorf("failed to submit lock transaction: %w", err)
	}

	e.logger.Info("Lock transaction submitted",
		zap.String("transfer_id", t.ID),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("amount", amount.String()),
		zap.Uint64("nonce", tx.Nonce()))
	return tx.Hash().Hex(), nil
}

// AwaitConfirmation polls for the receipt of txHash and waits for the configured
// number of confirmations on top of it.
func (e *EVM) AwaitConfirmation(ctx context.Context, _ bridge.ChainID, txHash string) (transfer.Confirmation, error) {
	if !isHexHash(txHash) {
		return transfer.Confirmation{Status: transfer.ConfirmationFailed, Reason: "malformed tx hash " + txHash}, nil
	}
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(e.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		conf, done, err := e.checkReceipt(ctx, hash)
		if err != nil {
			e.logger.Warn("Failed to check receipt", zap.String("tx_hash", txHash), zap.Error(err))
		}
		if done {
			return conf, nil
		}
		select {
		case <-ctx.Done():
			return transfer.Confirmation{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkReceipt reports done once the receipt is final. A missing receipt is not an error.
func (e *EVM) checkReceipt(ctx context.Context, hash common.Hash) (transfer.Confirmation, bool, error) {
	receipt, err := e.receipts.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return transfer.Confirmation{}, false, nil
	}
	if err != nil {
		return transfer.Confirmation{}, false, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return transfer.Confirmation{Status: transfer.ConfirmationFailed, Reason: "lock transaction reverted"}, true, nil
	}

	latest, err := e.receipts.BlockNumber(ctx)
	if err != nil {
		return transfer.Confirmation{}, false, err
	}
	mined := receipt.BlockNumber.Uint64()
	if latest < mined || latest-mined+1 < e.cfg.Confirmations {
		return transfer.Confirmation{}, false, nil
	}
	// the release on the target chain is reported separately through Complete
	return transfer.Confirmation{Status: transfer.ConfirmationConfirmed}, true, nil
}

func (e *EVM) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(e.privateKey, big.NewInt(e.cfg.ChainID))
	if err != nil {
		return nil, err
	}
	auth.Context = ctx

	nonce, err := e.client.PendingNonceAt(ctx, e.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = e.cfg.GasLimit

	if e.cfg.MaxGasPrice != "" {
		maxGasPrice, ok := new(big.Int).SetString(e.cfg.MaxGasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid max gas price %q", e.cfg.MaxGasPrice)
		}
		gasPrice, err := e.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		if gasPrice.Cmp(maxGasPrice) > 0 {
			e.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			gasPrice = maxGasPrice
		}
		auth.GasPrice = gasPrice
	}
	return auth, nil
}

// toBaseUnits converts a decimal amount to the token's smallest unit.
func toBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	if scaled.Sign() <= 0 {
		return nil, fmt.Errorf("amount %s must be positive", amount)
	}
	return scaled.BigInt(), nil
}

func isHexHash(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 2+2*common.HashLength {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
