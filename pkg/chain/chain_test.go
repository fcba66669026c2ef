package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/config"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

func testTransfer(id string) *transfer.Transfer {
	return &transfer.Transfer{
		ID:            id,
		SourceChain:   "ethereum",
		TargetChain:   "polygon",
		Asset:         "USDC",
		Amount:        decimal.RequireFromString("12.5"),
		SourceAddress: "0x1111111111111111111111111111111111111111",
		TargetAddress: "0x2222222222222222222222222222222222222222",
	}
}

func newSimulated(t *testing.T, opts ...SimulatedOption) *Simulated {
	t.Helper()
	s, err := NewSimulated("ethereum", SimulatedConfig{BlockTime: time.Millisecond}, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s
}

func TestSimulated_LockAndConfirm(t *testing.T) {
	ctx := context.Background()
	s := newSimulated(t)

	h1, err := s.LockFunds(ctx, testTransfer("t1"))
	require.NoError(t, err)
	h2, err := s.LockFunds(ctx, testTransfer("t1"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "each lock gets its own nonce")
	assert.True(t, isHexHash(h1))

	conf, err := s.AwaitConfirmation(ctx, "ethereum", h1)
	require.NoError(t, err)
	assert.Equal(t, transfer.ConfirmationConfirmed, conf.Status)
	assert.True(t, isHexHash(conf.TargetTxHash))
}

func TestSimulated_RevertAndUnknown(t *testing.T) {
	ctx := context.Background()
	s := newSimulated(t)

	h, err := s.LockFunds(ctx, testTransfer("t1"))
	require.NoError(t, err)
	require.True(t, s.Revert(h, "out of gas"))
	assert.False(t, s.Revert("0xdead", ""))

	conf, err := s.AwaitConfirmation(ctx, "ethereum", h)
	require.NoError(t, err)
	assert.Equal(t, transfer.ConfirmationFailed, conf.Status)
	assert.Equal(t, "out of gas", conf.Reason)

	conf, err = s.AwaitConfirmation(ctx, "ethereum", "0xdead")
	require.NoError(t, err)
	assert.Equal(t, transfer.ConfirmationFailed, conf.Status)
}

func TestSimulated_RejectsWrongChainAndRejectFunc(t *testing.T) {
	ctx := context.Background()
	s := newSimulated(t, WithRejectFunc(func(tr *transfer.Transfer) error {
		if tr.Amount.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("exceeds daily cap")
		}
		return nil
	}))

	other := testTransfer("t1")
	other.SourceChain = "bsc"
	_, err := s.LockFunds(ctx, other)
	require.Error(t, err)

	large := testTransfer("t2")
	large.Amount = decimal.NewFromInt(1000)
	_, err = s.LockFunds(ctx, large)
	require.EqualError(t, err, "exceeds daily cap")
}

func TestSimulated_AwaitHonoursContext(t *testing.T) {
	s, err := NewSimulated("ethereum", SimulatedConfig{BlockTime: time.Hour}, zap.NewNop())
	require.NoError(t, err)
	h, err := s.LockFunds(context.Background(), testTransfer("t1"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.AwaitConfirmation(ctx, "ethereum", h)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRouter_Dispatch(t *testing.T) {
	ctx := context.Background()
	r := NewRouter()
	eth := newSimulated(t)
	r.Register("Ethereum", eth)
	assert.Equal(t, []bridge.ChainID{"ethereum"}, r.Chains())

	h, err := r.LockFunds(ctx, testTransfer("t1"))
	require.NoError(t, err)
	conf, err := r.AwaitConfirmation(ctx, "ethereum", h)
	require.NoError(t, err)
	assert.Equal(t, transfer.ConfirmationConfirmed, conf.Status)

	other := testTransfer("t2")
	other.SourceChain = "solana"
	_, err = r.LockFunds(ctx, other)
	assert.ErrorIs(t, err, ErrUnsupportedChain)
	_, err = r.AwaitConfirmation(ctx, "solana", h)
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

type fakeReceipts struct {
	receipt *types.Receipt
	head    uint64
	err     error
}

func (f *fakeReceipts) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeReceipts) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func TestEVM_CheckReceipt(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0x01")
	receipts := &fakeReceipts{}
	e := &EVM{
		chain:    "ethereum",
		cfg:      &config.EVMConfig{Confirmations: 3, PollingInterval: time.Millisecond},
		logger:   zap.NewNop(),
		receipts: receipts,
	}

	_, done, err := e.checkReceipt(ctx, hash)
	require.NoError(t, err)
	assert.False(t, done, "pending tx")

	receipts.receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}
	receipts.head = 101
	_, done, err = e.checkReceipt(ctx, hash)
	require.NoError(t, err)
	assert.False(t, done, "two confirmations of three")

	receipts.head = 102
	conf, done, err := e.checkReceipt(ctx, hash)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, transfer.ConfirmationConfirmed, conf.Status)

	receipts.receipt = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}
	conf, done, err = e.checkReceipt(ctx, hash)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, transfer.ConfirmationFailed, conf.Status)

	receipts.err = errors.New("connection refused")
	_, done, err = e.checkReceipt(ctx, hash)
	assert.Error(t, err)
	assert.False(t, done)
}

func TestEVM_AwaitConfirmationMalformedHash(t *testing.T) {
	e := &EVM{cfg: &config.EVMConfig{PollingInterval: time.Millisecond}, logger: zap.NewNop(), receipts: &fakeReceipts{}}
	conf, err := e.AwaitConfirmation(context.Background(), "ethereum", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, transfer.ConfirmationFailed, conf.Status)
}

func TestToBaseUnits(t *testing.T) {
	got, err := toBaseUnits(decimal.RequireFromString("12.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, "12500000", got.String())

	_, err = toBaseUnits(decimal.RequireFromString("0.0000001"), 6)
	assert.Error(t, err)
	_, err = toBaseUnits(decimal.Zero, 6)
	assert.Error(t, err)
}
