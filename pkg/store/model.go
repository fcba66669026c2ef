package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

// TransferDao maps to the 'transfers' table.
type TransferDao struct {
	bun.BaseModel      `bun:"table:transfers,alias:t"`
	ID                 string                  `bun:"id,pk,type:varchar(128)"`
	SourceChain        string                  `bun:"source_chain,notnull,type:varchar(64)"`
	TargetChain        string                  `bun:"target_chain,notnull,type:varchar(64)"`
	Asset              string                  `bun:"asset,notnull,type:varchar(32)"`
	Amount             string                  `bun:"amount,notnull,type:numeric(38,18)"`
	SourceAddress      string                  `bun:"source_address,notnull,type:varchar(255)"`
	TargetAddress      string                  `bun:"target_address,notnull,type:varchar(255)"`
	RequiredSignatures int                     `bun:"required_signatures,notnull"`
	TotalSigners       int                     `bun:"total_signers,notnull"`
	DesignatedSigners  []string                `bun:"designated_signers,array"`
	Status             string                  `bun:"status,notnull,type:varchar(16)"`
	Fee                string                  `bun:"fee,notnull,type:numeric(38,18)"`
	SlippageEstimate   string                  `bun:"slippage_estimate,notnull,type:numeric(38,18)"`
	ReservationID      *string                 `bun:"reservation_id,type:varchar(64)"`
	SourceTxHash       *string                 `bun:"source_tx_hash,type:varchar(128)"`
	TargetTxHash       *string                 `bun:"target_tx_hash,type:varchar(128)"`
	FailureReason      *string                 `bun:"failure_reason,type:text"`
	CancellationReason *string                 `bun:"cancellation_reason,type:text"`
	Escalated          bool                    `bun:"escalated,notnull,default:false"`
	Events             []transfer.HistoryEvent `bun:"events,type:jsonb"`
	CreatedAt          time.Time               `bun:"created_at,notnull"`
	UpdatedAt          time.Time               `bun:"updated_at,notnull"`
	ExecutingSince     *time.Time              `bun:"executing_since"`
	CompletedAt        *time.Time              `bun:"completed_at"`
}

// SignatureDao maps to the 'transfer_signatures' table. One row per signer per transfer.
type SignatureDao struct {
	bun.BaseModel `bun:"table:transfer_signatures,alias:ts"`
	TransferID    string    `bun:"transfer_id,pk,type:varchar(128)"`
	SignerID      string    `bun:"signer_id,pk,type:varchar(128)"`
	Scheme        string    `bun:"scheme,notnull,type:varchar(16)"`
	Signature     []byte    `bun:"signature,notnull,type:bytea"`
	VerifiedAt    time.Time `bun:"verified_at,notnull"`
}

// PoolDao maps to the 'liquidity_pools' table.
type PoolDao struct {
	bun.BaseModel `bun:"table:liquidity_pools,alias:lp"`
	PoolKey       string    `bun:"pool_key,pk,type:varchar(200)"`
	SourceChain   string    `bun:"source_chain,notnull,type:varchar(64)"`
	TargetChain   string    `bun:"target_chain,notnull,type:varchar(64)"`
	Asset         string    `bun:"asset,notnull,type:varchar(32)"`
	Total         string    `bun:"total_liquidity,notnull,type:numeric(38,18)"`
	Reserved      string    `bun:"reserved_liquidity,notnull,type:numeric(38,18)"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// ReservationDao maps to the 'liquidity_reservations' table.
type ReservationDao struct {
	bun.BaseModel `bun:"table:liquidity_reservations,alias:lr"`
	ID            string    `bun:"id,pk,type:varchar(64)"`
	PoolKey       string    `bun:"pool_key,notnull,type:varchar(200)"`
	Amount        string    `bun:"amount,notnull,type:numeric(38,18)"`
	Status        string    `bun:"status,notnull,type:varchar(16)"`
	TransferID    *string   `bun:"transfer_id,type:varchar(128)"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toTransferDao(t *transfer.Transfer) *TransferDao {
	return &TransferDao{
		ID:                 t.ID,
		SourceChain:        string(t.SourceChain),
		TargetChain:        string(t.TargetChain),
		Asset:              t.Asset,
		Amount:             t.Amount.String(),
		SourceAddress:      t.SourceAddress,
		TargetAddress:      t.TargetAddress,
		RequiredSignatures: t.RequiredSignatures,
		TotalSigners:       t.TotalSigners,
		DesignatedSigners:  t.DesignatedSigners,
		Status:             t.Status.String(),
		Fee:                t.Fee.String(),
		SlippageEstimate:   t.SlippageEstimate.String(),
		ReservationID:      optional(t.ReservationID),
		SourceTxHash:       optional(t.SourceTxHash),
		TargetTxHash:       optional(t.TargetTxHash),
		FailureReason:      optional(t.FailureReason),
		CancellationReason: optional(t.CancellationReason),
		Escalated:          t.Escalated,
		Events:             t.Events,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		ExecutingSince:     t.ExecutingSince,
		CompletedAt:        t.CompletedAt,
	}
}

func toSignatureDaos(t *transfer.Transfer) []SignatureDao {
	out := make([]SignatureDao, 0, len(t.Signatures))
	for _, id := range t.SignerIDs() {
		sig := t.Signatures[id]
		out = append(out, SignatureDao{
			TransferID: t.ID,
			SignerID:   sig.SignerID,
			Scheme:     sig.Scheme.String(),
			Signature:  sig.Bytes,
			VerifiedAt: sig.VerifiedAt,
		})
	}
	return out
}

func toTransfer(dao *TransferDao, sigs []SignatureDao) (*transfer.Transfer, error) {
	status, err := transfer.ParseStatus(dao.Status)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(dao.Amount)
	if err != nil {
		return nil, fmt.Errorf("transfer %s amount: %w", dao.ID, err)
	}
	fee, err := decimal.NewFromString(dao.Fee)
	if err != nil {
		return nil, fmt.Errorf("transfer %s fee: %w", dao.ID, err)
	}
	slippage, err := decimal.NewFromString(dao.SlippageEstimate)
	if err != nil {
		return nil, fmt.Errorf("transfer %s slippage: %w", dao.ID, err)
	}

	t := &transfer.Transfer{
		ID:                 dao.ID,
		SourceChain:        bridge.ChainID(dao.SourceChain),
		TargetChain:        bridge.ChainID(dao.TargetChain),
		Asset:              dao.Asset,
		Amount:             amount,
		SourceAddress:      dao.SourceAddress,
		TargetAddress:      dao.TargetAddress,
		RequiredSignatures: dao.RequiredSignatures,
		TotalSigners:       dao.TotalSigners,
		DesignatedSigners:  dao.DesignatedSigners,
		Status:             status,
		Fee:                fee,
		SlippageEstimate:   slippage,
		Signatures:         make(map[string]transfer.Signature, len(sigs)),
		ReservationID:      deref(dao.ReservationID),
		SourceTxHash:       deref(dao.SourceTxHash),
		TargetTxHash:       deref(dao.TargetTxHash),
		FailureReason:      deref(dao.FailureReason),
		CancellationReason: deref(dao.CancellationReason),
		Escalated:          dao.Escalated,
		Events:             dao.Events,
		CreatedAt:          dao.CreatedAt,
		UpdatedAt:          dao.UpdatedAt,
		ExecutingSince:     dao.ExecutingSince,
		CompletedAt:        dao.CompletedAt,
	}
	for _, s := range sigs {
		scheme, err := signature.ParseScheme(s.Scheme)
		if err != nil {
			return nil, fmt.Errorf("transfer %s signer %s: %w", dao.ID, s.SignerID, err)
		}
		t.Signatures[s.SignerID] = transfer.Signature{
			SignerID:   s.SignerID,
			Scheme:     scheme,
			Bytes:      s.Signature,
			VerifiedAt: s.VerifiedAt,
		}
	}
	return t, nil
}

func toPoolDao(p liquidity.PoolSnapshot) *PoolDao {
	return &PoolDao{
		PoolKey:     p.Key.String(),
		SourceChain: string(p.Key.SourceChain),
		TargetChain: string(p.Key.TargetChain),
		Asset:       p.Key.Asset,
		Total:       p.Total.String(),
		Reserved:    p.Reserved.String(),
		UpdatedAt:   p.UpdatedAt,
	}
}

func toPoolSnapshot(dao *PoolDao) (liquidity.PoolSnapshot, error) {
	total, err := decimal.NewFromString(dao.Total)
	if err != nil {
		return liquidity.PoolSnapshot{}, fmt.Errorf("pool %s total: %w", dao.PoolKey, err)
	}
	reserved, err := decimal.NewFromString(dao.Reserved)
	if err != nil {
		return liquidity.PoolSnapshot{}, fmt.Errorf("pool %s reserved: %w", dao.PoolKey, err)
	}
	return liquidity.PoolSnapshot{
		Key:       bridge.NewPoolKey(dao.SourceChain, dao.TargetChain, dao.Asset),
		Total:     total,
		Reserved:  reserved,
		Available: total.Sub(reserved),
		UpdatedAt: dao.UpdatedAt,
	}, nil
}

func toReservationDao(r *liquidity.Reservation) *ReservationDao {
	return &ReservationDao{
		ID:         r.ID,
		PoolKey:    r.Pool.String(),
		Amount:     r.Amount.String(),
		Status:     string(r.Status),
		TransferID: optional(r.TransferID),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func toReservation(dao *ReservationDao) (liquidity.Reservation, error) {
	key, err := bridge.ParsePoolKey(dao.PoolKey)
	if err != nil {
		return liquidity.Reservation{}, err
	}
	amount, err := decimal.NewFromString(dao.Amount)
	if err != nil {
		return liquidity.Reservation{}, fmt.Errorf("reservation %s amount: %w", dao.ID, err)
	}
	status, err := liquidity.ParseReservationStatus(dao.Status)
	if err != nil {
		return liquidity.Reservation{}, err
	}
	return liquidity.Reservation{
		ID:         dao.ID,
		Pool:       key,
		Amount:     amount,
		Status:     status,
		TransferID: deref(dao.TransferID),
		CreatedAt:  dao.CreatedAt,
		UpdatedAt:  dao.UpdatedAt,
	}, nil
}
