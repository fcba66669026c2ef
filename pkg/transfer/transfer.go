package transfer

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
)

// Signature is an accepted signer signature. At most one per signer per transfer.
type Signature struct {
	SignerID   string           `json:"signerId"`
	Scheme     signature.Scheme `json:"scheme"`
	Bytes      []byte           `json:"-"`
	VerifiedAt time.Time        `json:"verifiedAt"`
}

// HistoryEvent records one change in a transfer's lifecycle.
type HistoryEvent struct {
	Type    string    `json:"type"`
	From    Status    `json:"from,omitempty"`
	To      Status    `json:"to"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Transfer is a bridge transfer. Instances returned by the Machine are copies.
type Transfer struct {
	ID                 string
	SourceChain        bridge.ChainID
	TargetChain        bridge.ChainID
	Asset              string
	Amount             decimal.Decimal
	SourceAddress      string
	TargetAddress      string
	RequiredSignatures int
	TotalSigners       int
	DesignatedSigners  []string
	Status             Status
	Fee                decimal.Decimal
	SlippageEstimate   decimal.Decimal
	Signatures         map[string]Signature
	ReservationID      string
	SourceTxHash       string
	TargetTxHash       string
	FailureReason      string
	CancellationReason string
	Escalated          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ExecutingSince     *time.Time
	CompletedAt        *time.Time
	Events             []HistoryEvent
}

// PoolKey returns the liquidity pool the transfer draws from.
func (t *Transfer) PoolKey() bridge.PoolKey {
	return bridge.PoolKey{SourceChain: t.SourceChain, TargetChain: t.TargetChain, Asset: t.Asset}
}

// Payload returns the bytes every signer signs.
func (t *Transfer) Payload() []byte {
	return signature.Payload(
		t.ID,
		string(t.SourceChain),
		string(t.TargetChain),
		t.SourceAddress,
		t.TargetAddress,
		t.Asset,
		t.Amount.String(),
		strconv.Itoa(t.RequiredSignatures),
		strconv.Itoa(t.TotalSigners),
	)
}

// Designated reports whether signerID may sign this transfer. An empty designated
// list admits any registered signer.
func (t *Transfer) Designated(signerID string) bool {
	if len(t.DesignatedSigners) == 0 {
		return true
	}
	for _, id := range t.DesignatedSigners {
		if id == signerID {
			return true
		}
	}
	return false
}

// SignerIDs returns the ids of the collected signatures, sorted.
func (t *Transfer) SignerIDs() []string {
	ids := make([]string, 0, len(t.Signatures))
	for id := range t.Signatures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy.
func (t *Transfer) Clone() *Transfer {
	c := *t
	c.DesignatedSigners = append([]string(nil), t.DesignatedSigners...)
	c.Signatures = make(map[string]Signature, len(t.Signatures))
	for id, s := range t.Signatures {
		s.Bytes = append([]byte(nil), s.Bytes...)
		c.Signatures[id] = s
	}
	c.Events = append([]HistoryEvent(nil), t.Events...)
	if t.ExecutingSince != nil {
		v := *t.ExecutingSince
		c.ExecutingSince = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// View is the externally visible state of a transfer.
type View struct {
	TransferID          string          `json:"transferId"`
	SourceChain         bridge.ChainID  `json:"sourceChain"`
	TargetChain         bridge.ChainID  `json:"targetChain"`
	Asset               string          `json:"asset"`
	Amount              decimal.Decimal `json:"amount"`
	SourceAddress       string          `json:"sourceAddress"`
	TargetAddress       string          `json:"targetAddress"`
	Status              Status          `json:"status"`
	SignaturesCollected int             `json:"signaturesCollected"`
	SignaturesRequired  int             `json:"signaturesRequired"`
	TotalSigners        int             `json:"totalSigners"`
	SignatureProgress   int             `json:"signatureProgress"`
	Signers             []string        `json:"signers"`
	Fee                 decimal.Decimal `json:"fee"`
	SlippageEstimate    decimal.Decimal `json:"slippageEstimate"`
	ReservationID       string          `json:"liquidityReservationId,omitempty"`
	SourceTxHash        string          `json:"sourceTxHash,omitempty"`
	TargetTxHash        string          `json:"targetTxHash,omitempty"`
	FailureReason       string          `json:"failureReason,omitempty"`
	CancellationReason  string          `json:"cancellationReason,omitempty"`
	Escalated           bool            `json:"escalated"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`
	Events              []HistoryEvent  `json:"events"`
}

// View renders the transfer response. Progress is collected/required as a percentage, capped at 100.
func (t *Transfer) View() View {
	collected := len(t.Signatures)
	progress := 0
	if t.RequiredSignatures > 0 {
		progress = collected * 100 / t.RequiredSignatures
		if progress > 100 {
			progress = 100
		}
	}
	return View{
		TransferID:          t.ID,
		SourceChain:         t.SourceChain,
		TargetChain:         t.TargetChain,
		Asset:               t.Asset,
		Amount:              t.Amount,
		SourceAddress:       t.SourceAddress,
		TargetAddress:       t.TargetAddress,
		Status:              t.Status,
		SignaturesCollected: collected,
		SignaturesRequired:  t.RequiredSignatures,
		TotalSigners:        t.TotalSigners,
		SignatureProgress:   progress,
		Signers:             t.SignerIDs(),
		Fee:                 t.Fee,
		SlippageEstimate:    t.SlippageEstimate,
		ReservationID:       t.ReservationID,
		SourceTxHash:        t.SourceTxHash,
		TargetTxHash:        t.TargetTxHash,
		FailureReason:       t.FailureReason,
		CancellationReason:  t.CancellationReason,
		Escalated:           t.Escalated,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		CompletedAt:         t.CompletedAt,
		Events:              append([]HistoryEvent(nil), t.Events...),
	}
}
