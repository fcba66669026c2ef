// Package transfer owns the lifecycle of bridge transfers.
//
// A Machine serializes all operations on one transfer behind a per-transfer lock, so
// unrelated transfers never contend. Chain adapter calls are issued outside that lock;
// an in-flight flag keeps other mutations of the same transfer out until the outcome
// is recorded.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/internal/metrics"
	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
)

// history event types that are not transitions
const (
	eventSubmitted         = "submit"
	eventSignatureAdded    = "signature"
	eventEscalated         = "escalate"
	eventQuorumWarning     = "quorum_warning"
	defaultCancelReason    = "cancelled by request"
	escalationNoteDeadline = "execution deadline exceeded, manual resolution required"
)

type entry struct {
	mu       sync.Mutex
	t        *Transfer
	inFlight bool
}

// Machine is the transfer state machine. Safe for concurrent use.
type Machine struct {
	mu        sync.RWMutex
	transfers map[string]*entry

	cfg      Config
	signers  SignerVerifier
	pools    LiquidityReserver
	adapter  Adapter
	quoter   Quoter
	store    Store
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithStore enables write-through persistence of every change.
func WithStore(store Store) Option {
	return func(m *Machine) {
		m.store = store
	}
}

// WithQuoter sets the fee and slippage quoter used at submission.
func WithQuoter(q Quoter) Option {
	return func(m *Machine) {
		m.quoter = q
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine creates a Machine. Zero durations in cfg take their defaults.
func NewMachine(
	cfg Config,
	signers SignerVerifier,
	pools LiquidityReserver,
	adapter Adapter,
	logger *zap.Logger,
	opts ...Option,
) (*Machine, error) {
	if signers == nil || pools == nil || adapter == nil {
		return nil, errors.New("transfer machine requires signers, pools and adapter")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set machine defaults: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		transfers: make(map[string]*entry),
		cfg:       cfg,
		signers:   signers,
		pools:     pools,
		adapter:   adapter,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Submit creates a transfer in PENDING and verifies any initial signatures, moving it
// straight to SIGNED when they already form a quorum. If the id is taken the existing
// transfer is returned together with a TransferExistsError.
func (m *Machine) Submit(ctx context.Context, req SubmitRequest) (*Transfer, error) {
	t, err := m.newTransfer(req)
	if err != nil {
		return nil, err
	}
	if existing, err := m.Get(t.ID); err == nil {
		return existing, bridge.TransferExistsError(t.ID, existing.Status)
	}
	// terminal transfers are not restored into memory, the store still knows their ids
	stored, err := m.lookupStored(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, bridge.TransferExistsError(t.ID, stored.Status)
	}

	// verify before the transfer becomes visible, a bad initial set creates nothing
	payload := t.Payload()
	for _, in := range req.Signatures {
		sig, err := m.verify(t, payload, in)
		if err != nil {
			return nil, err
		}
		t.Signatures[sig.SignerID] = sig
	}

	m.mu.Lock()
	if existing, ok := m.transfers[t.ID]; ok {
		m.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return existing.t.Clone(), bridge.TransferExistsError(t.ID, existing.t.Status)
	}
	e := &entry{t: t}
	e.mu.Lock()
	m.transfers[t.ID] = e
	m.mu.Unlock()
	defer e.mu.Unlock()

	t.record(eventSubmitted, StatusUnknown, StatusPending, "", t.CreatedAt)
	metrics.TransfersTotal.WithLabelValues(StatusPending.String()).Inc()
	if valid := m.validSignatures(t); valid >= t.RequiredSignatures {
		m.apply(t, EventQuorumReached, StatusSigned, fmt.Sprintf("%d of %d signatures", valid, t.RequiredSignatures))
	}

	m.logger.Info("Transfer submitted",
		zap.String("transfer_id", t.ID),
		zap.String("pool", t.PoolKey().String()),
		zap.String("amount", t.Amount.String()),
		zap.Int("required_signatures", t.RequiredSignatures),
		zap.Int("total_signers", t.TotalSigners),
		zap.Int("signatures", len(t.Signatures)))

	m.persist(ctx, t)
	return t.Clone(), nil
}

// AddSignature verifies and stores a signature, replacing any earlier signature from
// the same signer. Reaching the quorum moves a PENDING transfer to SIGNED.
// An invalid signature is rejected without changing the transfer.
func (m *Machine) AddSignature(ctx context.Context, transferID string, in SignatureInput) (*Transfer, error) {
	if err := m.validate.Struct(&in); err != nil {
		return nil, bridge.ValidationError("invalid signature input: %v", err)
	}
	e, err := m.entry(transferID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.t
	if t.Status != StatusPending && t.Status != StatusSigned {
		return nil, bridge.ConflictError(t.ID, t.Status, "add signature")
	}
	sig, err := m.verify(t, t.Payload(), in)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("transfer", "signature_rejected").Inc()
		m.logger.Warn("Signature rejected",
			zap.String("transfer_id", t.ID),
			zap.String("signer_id", in.SignerID),
			zap.Error(err))
		return nil, err
	}

	_, replaced := t.Signatures[sig.SignerID]
	t.Signatures[sig.SignerID] = sig
	now := m.now()
	t.UpdatedAt = now
	msg := sig.SignerID
	if replaced {
		msg += " (replaced)"
	}
	t.record(eventSignatureAdded, t.Status, t.Status, msg, now)

	valid := m.validSignatures(t)
	if t.Status == StatusPending && valid >= t.RequiredSignatures {
		m.apply(t, EventQuorumReached, StatusSigned, fmt.Sprintf("%d of %d signatures", valid, t.RequiredSignatures))
	}

	m.logger.Debug("Signature accepted",
		zap.String("transfer_id", t.ID),
		zap.String("signer_id", sig.SignerID),
		zap.Bool("replaced", replaced),
		zap.Int("valid", valid),
		zap.Int("required", t.RequiredSignatures))

	m.persist(ctx, t)
	return t.Clone(), nil
}

// Approve re-checks the quorum against the current signer set and reserves liquidity.
// Lost quorum or a failed reservation leave the transfer in SIGNED.
func (m *Machine) Approve(ctx context.Context, transferID string) (*Transfer, error) {
	e, err := m.entry(transferID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.t
	to, err := Next(t.Status, EventApprove)
	if err != nil {
		return nil, bridge.ConflictError(t.ID, t.Status, EventApprove.String())
	}

	valid := m.validSignatures(t)
	if valid < t.RequiredSignatures {
		t.record(eventQuorumWarning, t.Status, t.Status,
			fmt.Sprintf("%d of %d signatures still valid", valid, t.RequiredSignatures), m.now())
		m.persist(ctx, t)
		m.logger.Warn("Quorum lost before approval",
			zap.String("transfer_id", t.ID),
			zap.Int("valid", valid),
			zap.Int("required", t.RequiredSignatures))
		return nil, bridge.QuorumLostError(t.ID, valid, t.RequiredSignatures)
	}
	m.warnStale(t)

	reservationID, err := m.pools.Reserve(ctx, t.PoolKey(), t.Amount, t.ID)
	if err != nil {
		m.logger.Info("Approval deferred, reservation failed",
			zap.String("transfer_id", t.ID),
			zap.Error(err))
		return nil, err
	}
	t.ReservationID = reservationID
	m.apply(t, EventApprove, to, "reservation "+reservationID)

	m.persist(ctx, t)
	return t.Clone(), nil
}

// Execute hands an APPROVED transfer to the chain adapter. The adapter call runs
// outside the transfer lock, detached from ctx cancellation and bounded by LockTimeout.
// Rejection fails the transfer and releases its reservation. If the lock times out its
// outcome is unknown: the transfer stays APPROVED with the reservation held and is
// escalated.
func (m *Machine) Execute(ctx context.Context, transferID string) (*Transfer, error) {
	e, err := m.entry(transferID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil, bridge.ExecutionInFlightError(transferID)
	}
	to, err := Next(e.t.Status, EventExecute)
	if err != nil || e.t.Escalated {
		status := e.t.Status
		e.mu.Unlock()
		return nil, bridge.ConflictError(transferID, status, EventExecute.String())
	}
	e.inFlight = true
	snapshot := e.t.Clone()
	e.mu.Unlock()

	// a lock tx may already be on chain when the caller goes away
	ctx = context.WithoutCancel(ctx)
	lockCtx, cancel := context.WithTimeout(ctx, m.cfg.LockTimeout)
	txHash, lockErr := m.adapter.LockFunds(lockCtx, snapshot)
	lockCtxErr := lockCtx.Err()
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	t := e.t

	if lockErr != nil && lockCtxErr != nil {
		metrics.AdapterCalls.WithLabelValues(string(t.SourceChain), "lock_funds", "timeout").Inc()
		m.escalate(ctx, t, fmt.Sprintf("lock outcome unknown: %v", lockErr))
		return t.Clone(), bridge.AdapterError(t.SourceChain, "lock funds", lockErr)
	}
	if lockErr != nil {
		metrics.AdapterCalls.WithLabelValues(string(t.SourceChain), "lock_funds", "error").Inc()
		adapterErr := bridge.AdapterError(t.SourceChain, "lock funds", lockErr)
		if err := m.failLocked(ctx, t, lockErr.Error()); err != nil {
			return nil, errors.Join(adapterErr, err)
		}
		return t.Clone(), adapterErr
	}

	metrics.AdapterCalls.WithLabelValues(string(t.SourceChain), "lock_funds", "ok").Inc()
	now := m.now()
	t.SourceTxHash = txHash
	t.ExecutingSince = &now
	m.apply(t, EventExecute, to, "source tx "+txHash)

	m.persist(ctx, t)
	return t.Clone(), nil
}

// Complete consumes the reservation and finalizes an EXECUTING transfer.
// sourceHash, when given, must match the hash recorded at execution.
func (m *Machine) Complete(ctx context.Context, transferID, sourceHash, targetHash string) (*Transfer, error) {
	e, err := m.entry(transferID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return nil, bridge.ExecutionInFlightError(transferID)
	}

	t := e.t
	if t.Status != StatusExecuting {
		return nil, bridge.ConflictError(t.ID, t.Status, EventComplete.String())
	}
	if sourceHash != "" && sourceHash != t.SourceTxHash {
		return nil, bridge.ValidationError("source hash %s does not match recorded %s", sourceHash, t.SourceTxHash)
	}
	if err := m.completeLocked(ctx, t, targetHash); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Cancel cancels a PENDING or SIGNED transfer.
func (m *Machine) Cancel(ctx context.Context, transferID, reason string) (*Transfer, error) {
	e, err := m.entry(transferID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.t
	to, err := Next(t.Status, EventCancel)
	if err != nil {
		return nil, bridge.ConflictError(t.ID, t.Status, EventCancel.String())
	}
	if reason == "" {
		reason = defaultCancelReason
	}
	// nothing is reserved before APPROVED, release only guards restored state
	if err := m.release(ctx, t); err != nil {
		return nil, err
	}
	t.CancellationReason = reason
	m.apply(t, EventCancel, to, reason)

	m.persist(ctx, t)
	return t.Clone(), nil
}

// Fail releases any held reservation and moves the transfer to FAILED.
func (m *Machine) Fail(ctx context.Context, transferID, reason string) (*Transfer, error) {
	e, err := m.entry(transferID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return nil, bridge.ExecutionInFlightError(transferID)
	}

	t := e.t
	if err := m.failLocked(ctx, t, reason); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Settle waits for the source transaction of an EXECUTING transfer and applies the
// outcome: confirmed completes it, failed fails it. Anything else, a timeout included,
// escalates the transfer and leaves it EXECUTING.
func (m *Machine) Settle(ctx context.Context, transferID string) (*Transfer, error) {
	e, err := m.entry(transferID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil, bridge.ExecutionInFlightError(transferID)
	}
	if e.t.Status != StatusExecuting {
		status := e.t.Status
		e.mu.Unlock()
		return nil, bridge.ConflictError(transferID, status, "settle")
	}
	e.inFlight = true
	chain, txHash := e.t.SourceChain, e.t.SourceTxHash
	e.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.ConfirmationTimeout)
	conf, waitErr := m.adapter.AwaitConfirmation(waitCtx, chain, txHash)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	t := e.t

	if waitErr != nil {
		if ctx.Err() != nil {
			// caller gave up, not the chain
			return t.Clone(), ctx.Err()
		}
		metrics.AdapterCalls.WithLabelValues(string(chain), "await_confirmation", "error").Inc()
		m.escalate(ctx, t, fmt.Sprintf("confirmation unavailable: %v", waitErr))
		return t.Clone(), bridge.AdapterError(chain, "await confirmation", waitErr)
	}
	metrics.AdapterCalls.WithLabelValues(string(chain), "await_confirmation", "ok").Inc()

	switch conf.Status {
	case ConfirmationConfirmed:
		if err := m.completeLocked(ctx, t, conf.TargetTxHash); err != nil {
			return nil, err
		}
	case ConfirmationFailed:
		reason := conf.Reason
		if reason == "" {
			reason = "source transaction failed"
		}
		if err := m.failLocked(ctx, t, reason); err != nil {
			return nil, err
		}
	default:
		m.escalate(ctx, t, "unknown confirmation status "+conf.Status.String())
	}
	return t.Clone(), nil
}

// Sweep escalates EXECUTING transfers older than the execution deadline.
// Status is never changed. It returns the number of newly escalated transfers.
func (m *Machine) Sweep(ctx context.Context) int {
	now := m.now()
	n := 0
	for _, e := range m.entries() {
		e.mu.Lock()
		t := e.t
		if t.Status == StatusExecuting && !t.Escalated && t.ExecutingSince != nil &&
			now.Sub(*t.ExecutingSince) > m.cfg.ExecutionDeadline {
			m.escalate(ctx, t, escalationNoteDeadline)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Get returns a copy of the transfer.
func (m *Machine) Get(transferID string) (*Transfer, error) {
	e, err := m.entry(transferID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t.Clone(), nil
}

// List returns copies of all transfers, oldest first. A non-zero status filters.
func (m *Machine) List(status Status) []*Transfer {
	var out []*Transfer
	for _, e := range m.entries() {
		e.mu.Lock()
		if status == StatusUnknown || e.t.Status == status {
			out = append(out, e.t.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Summary counts transfers per status.
type Summary struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"byStatus"`
	Escalated int            `json:"escalated"`
}

// Summary returns the current per-status counts. Every status is present.
func (m *Machine) Summary() Summary {
	s := Summary{ByStatus: make(map[string]int, len(AllStatuses))}
	for _, st := range AllStatuses {
		s.ByStatus[st.String()] = 0
	}
	for _, e := range m.entries() {
		e.mu.Lock()
		s.ByStatus[e.t.Status.String()]++
		if e.t.Escalated {
			s.Escalated++
		}
		e.mu.Unlock()
		s.Total++
	}
	return s
}

// Restore loads previously persisted transfers. Existing ids are left untouched.
func (m *Machine) Restore(transfers []*Transfer) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range transfers {
		if t == nil || t.ID == "" {
			continue
		}
		if _, ok := m.transfers[t.ID]; ok {
			continue
		}
		c := t.Clone()
		if c.Signatures == nil {
			c.Signatures = make(map[string]Signature)
		}
		m.transfers[c.ID] = &entry{t: c}
		n++
	}
	return n
}

func (m *Machine) lookupStored(ctx context.Context, transferID string) (*Transfer, error) {
	if m.store == nil {
		return nil, nil
	}
	t, err := m.store.LoadTransfer(ctx, transferID)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("transfer", "lookup_failed").Inc()
		return nil, bridge.StoreError("look up transfer "+transferID, err)
	}
	return t, nil
}

func (m *Machine) newTransfer(req SubmitRequest) (*Transfer, error) {
	if err := m.validate.Struct(&req); err != nil {
		return nil, bridge.ValidationError("invalid transfer request: %v", err)
	}
	if !req.Amount.IsPositive() {
		return nil, bridge.ValidationError("amount must be positive, got %s", req.Amount)
	}
	if n := len(req.DesignatedSigners); n > 0 {
		if n != req.TotalSigners {
			return nil, bridge.ValidationError("%d designated signers for totalSigners %d", n, req.TotalSigners)
		}
		for _, id := range req.DesignatedSigners {
			if !m.signers.Active(id) {
				return nil, bridge.ValidationError("designated signer %q is not an active signer", id)
			}
		}
	}

	now := m.now()
	t := &Transfer{
		ID:                 req.TransferID,
		SourceChain:        bridge.NormalizeChain(string(req.SourceChain)),
		TargetChain:        bridge.NormalizeChain(string(req.TargetChain)),
		Asset:              bridge.NormalizeAsset(req.Asset),
		Amount:             req.Amount,
		SourceAddress:      req.SourceAddress,
		TargetAddress:      req.TargetAddress,
		RequiredSignatures: req.RequiredSignatures,
		TotalSigners:       req.TotalSigners,
		DesignatedSigners:  append([]string(nil), req.DesignatedSigners...),
		Status:             StatusPending,
		Signatures:         make(map[string]Signature, len(req.Signatures)),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if m.quoter != nil {
		t.Fee, t.SlippageEstimate = m.quoter.Quote(t.PoolKey(), t.Amount)
	}
	return t, nil
}

func (m *Machine) verify(t *Transfer, payload []byte, in SignatureInput) (Signature, error) {
	if !t.Designated(in.SignerID) {
		return Signature{}, bridge.SignatureError(bridge.ErrUnknownSigner, in.SignerID,
			fmt.Errorf("not designated for transfer %s", t.ID))
	}
	raw, err := signature.DecodeHex(in.Signature)
	if err != nil {
		return Signature{}, bridge.SignatureError(bridge.ErrMalformedSignature, in.SignerID, err)
	}
	if err := m.signers.VerifySigner(in.SignerID, in.Scheme, payload, raw); err != nil {
		return Signature{}, err
	}
	return Signature{SignerID: in.SignerID, Scheme: in.Scheme, Bytes: raw, VerifiedAt: m.now()}, nil
}

// validSignatures counts stored signatures whose signer is still active and designated.
func (m *Machine) validSignatures(t *Transfer) int {
	n := 0
	for id := range t.Signatures {
		if t.Designated(id) && m.signers.Active(id) {
			n++
		}
	}
	return n
}

func (m *Machine) warnStale(t *Transfer) {
	now := m.now()
	for _, id := range t.SignerIDs() {
		age := now.Sub(t.Signatures[id].VerifiedAt)
		if age > m.cfg.StaleSignatureAge {
			m.logger.Warn("Stale signature at approval",
				zap.String("transfer_id", t.ID),
				zap.String("signer_id", id),
				zap.Duration("age", age))
		}
	}
}

func (m *Machine) completeLocked(ctx context.Context, t *Transfer, targetHash string) error {
	to, err := Next(t.Status, EventComplete)
	if err != nil {
		return bridge.ConflictError(t.ID, t.Status, EventComplete.String())
	}
	if t.ReservationID != "" {
		if err := m.pools.Consume(ctx, t.ReservationID); err != nil {
			return fmt.Errorf("consume reservation %s: %w", t.ReservationID, err)
		}
	}
	now := m.now()
	t.TargetTxHash = targetHash
	t.CompletedAt = &now
	m.apply(t, EventComplete, to, "target tx "+targetHash)
	metrics.TransferAmount.WithLabelValues(t.Asset).Observe(t.Amount.InexactFloat64())

	m.persist(ctx, t)
	return nil
}

// failLocked releases the reservation before recording FAILED. If the release fails the
// transfer keeps its status so the release can be retried.
func (m *Machine) failLocked(ctx context.Context, t *Transfer, reason string) error {
	to, err := Next(t.Status, EventFail)
	if err != nil {
		return bridge.ConflictError(t.ID, t.Status, EventFail.String())
	}
	if err := m.release(ctx, t); err != nil {
		return err
	}
	t.FailureReason = reason
	m.apply(t, EventFail, to, reason)
	m.logger.Warn("Transfer failed",
		zap.String("transfer_id", t.ID),
		zap.String("reason", reason))

	m.persist(ctx, t)
	return nil
}

func (m *Machine) release(ctx context.Context, t *Transfer) error {
	if t.ReservationID == "" {
		return nil
	}
	if err := m.pools.Release(ctx, t.ReservationID); err != nil {
		metrics.ErrorsTotal.WithLabelValues("transfer", "release_failed").Inc()
		m.logger.Error("Failed to release reservation",
			zap.String("transfer_id", t.ID),
			zap.String("reservation_id", t.ReservationID),
			zap.Error(err))
		return fmt.Errorf("release reservation %s: %w", t.ReservationID, err)
	}
	return nil
}

func (m *Machine) escalate(ctx context.Context, t *Transfer, note string) {
	now := m.now()
	if !t.Escalated {
		metrics.EscalationsTotal.Inc()
	}
	t.Escalated = true
	t.UpdatedAt = now
	t.record(eventEscalated, t.Status, t.Status, note, now)
	m.logger.Error("Transfer escalated for manual resolution",
		zap.String("transfer_id", t.ID),
		zap.String("source_tx", t.SourceTxHash),
		zap.String("note", note))

	m.persist(ctx, t)
}

// apply records the transition to `to`, which the caller obtained from Next.
func (m *Machine) apply(t *Transfer, ev Event, to Status, msg string) {
	from := t.Status
	now := m.now()
	t.Status = to
	t.UpdatedAt = now
	t.record(ev.String(), from, to, msg, now)

	metrics.TransferTransitions.WithLabelValues(from.String(), to.String()).Inc()
	metrics.TransfersTotal.WithLabelValues(to.String()).Inc()
	if to.Terminal() {
		metrics.TransferDuration.WithLabelValues(to.String()).Observe(now.Sub(t.CreatedAt).Seconds())
	}
	m.logger.Info("Transfer status changed",
		zap.String("transfer_id", t.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}

// persist writes t through to the store. The in-memory state is authoritative, a
// failed write is logged and counted.
func (m *Machine) persist(ctx context.Context, t *Transfer) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveTransfer(ctx, t); err != nil {
		metrics.ErrorsTotal.WithLabelValues("transfer", "persist_failed").Inc()
		m.logger.Error("Failed to persist transfer",
			zap.String("transfer_id", t.ID),
			zap.Stringer("status", t.Status),
			zap.Error(err))
	}
}

func (m *Machine) entry(transferID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.transfers[transferID]
	m.mu.RUnlock()
	if !ok {
		return nil, bridge.NotFoundError(transferID)
	}
	return e, nil
}

func (m *Machine) entries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entry, 0, len(m.transfers))
	for _, e := range m.transfers {
		out = append(out, e)
	}
	return out
}

func (t *Transfer) record(kind string, from, to Status, msg string, at time.Time) {
	t.Events = append(t.Events, HistoryEvent{Type: kind, From: from, To: to, Message: msg, At: at})
}
