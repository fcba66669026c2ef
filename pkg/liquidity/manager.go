package liquidity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/internal/metrics"
	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

type pool struct {
	mu           sync.Mutex
	key          bridge.PoolKey
	total        decimal.Decimal
	reserved     decimal.Decimal
	updatedAt    time.Time
	reservations map[string]*Reservation
}

func (p *pool) available() decimal.Decimal {
	return p.total.Sub(p.reserved)
}

func (p *pool) snapshot() PoolSnapshot {
	return PoolSnapshot{
		Key:       p.key,
		Total:     p.total,
		Reserved:  p.reserved,
		Available: p.available(),
		UpdatedAt: p.updatedAt,
	}
}

// Manager owns all pools. Operations on one pool are linearizable; different pools
// never contend. Lock order is pool.mu before Manager.mu.
type Manager struct {
	mu           sync.RWMutex
	pools        map[bridge.PoolKey]*pool
	reservations map[string]*pool

	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore enables write-through persistence.
func WithStore(store Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an empty Manager.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		pools:        make(map[bridge.PoolKey]*pool),
		reservations: make(map[string]*pool),
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deposit adds amount to the pool's total liquidity, creating the pool if needed.
func (m *Manager) Deposit(ctx context.Context, key bridge.PoolKey, amount decimal.Decimal) (PoolSnapshot, error) {
	if !amount.IsPositive() {
		return PoolSnapshot{}, bridge.ValidationError("deposit amount must be positive, got %s", amount)
	}

	p := m.getOrCreate(key)
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.snapshot()
	next.Total = next.Total.Add(amount)
	next.Available = next.Total.Sub(next.Reserved)
	next.UpdatedAt = m.now()
	if err := m.persist(ctx, next, nil); err != nil {
		return PoolSnapshot{}, err
	}

	p.total = next.Total
	p.updatedAt = next.UpdatedAt
	m.observe(p)
	m.logger.Info("Liquidity deposited",
		zap.String("pool", key.String()),
		zap.String("amount", amount.String()),
		zap.String("total", p.total.String()))
	return p.snapshot(), nil
}

// Withdraw removes amount from the pool's unreserved liquidity.
func (m *Manager) Withdraw(ctx context.Context, key bridge.PoolKey, amount decimal.Decimal) (PoolSnapshot, error) {
	if !amount.IsPositive() {
		return PoolSnapshot{}, bridge.ValidationError("withdraw amount must be positive, got %s", amount)
	}
	p, err := m.lookup(key)
	if err != nil {
		return PoolSnapshot{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.available().LessThan(amount) {
		return PoolSnapshot{}, bridge.InsufficientLiquidityError(key, amount, p.available())
	}

	next := p.snapshot()
	next.Total = next.Total.Sub(amount)
	next.Available = next.Total.Sub(next.Reserved)
	next.UpdatedAt = m.now()
	if err := m.persist(ctx, next, nil); err != nil {
		return PoolSnapshot{}, err
	}

	p.total = next.Total
	p.updatedAt = next.UpdatedAt
	m.observe(p)
	return p.snapshot(), nil
}

// CheckAvailability reports whether the pool currently has at least amount available.
// The answer is advisory; only Reserve guarantees the funds.
func (m *Manager) CheckAvailability(key bridge.PoolKey, amount decimal.Decimal) bool {
	available, err := m.Available(key)
	if err != nil {
		return false
	}
	return available.GreaterThanOrEqual(amount)
}

// Available returns the pool's available liquidity.
func (m *Manager) Available(key bridge.PoolKey) (decimal.Decimal, error) {
	snap, err := m.Snapshot(key)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Available, nil
}

// Snapshot returns the pool's current balances.
func (m *Manager) Snapshot(key bridge.PoolKey) (PoolSnapshot, error) {
	p, err := m.lookup(key)
	if err != nil {
		return PoolSnapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

// Snapshots returns all pools ordered by key.
func (m *Manager) Snapshots() []PoolSnapshot {
	m.mu.RLock()
	pools := make([]*pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.RUnlock()

	out := make([]PoolSnapshot, 0, len(pools))
	for _, p := range pools {
		p.mu.Lock()
		out = append(out, p.snapshot())
		p.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Reserve atomically checks availability and earmarks amount for transferID.
// Two concurrent reservations can never both claim the same liquidity.
func (m *Manager) Reserve(ctx context.Context, key bridge.PoolKey, amount decimal.Decimal, transferID string) (string, error) {
	if !amount.IsPositive() {
		return "", bridge.ValidationError("reservation amount must be positive, got %s", amount)
	}
	p, err := m.lookup(key)
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues("rejected").Inc()
		return "", bridge.InsufficientLiquidityError(key, amount, decimal.Zero)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.available().LessThan(amount) {
		metrics.ReservationsTotal.WithLabelValues("rejected").Inc()
		return "", bridge.InsufficientLiquidityError(key, amount, p.available())
	}

	now := m.now()
	res := &Reservation{
		ID:         uuid.NewString(),
		Pool:       key,
		Amount:     amount,
		Status:     ReservationReserved,
		TransferID: transferID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	next := p.snapshot()
	next.Reserved = next.Reserved.Add(amount)
	next.Available = next.Total.Sub(next.Reserved)
	next.UpdatedAt = now
	if err := m.persist(ctx, next, res); err != nil {
		return "", err
	}

	p.reserved = next.Reserved
	p.updatedAt = now
	p.reservations[res.ID] = res
	m.index(res.ID, p)

	metrics.ReservationsTotal.WithLabelValues("reserve").Inc()
	m.observe(p)
	m.logger.Debug("Liquidity reserved",
		zap.String("pool", key.String()),
		zap.String("reservation_id", res.ID),
		zap.String("transfer_id", transferID),
		zap.String("amount", amount.String()))
	return res.ID, nil
}

// Release returns a reservation's amount to the pool. Releasing a reservation that is
// already released or consumed is a no-op.
func (m *Manager) Release(ctx context.Context, reservationID string) error {
	p, err := m.owner(reservationID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := p.reservations[reservationID]
	if res.Status != ReservationReserved {
		return nil
	}

	now := m.now()
	updated := *res
	updated.Status = ReservationReleased
	updated.UpdatedAt = now
	next := p.snapshot()
	next.Reserved = next.Reserved.Sub(res.Amount)
	next.Available = next.Total.Sub(next.Reserved)
	next.UpdatedAt = now
	if err := m.persist(ctx, next, &updated); err != nil {
		return err
	}

	p.reserved = next.Reserved
	p.updatedAt = now
	*res = updated

	metrics.ReservationsTotal.WithLabelValues("release").Inc()
	m.observe(p)
	return nil
}

// Consume marks a reservation as spent: the amount leaves both the reserved and the
// total balance. Consuming an already consumed reservation is a no-op.
func (m *Manager) Consume(ctx context.Context, reservationID string) error {
	p, err := m.owner(reservationID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := p.reservations[reservationID]
	switch res.Status {
	case ReservationConsumed:
		return nil
	case ReservationReleased:
		return fmt.Errorf("%w: reservation %s was released", bridge.ErrInvalidTransition, reservationID)
	}

	now := m.now()
	updated := *res
	updated.Status = ReservationConsumed
	updated.UpdatedAt = now
	next := p.snapshot()
	next.Reserved = next.Reserved.Sub(res.Amount)
	next.Total = next.Total.Sub(res.Amount)
	next.Available = next.Total.Sub(next.Reserved)
	next.UpdatedAt = now
	if err := m.persist(ctx, next, &updated); err != nil {
		return err
	}

	p.reserved = next.Reserved
	p.total = next.Total
	p.updatedAt = now
	*res = updated

	metrics.ReservationsTotal.WithLabelValues("consume").Inc()
	m.observe(p)
	return nil
}

// Reservation returns a copy of a reservation.
func (m *Manager) Reservation(reservationID string) (Reservation, error) {
	p, err := m.owner(reservationID)
	if err != nil {
		return Reservation{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.reservations[reservationID], nil
}

// Restore loads persisted pools and reservations. Reserved balances are recomputed
// from the active reservations rather than trusted from storage.
func (m *Manager) Restore(pools []PoolSnapshot, reservations []Reservation) error {
	for _, snap := range pools {
		p := m.getOrCreate(snap.Key)
		p.mu.Lock()
		p.total = snap.Total
		p.reserved = decimal.Zero
		p.updatedAt = snap.UpdatedAt
		p.mu.Unlock()
	}

	for i := range reservations {
		res := reservations[i]
		p, err := m.lookup(res.Pool)
		if err != nil {
			return fmt.Errorf("reservation %s references unknown pool: %w", res.ID, err)
		}
		p.mu.Lock()
		p.reservations[res.ID] = &res
		if res.Status == ReservationReserved {
			p.reserved = p.reserved.Add(res.Amount)
		}
		p.mu.Unlock()
		m.index(res.ID, p)
	}

	for _, p := range m.allPools() {
		p.mu.Lock()
		m.observe(p)
		p.mu.Unlock()
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, snap PoolSnapshot, res *Reservation) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SavePool(ctx, snap, res); err != nil {
		metrics.ErrorsTotal.WithLabelValues("liquidity", "persist").Inc()
		return fmt.Errorf("failed to persist pool %s: %w", snap.Key, err)
	}
	return nil
}

// observe publishes pool gauges. Caller holds p.mu.
func (m *Manager) observe(p *pool) {
	name := p.key.String()
	metrics.PoolLiquidity.WithLabelValues(name, "total").Set(p.total.InexactFloat64())
	metrics.PoolLiquidity.WithLabelValues(name, "reserved").Set(p.reserved.InexactFloat64())
	metrics.PoolLiquidity.WithLabelValues(name, "available").Set(p.available().InexactFloat64())
}

func (m *Manager) getOrCreate(key bridge.PoolKey) *pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[key]
	if !ok {
		p = &pool{key: key, reservations: make(map[string]*Reservation)}
		m.pools[key] = p
	}
	return p
}

func (m *Manager) lookup(key bridge.PoolKey) (*pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bridge.ErrPoolNotFound, key)
	}
	return p, nil
}

func (m *Manager) owner(reservationID string) (*pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.reservations[reservationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bridge.ErrReservationNotFound, reservationID)
	}
	return p, nil
}

func (m *Manager) index(reservationID string, p *pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[reservationID] = p
}

func (m *Manager) allPools() []*pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*pool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out
}
