package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tripsync/internal/domain"
	"tripsync/internal/repository"
	"tripsync/internal/store"
)

// ──────────────────────────────────────────────
// IN-MEMORY TRIP STORAGE
// ──────────────────────────────────────────────

// MemTripStorage is an in-memory implementation of store.TripStorage.
type MemTripStorage struct {
	mu   sync.Mutex
	trip *domain.TripRecord

	// Counters for verification
	SaveCallCount int32

	// Error injection
	SaveError error
}

// NewMemTripStorage creates a new in-memory trip storage.
func NewMemTripStorage() *MemTripStorage {
	return &MemTripStorage{}
}

func (m *MemTripStorage) LoadTrip(ctx context.Context) (*domain.TripRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trip == nil {
		return nil, nil
	}
	copy := *m.trip
	return &copy, nil
}

func (m *MemTripStorage) SaveTrip(ctx context.Context, rec *domain.TripRecord) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *rec
	m.trip = &copy
	return nil
}

func (m *MemTripStorage) DeleteTrip(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trip = nil
	return nil
}

// StoredTrip returns the persisted record for test assertions.
func (m *MemTripStorage) StoredTrip() *domain.TripRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trip == nil {
		return nil
	}
	copy := *m.trip
	return &copy
}

// ──────────────────────────────────────────────
// IN-MEMORY ORDER STORAGE
// ──────────────────────────────────────────────

// MemOrderStorage is an in-memory implementation of store.OrderStorage.
type MemOrderStorage struct {
	mu     sync.Mutex
	orders map[string]*domain.LocalOrder
	active string
	queue  map[string]bool
	locks  map[string]bool
}

// NewMemOrderStorage creates a new in-memory order storage.
func NewMemOrderStorage() *MemOrderStorage {
	return &MemOrderStorage{
		orders: make(map[string]*domain.LocalOrder),
		queue:  make(map[string]bool),
		locks:  make(map[string]bool),
	}
}

func (m *MemOrderStorage) LoadOrder(ctx context.Context, id string) (*domain.LocalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	copy := *order
	copy.PendingUpdates = append([]domain.FieldUpdate(nil), order.PendingUpdates...)
	return &copy, nil
}

func (m *MemOrderStorage) SaveOrder(ctx context.Context, order *domain.LocalOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *order
	copy.PendingUpdates = append([]domain.FieldUpdate(nil), order.PendingUpdates...)
	m.orders[order.ID] = &copy
	return nil
}

func (m *MemOrderStorage) DeleteOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
	return nil
}

func (m *MemOrderStorage) OrderIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemOrderStorage) ActiveOrderID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, nil
}

func (m *MemOrderStorage) SetActiveOrderID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = id
	return nil
}

func (m *MemOrderStorage) ClearActiveOrderID(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = ""
	return nil
}

func (m *MemOrderStorage) EnqueueSync(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue[id] = true
	return nil
}

func (m *MemOrderStorage) DequeueSync(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, id)
	return nil
}

func (m *MemOrderStorage) SyncQueue(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.queue))
	for id := range m.queue {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemOrderStorage) AcquireOrderLock(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] {
		return false, nil
	}
	m.locks[id] = true
	return true, nil
}

func (m *MemOrderStorage) ReleaseOrderLock(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
	return nil
}

// QueueContains reports queue membership for test assertions.
func (m *MemOrderStorage) QueueContains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue[id]
}

// ──────────────────────────────────────────────
// RECORDING PUBLISHER
// ──────────────────────────────────────────────

// RecordingPublisher records broadcast events for verification.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []domain.SyncEvent

	// Error injection
	PublishError error
}

// NewRecordingPublisher creates a new recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(ctx context.Context, ev domain.SyncEvent) error {
	if p.PublishError != nil {
		return p.PublishError
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// Events returns the published events.
func (p *RecordingPublisher) Events() []domain.SyncEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SyncEvent(nil), p.events...)
}

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY (remote store)
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of repository.OrderRepository.
type MockOrderRepository struct {
	mu      sync.Mutex
	rows    map[string]*domain.TripRow
	writes  map[string]map[string]any
	written map[string]int

	// Counters for verification
	WriteOrderCallCount   int32
	CompleteTripCallCount int32

	// Error injection
	WriteOrderErrors map[string]error
	CompleteTripErr  error
}

// NewMockOrderRepository creates a new mock remote store.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		rows:             make(map[string]*domain.TripRow),
		writes:           make(map[string]map[string]any),
		written:          make(map[string]int),
		WriteOrderErrors: make(map[string]error),
	}
}

// SetRow installs an authoritative trip row.
func (m *MockOrderRepository) SetRow(row *domain.TripRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *row
	m.rows[row.OrderID] = &copy
}

func (m *MockOrderRepository) ReadOrder(ctx context.Context, id string) (*domain.LocalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.LocalOrder{
		ID:         id,
		Status:     row.Status,
		Price:      row.TotalCost,
		SyncStatus: domain.SyncStatusSynced,
	}, nil
}

func (m *MockOrderRepository) WriteOrder(ctx context.Context, id string, fields map[string]any) error {
	atomic.AddInt32(&m.WriteOrderCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.WriteOrderErrors[id]; err != nil {
		return err
	}
	m.writes[id] = fields
	m.written[id]++
	return nil
}

func (m *MockOrderRepository) ReadTripRow(ctx context.Context, orderID string) (*domain.TripRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *row
	return &copy, nil
}

func (m *MockOrderRepository) CompleteTrip(ctx context.Context, orderID string, totalCost, rating float64) error {
	atomic.AddInt32(&m.CompleteTripCallCount, 1)
	if m.CompleteTripErr != nil {
		return m.CompleteTripErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[orderID]
	if !ok {
		row = &domain.TripRow{OrderID: orderID}
		m.rows[orderID] = row
	}
	if !row.Status.IsTerminal() {
		row.Status = domain.TripStatusCompleted
		row.TotalCost = totalCost
	}
	return nil
}

// LastWrite returns the fields of the most recent WriteOrder for an id.
func (m *MockOrderRepository) LastWrite(id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[id]
}

// Row returns the stored row for test assertions.
func (m *MockOrderRepository) Row(id string) *domain.TripRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil
	}
	copy := *row
	return &copy
}

// ──────────────────────────────────────────────
// MOCK HOST BRIDGE
// ──────────────────────────────────────────────

// BridgeCall records one host-bridge notification.
type BridgeCall struct {
	Action  string
	Payload map[string]any
}

// MockBridge is a mock implementation of service.HostBridge.
type MockBridge struct {
	mu    sync.Mutex
	calls []BridgeCall

	// Error injection
	NotifyError error
}

// NewMockBridge creates a new mock bridge.
func NewMockBridge() *MockBridge {
	return &MockBridge{}
}

func (b *MockBridge) Notify(ctx context.Context, action string, payload map[string]any) error {
	b.mu.Lock()
	b.calls = append(b.calls, BridgeCall{Action: action, Payload: payload})
	b.mu.Unlock()
	if b.NotifyError != nil {
		return b.NotifyError
	}
	return nil
}

// Calls returns the recorded notifications.
func (b *MockBridge) Calls() []BridgeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BridgeCall(nil), b.calls...)
}

// Actions returns just the action names, in order.
func (b *MockBridge) Actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	actions := make([]string, 0, len(b.calls))
	for _, call := range b.calls {
		actions = append(actions, call.Action)
	}
	return actions
}

// ──────────────────────────────────────────────
// SHARED FIXTURES
// ──────────────────────────────────────────────

// testPricing is the pricing used across scenario tests.
var testPricing = domain.PricingParams{
	BaseCost:      2.0,
	OnWayPerKm:    0.5,
	OnWayPerMin:   0,
	WaitingPerMin: 0.2,
	TripPerKm:     1.0,
	TripPerMin:    0.25,
}

// Ensure the mocks satisfy the real interfaces.
var (
	_ store.TripStorage          = (*MemTripStorage)(nil)
	_ store.OrderStorage         = (*MemOrderStorage)(nil)
	_ store.EventPublisher       = (*RecordingPublisher)(nil)
	_ repository.OrderRepository = (*MockOrderRepository)(nil)
)
