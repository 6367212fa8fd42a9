package pipeline_test

import (
	"context"
	"errors"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/nikolayk812/orderfan/internal/broadcast"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/metrics"
	"github.com/nikolayk812/orderfan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"sync"
	"testing"
	"time"
)

// memoryStore implements port.OrderRepository and port.OutboxRepository.
type memoryStore struct {
	mu      sync.Mutex
	nextID  int64
	orders  map[int64]domain.Order
	sent    map[int64]bool
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{orders: map[int64]domain.Order{}, sent: map[int64]bool{}}
}

func (s *memoryStore) Save(_ context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return domain.Order{}, s.saveErr
	}

	s.nextID++
	order.ID = s.nextID
	s.orders[order.ID] = order
	s.sent[order.ID] = false

	return order, nil
}

func (s *memoryStore) FindByID(_ context.Context, orderID int64) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	return o, ok, nil
}

func (s *memoryStore) Update(_ context.Context, orderID int64, patch domain.OrderPatch) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}

	o.ApplyPatch(patch)
	s.orders[orderID] = o

	return o, nil
}

func (s *memoryStore) MarkSent(_ context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent[orderID] = true
	return nil
}

func (s *memoryStore) IncrementAttempts(context.Context, int64) error {
	return nil
}

func (s *memoryStore) ListPending(context.Context, time.Time, int32, int32) ([]domain.OutboxRecord, error) {
	return nil, nil
}

func (s *memoryStore) isSent(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sent[orderID]
}

// countingSink counts sends and fails with err if set.
type countingSink struct {
	name  string
	err   error
	mu    sync.Mutex
	calls int
}

func (s *countingSink) Name() string {
	return s.name
}

func (s *countingSink) Send(context.Context, broadcast.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	return s.err
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type fixture struct {
	store    *memoryStore
	topic    *countingSink
	bus      *countingSink
	metrics  *metrics.Metrics
	pipeline *pipeline.OrderPipeline
}

func newFixture(t *testing.T, topicErr, busErr error) fixture {
	t.Helper()

	f := fixture{
		store:   newMemoryStore(),
		topic:   &countingSink{name: "topic", err: topicErr},
		bus:     &countingSink{name: "event-bus", err: busErr},
		metrics: metrics.New(prometheus.NewRegistry()),
	}

	publisher, err := broadcast.NewPublisher([]broadcast.Sink{f.topic, f.bus}, broadcast.WithMetrics(f.metrics))
	require.NoError(t, err)

	f.pipeline, err = pipeline.New(f.store, f.store, publisher, f.metrics)
	require.NoError(t, err)

	return f
}

func TestOrderPipeline_Process(t *testing.T) {
	brokerErr := errors.New("broker unavailable")

	tests := []struct {
		name        string
		in          domain.Order
		topicErr    error
		busErr      error
		wantOrder   domain.Order
		wantFailed  []string
		wantInvalid bool
	}{
		{
			name:      "all sinks up: ok",
			in:        domain.Order{Product: "Widget", Quantity: 3, Amount: 10},
			wantOrder: domain.Order{ID: 1, Product: "Widget", Quantity: 3, Amount: 10, Processed: true, Total: 30},
		},
		{
			name:      "client supplied id, total and processed are ignored: ok",
			in:        domain.Order{ID: 99, Product: "Widget", Quantity: 3, Amount: 10, Total: 1, Processed: false},
			wantOrder: domain.Order{ID: 1, Product: "Widget", Quantity: 3, Amount: 10, Processed: true, Total: 30},
		},
		{
			name:      "zero quantity: ok",
			in:        domain.Order{Product: "Widget", Quantity: 0, Amount: 10},
			wantOrder: domain.Order{ID: 1, Product: "Widget", Quantity: 0, Amount: 10, Processed: true, Total: 0},
		},
		{
			name:       "topic down: fail after persisting",
			in:         domain.Order{Product: "Widget", Quantity: 3, Amount: 10},
			topicErr:   brokerErr,
			wantOrder:  domain.Order{ID: 1, Product: "Widget", Quantity: 3, Amount: 10, Processed: true, Total: 30},
			wantFailed: []string{"topic"},
		},
		{
			name:       "event bus down: fail after persisting",
			in:         domain.Order{Product: "Widget", Quantity: 3, Amount: 10},
			busErr:     brokerErr,
			wantOrder:  domain.Order{ID: 1, Product: "Widget", Quantity: 3, Amount: 10, Processed: true, Total: 30},
			wantFailed: []string{"event-bus"},
		},
		{
			name:      "negative amount: ok",
			in:        domain.Order{Product: "Refund", Quantity: 2, Amount: -5},
			wantOrder: domain.Order{ID: 1, Product: "Refund", Quantity: 2, Amount: -5, Processed: true, Total: -10},
		},
		{
			name:        "negative quantity: fail",
			in:          domain.Order{Product: "Widget", Quantity: -1, Amount: 10},
			wantInvalid: true,
		},
		{
			name:        "total overflows: fail",
			in:          domain.Order{Product: "Widget", Quantity: 2, Amount: math.MaxInt64},
			wantInvalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.topicErr, tt.busErr)

			got, err := f.pipeline.Process(t.Context(), tt.in)

			if tt.wantInvalid {
				var validationErr *domain.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Empty(t, f.store.orders, "nothing stored")
				assert.Zero(t, f.topic.count())
				assert.Zero(t, f.bus.count())
				return
			}

			assert.Equal(t, tt.wantOrder, got)

			// both sinks attempted exactly once regardless of failures
			assert.Equal(t, 1, f.topic.count())
			assert.Equal(t, 1, f.bus.count())

			stored, ok, ferr := f.store.FindByID(t.Context(), got.ID)
			require.NoError(t, ferr)
			require.True(t, ok)
			assert.Equal(t, tt.wantOrder, stored)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersProcessed))

			if len(tt.wantFailed) == 0 {
				require.NoError(t, err)
				assert.True(t, f.store.isSent(got.ID))
				return
			}

			var dispatchErr *domain.DispatchError
			require.ErrorAs(t, err, &dispatchErr)
			assert.Equal(t, tt.wantFailed, dispatchErr.Sinks())
			assert.False(t, f.store.isSent(got.ID), "left for the relay")
		})
	}
}

func TestOrderPipeline_ProcessStorageFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.store.saveErr = &domain.StorageError{Op: "withTx", Err: errors.New("connection refused")}

	got, err := f.pipeline.Process(t.Context(), domain.Order{Product: "Widget", Quantity: 3, Amount: 10})

	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, domain.Order{}, got)

	assert.Zero(t, f.topic.count(), "no broadcast after storage failure")
	assert.Zero(t, f.bus.count(), "no broadcast after storage failure")
}

func TestOrderPipeline_ProcessTotalProperty(t *testing.T) {
	f := newFixture(t, nil, nil)

	for range 100 {
		in := domain.Order{
			Product:  gofakeit.ProductName(),
			Quantity: int64(gofakeit.Number(0, 10_000)),
			Amount:   int64(gofakeit.Number(-10_000, 10_000)),
			Total:    gofakeit.Int64(),
		}

		got, err := f.pipeline.Process(t.Context(), in)
		require.NoError(t, err)

		assert.Equal(t, in.Quantity*in.Amount, got.Total)
		assert.True(t, got.Processed)
		assert.NotZero(t, got.ID)
	}
}

func TestOrderPipeline_ApplyUpdate(t *testing.T) {
	tests := []struct {
		name        string
		missing     bool
		patch       domain.OrderPatch
		want        domain.Order
		wantInvalid bool
		wantError   error
	}{
		{
			name:  "existing order: ok",
			patch: domain.OrderPatch{Product: "Gadget", Quantity: 5, Amount: 3},
			want:  domain.Order{ID: 1, Product: "Gadget", Quantity: 5, Amount: 3, Processed: true, Total: 15},
		},
		{
			name:      "missing order: fail",
			missing:   true,
			patch:     domain.OrderPatch{Product: "Gadget", Quantity: 5, Amount: 3},
			wantError: domain.ErrNotFound,
		},
		{
			name:  "negative amount: ok",
			patch: domain.OrderPatch{Product: "Gadget", Quantity: 5, Amount: -3},
			want:  domain.Order{ID: 1, Product: "Gadget", Quantity: 5, Amount: -3, Processed: true, Total: -15},
		},
		{
			name:        "negative quantity: fail",
			patch:       domain.OrderPatch{Product: "Gadget", Quantity: -5, Amount: 3},
			wantInvalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)

			saved, err := f.pipeline.Process(t.Context(), domain.Order{Product: "Widget", Quantity: 3, Amount: 10})
			require.NoError(t, err)

			orderID := saved.ID
			if tt.missing {
				orderID = 404
			}

			got, err := f.pipeline.ApplyUpdate(t.Context(), orderID, tt.patch)

			switch {
			case tt.wantInvalid:
				var validationErr *domain.ValidationError
				require.ErrorAs(t, err, &validationErr)
			case tt.wantError != nil:
				require.ErrorIs(t, err, tt.wantError)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersUpdated))
			}

			// updates are never broadcast
			assert.Equal(t, 1, f.topic.count())
			assert.Equal(t, 1, f.bus.count())
		})
	}
}

func TestNew(t *testing.T) {
	store := newMemoryStore()
	publisher, err := broadcast.NewPublisher([]broadcast.Sink{&countingSink{name: "topic"}})
	require.NoError(t, err)

	_, err = pipeline.New(nil, store, publisher, nil)
	assert.EqualError(t, err, "store is nil")

	_, err = pipeline.New(store, nil, publisher, nil)
	assert.EqualError(t, err, "outbox is nil")

	_, err = pipeline.New(store, store, nil, nil)
	assert.EqualError(t, err, "broadcaster is nil")

	p, err := pipeline.New(store, store, publisher, nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}
