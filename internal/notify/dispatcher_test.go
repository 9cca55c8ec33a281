package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/krumbkraft/orderflow/internal/errors"
	"github.com/krumbkraft/orderflow/internal/messages"
	"github.com/krumbkraft/orderflow/internal/orders"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

type countRecorder struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (c *countRecorder) Count(_ context.Context, name string, value float64, _ map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]float64{}
	}
	c.counts[name] += value
	return nil
}

func testOrder() orders.Order {
	items := []orders.Item{
		orders.NewItem("Sourdough Bread", 2, 150, &orders.SelectedOption{Name: "Large", PriceAdjustment: 50}),
		orders.NewItem("Chocolate Cookies", 1, 80, nil),
	}
	return orders.Order{
		OrderID:         "KrumbAA07",
		UUID:            "11111111-2222-3333-4444-555555555555",
		Customer:        orders.Customer{Name: "Test Customer", Phone: "+91 98765 43210"},
		Items:           items,
		TotalAmount:     orders.Total(items),
		DeliveryDate:    "2026-10-16",
		DeliveryAddress: orders.Address{FullAddress: "123 Test Street", Area: "Test Area", City: "Mumbai", Pincode: "400001"},
		CreatedAt:       time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
	}
}

func testPayload() Payload {
	return BuildOrderPlacedPayload(testOrder(), messages.Business{Name: "KrumbKraft", Phone: "9876543210"}, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC))
}

func TestDispatch_SuccessFirstAttempt(t *testing.T) {
	var gotUA string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	rec := &countRecorder{}
	d := NewDispatcher(Config{PrimaryURL: srv.URL}, zap.NewNop(), WithSleep(sleeper.sleep), WithRecorder(rec))

	res, err := d.Dispatch(context.Background(), testPayload())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, res.Body["received"])
	assert.Empty(t, sleeper.delays)

	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "order_placed", gotQuery["event_type"][0])
	assert.Equal(t, "KrumbAA07", gotQuery["order_id"][0])
	assert.Equal(t, "9876543210", gotQuery["customer_phone"][0])
	assert.Equal(t, "380", gotQuery["total_amount"][0])
	assert.Equal(t, "krumbkraft-app", gotQuery["source"][0])
	assert.Contains(t, gotQuery["customer_confirmation_message"][0], "2x Sourdough Bread (Large) - ₹300")

	var items []orders.Item
	require.NoError(t, json.Unmarshal([]byte(gotQuery["items"][0]), &items))
	assert.Len(t, items, 2)

	assert.Equal(t, float64(1), rec.counts[MetricDispatchSucceeded])
}

func TestDispatch_NonJSONBodyIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Workflow was started"))
	}))
	defer srv.Close()

	d := NewDispatcher(Config{PrimaryURL: srv.URL}, zap.NewNop())
	res, err := d.Dispatch(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": true}, res.Body)
}

func TestDispatch_RetriesWithIncreasingBackoff(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	d := NewDispatcher(Config{PrimaryURL: srv.URL, RetryAttempts: 3}, zap.NewNop(), WithSleep(sleeper.sleep))

	res, err := d.Dispatch(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.delays)
}

func TestDispatch_FallsBackToSecondary(t *testing.T) {
	var primaryCalls, secondaryCalls int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryCalls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondaryCalls, 1)
		_, _ = w.Write([]byte(`{"ok":1}`))
	}))
	defer secondary.Close()

	sleeper := &sleepRecorder{}
	d := NewDispatcher(Config{PrimaryURL: primary.URL, SecondaryURL: secondary.URL, RetryAttempts: 3}, zap.NewNop(), WithSleep(sleeper.sleep))

	res, err := d.Dispatch(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, secondary.URL, res.Endpoint)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&primaryCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondaryCalls))

	// primary retries happen before the fallback, each delay longer than the last
	require.Len(t, sleeper.delays, 2)
	assert.Less(t, sleeper.delays[0], sleeper.delays[1])
}

func TestDispatch_BothEndpointsExhausted(t *testing.T) {
	var calls int32
	fail := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	primary := httptest.NewServer(fail)
	defer primary.Close()
	secondary := httptest.NewServer(fail)
	defer secondary.Close()

	sleeper := &sleepRecorder{}
	rec := &countRecorder{}
	d := NewDispatcher(Config{PrimaryURL: primary.URL, SecondaryURL: secondary.URL, RetryAttempts: 2},
		zap.NewNop(), WithSleep(sleeper.sleep), WithRecorder(rec))

	res, err := d.Dispatch(context.Background(), testPayload())
	assert.Nil(t, res)
	require.Error(t, err)

	de, ok := apperrors.IsDispatchError(err)
	require.True(t, ok)
	assert.Equal(t, 4, de.Attempts)
	assert.Equal(t, []string{primary.URL, secondary.URL}, de.Endpoints)
	assert.Contains(t, de.Error(), "503")
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.delays)
	assert.Equal(t, float64(1), rec.counts[MetricDispatchFailed])
}

func TestDispatch_TimeoutCountsAsFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := NewDispatcher(Config{PrimaryURL: srv.URL, RetryAttempts: 1, Timeout: 20 * time.Millisecond}, zap.NewNop())
	_, err := d.Dispatch(context.Background(), testPayload())

	de, ok := apperrors.IsDispatchError(err)
	require.True(t, ok)
	assert.Equal(t, 1, de.Attempts)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDispatch_NoPrimaryIsNoop(t *testing.T) {
	d := NewDispatcher(Config{}, zap.NewNop())
	assert.False(t, d.Enabled())

	res, err := d.Dispatch(context.Background(), testPayload())
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestDispatch_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	d := NewDispatcher(Config{PrimaryURL: srv.URL, SecondaryURL: srv.URL, RetryAttempts: 3}, zap.NewNop(), WithSleep(cancelled))

	_, err := d.Dispatch(ctx, testPayload())
	de, ok := apperrors.IsDispatchError(err)
	require.True(t, ok)
	assert.Equal(t, 1, de.Attempts)
	assert.Len(t, de.Endpoints, 1)
}

func TestDispatch_SendsAPIKey(t *testing.T) {
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("X-API-Key")
	}))
	defer srv.Close()

	d := NewDispatcher(Config{PrimaryURL: srv.URL, APIKey: "secret"}, zap.NewNop())
	_, err := d.Dispatch(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "secret", key)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 8*time.Second, Backoff(3))
}
