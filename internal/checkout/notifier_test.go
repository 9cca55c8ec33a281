package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krumbkraft/orderflow/internal/messages"
	"github.com/krumbkraft/orderflow/internal/notify"
)

type mockDispatcher struct {
	enabled      bool
	DispatchFunc func(ctx context.Context, p notify.Payload) (*notify.Result, error)
}

func (m *mockDispatcher) Enabled() bool { return m.enabled }

func (m *mockDispatcher) Dispatch(ctx context.Context, p notify.Payload) (*notify.Result, error) {
	return m.DispatchFunc(ctx, p)
}

type mockPublisher struct {
	PublishJSONFunc func(ctx context.Context, body interface{}, attributes map[string]string) (string, error)
}

func (m *mockPublisher) PublishJSON(ctx context.Context, body interface{}, attributes map[string]string) (string, error) {
	return m.PublishJSONFunc(ctx, body, attributes)
}

func statusPayload() notify.Payload {
	return notify.BuildStatusPayload("KrumbAA01", "delivered", "Asha", "9876543210", messages.Business{}, time.Now())
}

func TestInlineNotifier(t *testing.T) {
	called := false
	n := NewInlineNotifier(&mockDispatcher{enabled: true, DispatchFunc: func(context.Context, notify.Payload) (*notify.Result, error) {
		called = true
		return &notify.Result{Attempts: 1}, nil
	}}, 0)
	require.NoError(t, n.Notify(context.Background(), statusPayload()))
	assert.True(t, called)

	failing := NewInlineNotifier(&mockDispatcher{enabled: true, DispatchFunc: func(context.Context, notify.Payload) (*notify.Result, error) {
		return nil, errors.New("down")
	}}, 0)
	assert.Error(t, failing.Notify(context.Background(), statusPayload()))

	disabled := NewInlineNotifier(&mockDispatcher{}, 0)
	assert.ErrorIs(t, disabled.Notify(context.Background(), statusPayload()), ErrNotifierDisabled)
}

func TestInlineNotifier_BudgetBoundsDispatch(t *testing.T) {
	var deadline time.Time
	n := NewInlineNotifier(&mockDispatcher{enabled: true, DispatchFunc: func(ctx context.Context, _ notify.Payload) (*notify.Result, error) {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return nil, ctx.Err()
	}}, 50*time.Millisecond)

	start := time.Now()
	err := n.Notify(context.Background(), statusPayload())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.WithinDuration(t, start.Add(50*time.Millisecond), deadline, time.Second)

	assert.Equal(t, DefaultInlineBudget, NewInlineNotifier(&mockDispatcher{}, 0).Budget)
}

func TestQueueNotifier_PublishesJob(t *testing.T) {
	var body []byte
	var attrs map[string]string
	n := NewQueueNotifier(&mockPublisher{PublishJSONFunc: func(_ context.Context, b interface{}, a map[string]string) (string, error) {
		var err error
		body, err = json.Marshal(b)
		attrs = a
		return "msg-1", err
	}})

	require.NoError(t, n.Notify(context.Background(), statusPayload()))

	var job notify.Job
	require.NoError(t, json.Unmarshal(body, &job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, "order_delivered", job.Payload.EventType)
	assert.Equal(t, "KrumbAA01", attrs["order_id"])
	assert.Equal(t, job.JobID, attrs["job_id"])
}

func TestQueueNotifier_PublishError(t *testing.T) {
	n := NewQueueNotifier(&mockPublisher{PublishJSONFunc: func(context.Context, interface{}, map[string]string) (string, error) {
		return "", errors.New("access denied")
	}})
	err := n.Notify(context.Background(), statusPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue notification")
}
