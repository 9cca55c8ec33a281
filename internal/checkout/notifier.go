package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krumbkraft/orderflow/internal/notify"
)

// ErrNotifierDisabled means no notification channel is configured.
var ErrNotifierDisabled = errors.New("notifier disabled")

// Notifier delivers a webhook payload, now or later.
type Notifier interface {
	Notify(ctx context.Context, p notify.Payload) error
}

type dispatcher interface {
	Enabled() bool
	Dispatch(ctx context.Context, p notify.Payload) (*notify.Result, error)
}

// DefaultInlineBudget keeps an inline dispatch well inside API Gateway's
// 29s integration timeout.
const DefaultInlineBudget = 8 * time.Second

// InlineNotifier dispatches synchronously within the checkout request. The
// whole retry sequence is cut off after Budget; the order is already saved.
type InlineNotifier struct {
	Dispatcher dispatcher
	Budget     time.Duration
}

func NewInlineNotifier(d dispatcher, budget time.Duration) *InlineNotifier {
	if budget <= 0 {
		budget = DefaultInlineBudget
	}
	return &InlineNotifier{Dispatcher: d, Budget: budget}
}

func (n *InlineNotifier) Notify(ctx context.Context, p notify.Payload) error {
	if n.Dispatcher == nil || !n.Dispatcher.Enabled() {
		return ErrNotifierDisabled
	}
	budget := n.Budget
	if budget <= 0 {
		budget = DefaultInlineBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	_, err := n.Dispatcher.Dispatch(ctx, p)
	return err
}

type publisher interface {
	PublishJSON(ctx context.Context, body interface{}, attributes map[string]string) (string, error)
}

// QueueNotifier enqueues a NotificationJob for the worker to dispatch.
type QueueNotifier struct {
	Publisher publisher
}

func NewQueueNotifier(p publisher) *QueueNotifier {
	return &QueueNotifier{Publisher: p}
}

func (n *QueueNotifier) Notify(ctx context.Context, p notify.Payload) error {
	job := notify.NewJob(p)
	_, err := n.Publisher.PublishJSON(ctx, job, map[string]string{
		"event_type": p.EventType,
		"order_id":   p.Order.OrderID,
		"job_id":     job.JobID,
	})
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}
