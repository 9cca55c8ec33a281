package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/krumbkraft/orderflow/internal/messages"
	"github.com/krumbkraft/orderflow/internal/notify"
)

type mockDispatcher struct {
	enabled      bool
	DispatchFunc func(ctx context.Context, p notify.Payload) (*notify.Result, error)
	calls        []notify.Payload
}

func (m *mockDispatcher) Enabled() bool { return m.enabled }

func (m *mockDispatcher) Dispatch(ctx context.Context, p notify.Payload) (*notify.Result, error) {
	m.calls = append(m.calls, p)
	return m.DispatchFunc(ctx, p)
}

func jobBody(t *testing.T, orderID string) string {
	t.Helper()
	p := notify.Payload{
		EventType: notify.EventOrderPlaced,
		Order:     notify.OrderView{OrderID: orderID, CustomerName: "Asha"},
		Business:  messages.Business{Name: "KrumbKraft"},
		Timestamp: time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(notify.NewJob(p))
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return string(b)
}

func okDispatcher() *mockDispatcher {
	return &mockDispatcher{
		enabled: true,
		DispatchFunc: func(_ context.Context, _ notify.Payload) (*notify.Result, error) {
			return &notify.Result{Endpoint: "https://hooks.example.com/primary", Attempts: 1, StatusCode: 200}, nil
		},
	}
}

func TestProcessor_DispatchesJobs(t *testing.T) {
	d := okDispatcher()
	p := NewProcessor(d, nil)

	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: jobBody(t, "KrumbAA01")},
		{MessageId: "m2", Body: jobBody(t, "KrumbAA02")},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %+v", resp.BatchItemFailures)
	}
	if len(d.calls) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(d.calls))
	}
	if d.calls[1].Order.OrderID != "KrumbAA02" {
		t.Fatalf("unexpected order id %q", d.calls[1].Order.OrderID)
	}
}

func TestProcessor_ReportsOnlyFailedMessages(t *testing.T) {
	d := okDispatcher()
	d.DispatchFunc = func(_ context.Context, pl notify.Payload) (*notify.Result, error) {
		if pl.Order.OrderID == "KrumbAA02" {
			return nil, errors.New("all endpoints failed")
		}
		return &notify.Result{Attempts: 1}, nil
	}
	p := NewProcessor(d, nil)

	resp, _ := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: jobBody(t, "KrumbAA01")},
		{MessageId: "m2", Body: jobBody(t, "KrumbAA02")},
		{MessageId: "m3", Body: jobBody(t, "KrumbAA03")},
	}})
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m2" {
		t.Fatalf("expected only m2 to fail, got %+v", resp.BatchItemFailures)
	}
	if len(d.calls) != 3 {
		t.Fatalf("a failure must not stop the batch, got %d dispatches", len(d.calls))
	}
}

func TestProcessor_InvalidBody(t *testing.T) {
	d := okDispatcher()
	p := NewProcessor(d, nil)

	resp, _ := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad-json", Body: "{not json"},
		{MessageId: "no-event", Body: `{"job_id":"j1","payload":{"event_type":"bogus"}}`},
	}})
	if len(resp.BatchItemFailures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", resp.BatchItemFailures)
	}
	if len(d.calls) != 0 {
		t.Fatalf("invalid jobs must not be dispatched")
	}
}

func TestProcessor_DisabledDispatcherDropsJob(t *testing.T) {
	d := okDispatcher()
	d.enabled = false
	p := NewProcessor(d, nil)

	resp, _ := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: jobBody(t, "KrumbAA01")},
	}})
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected the job to be acknowledged, got %+v", resp.BatchItemFailures)
	}
	if len(d.calls) != 0 {
		t.Fatalf("disabled dispatcher must not be called")
	}
}
