package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/notify"
)

var errInvalidJob = errors.New("invalid notification job")

type dispatcher interface {
	Enabled() bool
	Dispatch(ctx context.Context, p notify.Payload) (*notify.Result, error)
}

// Processor drains queued notification jobs into the webhook dispatcher.
type Processor struct {
	dispatcher dispatcher
	logger     *zap.Logger
}

func NewProcessor(d dispatcher, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{dispatcher: d, logger: logger}
}

// Handle processes an SQS batch. Messages that fail are reported back so only
// they are redelivered; after the queue's receive limit they land in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("notification job failed",
				zap.String("messageId", rec.MessageId),
				zap.Error(err),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var job notify.Job
	if err := json.Unmarshal([]byte(rec.Body), &job); err != nil {
		return fmt.Errorf("%w: %v", errInvalidJob, err)
	}
	if job.JobID == "" || !notify.ValidEventType(job.Payload.EventType) {
		return fmt.Errorf("%w: job_id=%q event_type=%q", errInvalidJob, job.JobID, job.Payload.EventType)
	}

	log := p.logger.With(
		zap.String("jobId", job.JobID),
		zap.String("orderId", job.Payload.Order.OrderID),
		zap.String("eventType", job.Payload.EventType),
	)

	if !p.dispatcher.Enabled() {
		log.Warn("webhook not configured, dropping job")
		return nil
	}

	res, err := p.dispatcher.Dispatch(ctx, job.Payload)
	if err != nil {
		return err
	}
	if res != nil {
		log.Info("notification delivered", zap.String("endpoint", res.Endpoint), zap.Int("attempts", res.Attempts))
	}
	return nil
}
