package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/aws"
	"github.com/krumbkraft/orderflow/internal/config"
	"github.com/krumbkraft/orderflow/internal/logger"
	"github.com/krumbkraft/orderflow/internal/notify"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		zl.Fatal("failed to init aws clients", zap.Error(err))
	}

	d := notify.NewDispatcher(notify.Config{
		PrimaryURL:    cfg.Webhook.PrimaryURL,
		SecondaryURL:  cfg.Webhook.SecondaryURL,
		Timeout:       cfg.Webhook.Timeout,
		RetryAttempts: cfg.Webhook.RetryAttempts,
		APIKey:        cfg.Webhook.APIKey,
	}, zl, notify.WithRecorder(aws.NewMetricsRecorder(clients.CloudWatch, cfg.Metrics.Namespace)))

	p := NewProcessor(d, zl)

	// With RUN_LOCAL set, a single message taken from LOCAL_SQS_BODY is processed.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			zl.Fatal("LOCAL_SQS_BODY is required when RUN_LOCAL is set")
		}
		resp, _ := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			zl.Fatal("local job failed")
		}
		return
	}

	lambda.Start(p.Handle)
}
