package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsRecorder publishes pipeline counters to CloudWatch.
type MetricsRecorder struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsRecorder returns a recorder writing under namespace.
func NewMetricsRecorder(client CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count records value for name with the given dimensions (name -> value).
func (m *MetricsRecorder) Count(ctx context.Context, name string, value float64, dimensions map[string]string) error {
	if m == nil || m.client == nil {
		return nil
	}
	now := m.nowFunc()
	datum := cwtypes.MetricDatum{
		MetricName: awsString(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      &value,
		Timestamp:  &now,
	}
	for k, v := range dimensions {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  awsString(k),
			Value: awsString(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  awsString(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
