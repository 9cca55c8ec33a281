package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsRecorder_Count(t *testing.T) {
	fake := &fakeCloudWatch{}
	rec := NewMetricsRecorder(fake, "KrumbKraft/Orders")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.nowFunc = func() time.Time { return fixed }

	err := rec.Count(context.Background(), "DispatchFailure", 1, map[string]string{"Endpoint": "primary"})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "KrumbKraft/Orders", *in.Namespace)
	require.Len(t, in.MetricData, 1)
	d := in.MetricData[0]
	assert.Equal(t, "DispatchFailure", *d.MetricName)
	assert.Equal(t, 1.0, *d.Value)
	assert.Equal(t, fixed, *d.Timestamp)
	require.Len(t, d.Dimensions, 1)
	assert.Equal(t, "Endpoint", *d.Dimensions[0].Name)
}

func TestMetricsRecorder_NilIsNoop(t *testing.T) {
	var rec *MetricsRecorder
	assert.NoError(t, rec.Count(context.Background(), "x", 1, nil))
}
