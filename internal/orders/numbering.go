package orders

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/aws"
)

const (
	orderIDPrefix = "Krumb"
	// The letter pair never rolls over; numbers past 99 simply grow to three digits.
	orderIDLetters = "AA"

	counterKey = "order_number"
)

var orderIDPattern = regexp.MustCompile(`^Krumb([A-Z]{2})(\d+)$`)

// Numberer assigns human-readable order ids. fallback is true when the id
// was made up because the store could not be read.
type Numberer interface {
	NextOrderNumber(ctx context.Context) (id string, fallback bool)
}

// FormatOrderID renders n as KrumbAA + at least two digits.
func FormatOrderID(n int) string {
	return fmt.Sprintf("%s%s%02d", orderIDPrefix, orderIDLetters, n)
}

// ParseOrderNumber extracts the numeric suffix of an order id.
func ParseOrderNumber(orderID string) (int, bool) {
	m := orderIDPattern.FindStringSubmatch(orderID)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return n, true
}

func timeSeededFallback() string {
	seed := uint64(time.Now().UnixNano())
	r := rand.New(rand.NewPCG(seed, seed>>32))
	return FormatOrderID(r.IntN(100))
}

// ScanNumberer reads every order id in the status table and returns max+1.
// Two concurrent callers can compute the same id; SaveOrder rejects the loser.
type ScanNumberer struct {
	client       aws.DynamoDBAPI
	tableName    string
	logger       *zap.Logger
	fallbackFunc func() string
}

func NewScanNumberer(client aws.DynamoDBAPI, tableName string, logger *zap.Logger) *ScanNumberer {
	return &ScanNumberer{
		client:       client,
		tableName:    tableName,
		logger:       logger,
		fallbackFunc: timeSeededFallback,
	}
}

func (n *ScanNumberer) NextOrderNumber(ctx context.Context) (string, bool) {
	maxNum, err := n.maxOrderNumber(ctx)
	if err != nil {
		id := n.fallbackFunc()
		n.logger.Warn("order numbering fell back to random id", zap.String("orderId", id), zap.Error(err))
		return id, true
	}
	return FormatOrderID(maxNum + 1), false
}

func (n *ScanNumberer) maxOrderNumber(ctx context.Context) (int, error) {
	paginator := dyn.NewScanPaginator(n.client, &dyn.ScanInput{
		TableName:            &n.tableName,
		ProjectionExpression: awsString("order_id"),
	})

	maxNum := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("scan order ids: %w", err)
		}
		for _, item := range page.Items {
			var rec struct {
				OrderID string `dynamodbav:"order_id"`
			}
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return 0, fmt.Errorf("unmarshal order id: %w", err)
			}
			if num, ok := ParseOrderNumber(rec.OrderID); ok && num > maxNum {
				maxNum = num
			}
		}
	}
	return maxNum, nil
}

// CounterNumberer increments a single counter document atomically, so
// concurrent checkouts never share a number.
type CounterNumberer struct {
	client       aws.DynamoDBAPI
	tableName    string
	logger       *zap.Logger
	fallbackFunc func() string
}

func NewCounterNumberer(client aws.DynamoDBAPI, tableName string, logger *zap.Logger) *CounterNumberer {
	return &CounterNumberer{
		client:       client,
		tableName:    tableName,
		logger:       logger,
		fallbackFunc: timeSeededFallback,
	}
}

func (n *CounterNumberer) NextOrderNumber(ctx context.Context) (string, bool) {
	seq, err := n.increment(ctx)
	if err != nil {
		id := n.fallbackFunc()
		n.logger.Warn("order counter unavailable, using random id", zap.String("orderId", id), zap.Error(err))
		return id, true
	}
	return FormatOrderID(seq), false
}

func (n *CounterNumberer) increment(ctx context.Context) (int, error) {
	out, err := n.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &n.tableName,
		Key: map[string]types.AttributeValue{
			"counter_id": &types.AttributeValueMemberS{Value: counterKey},
		},
		UpdateExpression:          awsString("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": &types.AttributeValueMemberN{Value: "1"}},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	var rec struct {
		Seq int `dynamodbav:"seq"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return 0, fmt.Errorf("unmarshal counter: %w", err)
	}
	if rec.Seq == 0 {
		return 0, fmt.Errorf("counter returned no sequence")
	}
	return rec.Seq, nil
}
