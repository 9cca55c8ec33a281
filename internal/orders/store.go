package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/krumbkraft/orderflow/internal/aws"
)

// Write modes for SaveOrder.
const (
	WriteTransaction = "transaction"
	WriteConcurrent  = "concurrent"
)

var (
	// ErrDuplicateOrderID means another order already holds the id.
	ErrDuplicateOrderID = errors.New("order id already exists")
	ErrOrderNotFound    = errors.New("order not found")
)

const (
	condOrderAbsent  = "attribute_not_exists(order_id)"
	condOrderPresent = "attribute_exists(order_id)"
)

// Store encapsulates operations on the OrderStatus and FinanceRecords tables.
type Store struct {
	client       aws.DynamoDBAPI
	statusTable  string
	financeTable string
	mode         string
	nowFunc      func() time.Time
}

// NewStore creates a new orders Store. mode is WriteTransaction or WriteConcurrent.
func NewStore(client aws.DynamoDBAPI, statusTable, financeTable, mode string) *Store {
	if mode == "" {
		mode = WriteTransaction
	}
	return &Store{
		client:       client,
		statusTable:  statusTable,
		financeTable: financeTable,
		mode:         mode,
		nowFunc:      time.Now,
	}
}

// SaveOrder writes the status record and the finance record for order.
// Both must succeed. In concurrent mode a record that landed is removed
// again when its sibling fails.
func (s *Store) SaveOrder(ctx context.Context, order Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.nowFunc()
	}

	statusMap, err := attributevalue.MarshalMap(order.StatusRecord())
	if err != nil {
		return fmt.Errorf("marshal status record: %w", err)
	}
	financeMap, err := attributevalue.MarshalMap(order.FinanceRecord())
	if err != nil {
		return fmt.Errorf("marshal finance record: %w", err)
	}

	if s.mode == WriteConcurrent {
		return s.saveConcurrent(ctx, order, statusMap, financeMap)
	}
	return s.saveTransaction(ctx, statusMap, financeMap)
}

func (s *Store) saveTransaction(ctx context.Context, statusMap, financeMap map[string]types.AttributeValue) error {
	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.statusTable,
					Item:                statusMap,
					ConditionExpression: awsString(condOrderAbsent),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.financeTable,
					Item:                financeMap,
					ConditionExpression: awsString(condOrderAbsent),
				},
			},
		},
	}

	_, err := s.client.TransactWriteItems(ctx, input)
	if err != nil {
		if conditionFailed(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateOrderID, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// saveConcurrent issues both puts at once and waits for both. When only one
// lands it is deleted again, guarded on this order's uuid, so a retry under a
// new id never leaves a record carrying this order behind. A crash between
// the puts can still leave one record.
func (s *Store) saveConcurrent(ctx context.Context, order Order, statusMap, financeMap map[string]types.AttributeValue) error {
	puts := []struct {
		name  string
		table string
		item  map[string]types.AttributeValue
	}{
		{"status", s.statusTable, statusMap},
		{"finance", s.financeTable, financeMap},
	}

	errs := make([]error, len(puts))
	var wg sync.WaitGroup
	for i, p := range puts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.client.PutItem(ctx, &dyn.PutItemInput{
				TableName:           &p.table,
				Item:                p.item,
				ConditionExpression: awsString(condOrderAbsent),
			})
			if err != nil {
				if conditionFailed(err) {
					errs[i] = fmt.Errorf("put %s record: %w", p.name, ErrDuplicateOrderID)
					return
				}
				errs[i] = fmt.Errorf("put %s record: %w", p.name, err)
			}
		}()
	}
	wg.Wait()

	err := errors.Join(errs...)
	if err == nil {
		return nil
	}
	for i, p := range puts {
		if errs[i] != nil {
			continue
		}
		if rbErr := s.deleteOwned(ctx, p.table, order.OrderID, order.UUID); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("roll back %s record: %w", p.name, rbErr))
		}
	}
	return err
}

// deleteOwned removes orderID from table only while it still belongs to uuid.
func (s *Store) deleteOwned(ctx context.Context, table, orderID, uuid string) error {
	_, err := s.client.DeleteItem(context.WithoutCancel(ctx), &dyn.DeleteItemInput{
		TableName:                &table,
		Key:                      map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: orderID}},
		ConditionExpression:      awsString("#u = :uuid"),
		ExpressionAttributeNames: map[string]string{"#u": "uuid"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uuid": &types.AttributeValueMemberS{Value: uuid},
		},
	})
	if err != nil && !conditionFailed(err) {
		return err
	}
	return nil
}

// GetStatus fetches a status record by order id. Returns (nil, nil) if not found.
func (s *Store) GetStatus(ctx context.Context, orderID string) (*StatusRecord, error) {
	var rec StatusRecord
	found, err := s.get(ctx, s.statusTable, orderID, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// GetFinance fetches a finance record by order id. Returns (nil, nil) if not found.
func (s *Store) GetFinance(ctx context.Context, orderID string) (*FinanceRecord, error) {
	var rec FinanceRecord
	found, err := s.get(ctx, s.financeTable, orderID, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) get(ctx context.Context, table, orderID string, out interface{}) (bool, error) {
	res, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &table,
		Key:       orderKey(orderID),
	})
	if err != nil {
		return false, fmt.Errorf("get item: %w", err)
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", table, err)
	}
	return true, nil
}

// UpdateStatus sets the order status on both records and appends a history entry
// to the status record in one transaction.
func (s *Store) UpdateStatus(ctx context.Context, orderID, status, notes string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	now := s.nowFunc()
	entry, err := attributevalue.Marshal(HistoryEntry{
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
		Notes:     notes,
	})
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	updatedAt, err := attributevalue.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal timestamp: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:                &s.statusTable,
					Key:                      orderKey(orderID),
					UpdateExpression:         awsString("SET #s = :s, status_history = list_append(if_not_exists(status_history, :empty), :h), updated_at = :ua"),
					ConditionExpression:      awsString(condOrderPresent),
					ExpressionAttributeNames: map[string]string{"#s": "status"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":s":     &types.AttributeValueMemberS{Value: status},
						":h":     &types.AttributeValueMemberL{Value: []types.AttributeValue{entry}},
						":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
						":ua":    updatedAt,
					},
				},
			},
			{
				Update: &types.Update{
					TableName:           &s.financeTable,
					Key:                 orderKey(orderID),
					UpdateExpression:    awsString("SET order_status = :s, updated_at = :ua"),
					ConditionExpression: awsString(condOrderPresent),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":s":  &types.AttributeValueMemberS{Value: status},
						":ua": updatedAt,
					},
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		if conditionFailed(err) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("transact update status: %w", err)
	}
	return nil
}

// UpdatePaymentStatus changes payment_status on the finance record.
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID, paymentStatus string) error {
	if !ValidPaymentStatus(paymentStatus) {
		return fmt.Errorf("invalid payment status %q", paymentStatus)
	}
	updatedAt, err := attributevalue.Marshal(s.nowFunc())
	if err != nil {
		return fmt.Errorf("marshal timestamp: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.financeTable,
		Key:                 orderKey(orderID),
		UpdateExpression:    awsString("SET payment_status = :p, updated_at = :ua"),
		ConditionExpression: awsString(condOrderPresent),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":  &types.AttributeValueMemberS{Value: paymentStatus},
			":ua": updatedAt,
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// conditionFailed detects a failed condition on a single write or inside a transaction.
func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }
