// Package addresses stores customers' saved delivery addresses.
package addresses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/krumbkraft/orderflow/internal/aws"
	"github.com/krumbkraft/orderflow/internal/orders"
)

var ErrAddressNotFound = errors.New("address not found")

// Address is a saved address owned by a user (the user's phone number).
type Address struct {
	AddressID string `json:"address_id" dynamodbav:"address_id"` // PK
	UserID    string `json:"user_id" dynamodbav:"user_id"`       // GSI user_id-index
	orders.Address
	IsDefault bool      `json:"is_default" dynamodbav:"is_default"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

type Store struct {
	client    aws.DynamoDBAPI
	table     string
	userIndex string
	nowFunc   func() time.Time
	newID     func() string
}

func NewStore(client aws.DynamoDBAPI, table, userIndex string) *Store {
	return &Store{
		client:    client,
		table:     table,
		userIndex: userIndex,
		nowFunc:   time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Add saves a new address for addr.UserID and returns it with its id set.
// A user's first address becomes their default.
func (s *Store) Add(ctx context.Context, addr Address) (*Address, error) {
	existing, err := s.ListByUser(ctx, addr.UserID)
	if err != nil {
		return nil, err
	}

	addr.AddressID = s.newID()
	addr.CreatedAt = s.nowFunc()
	addr.IsDefault = len(existing) == 0

	item, err := attributevalue.MarshalMap(addr)
	if err != nil {
		return nil, fmt.Errorf("marshal address: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.table,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(address_id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("put address: %w", err)
	}
	return &addr, nil
}

// Get returns the address or (nil, nil) if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Address, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.table,
		Key:       addressKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var a Address
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	return &a, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]Address, error) {
	input := &dyn.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awsString("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	}
	if s.userIndex != "" {
		input.IndexName = &s.userIndex
	}

	var list []Address
	p := dyn.NewQueryPaginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query addresses: %w", err)
		}
		var batch []Address
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal addresses: %w", err)
		}
		list = append(list, batch...)
	}
	return list, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.table,
		Key:                 addressKey(id),
		ConditionExpression: awsString("attribute_exists(address_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAddressNotFound
		}
		return fmt.Errorf("delete address: %w", err)
	}
	return nil
}

func addressKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"address_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }
