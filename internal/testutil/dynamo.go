package testutil

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MemoryDynamo is an in-memory stand-in for the DynamoDB operations the stores use.
// It understands the handful of expressions those stores emit, nothing more.
type MemoryDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
	keys   map[string]string // table -> partition key attribute

	// Fail injects errors, keyed by "Op" or "Op:table" (e.g. "PutItem:FinanceRecords").
	Fail  map[string]error
	Calls map[string]int
}

// NewMemoryDynamo creates a fake with the given table -> partition key mapping.
func NewMemoryDynamo(keys map[string]string) *MemoryDynamo {
	m := &MemoryDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
		keys:   keys,
		Fail:   map[string]error{},
		Calls:  map[string]int{},
	}
	for table := range keys {
		m.tables[table] = map[string]map[string]types.AttributeValue{}
	}
	return m
}

// Seed stores item directly, bypassing conditions.
func (m *MemoryDynamo) Seed(table string, item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pkOf(table, item)
	if err != nil {
		panic(err)
	}
	m.tables[table][pk] = item
}

// Item returns the stored item or nil.
func (m *MemoryDynamo) Item(table, pk string) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table][pk]
}

// Len returns the number of items in table.
func (m *MemoryDynamo) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func (m *MemoryDynamo) record(op, table string) error {
	m.Calls[op]++
	if err := m.Fail[op+":"+table]; err != nil {
		return err
	}
	return m.Fail[op]
}

func (m *MemoryDynamo) pkOf(table string, item map[string]types.AttributeValue) (string, error) {
	name, ok := m.keys[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("missing key %q for table %q", name, table)
	}
	return v.Value, nil
}

var equalityCondition = regexp.MustCompile(`^([#\w]+) = (:\w+)$`)

// conditionHolds evaluates attribute_exists, attribute_not_exists and a single
// string equality such as "#s = :prev".
func (m *MemoryDynamo) conditionHolds(table, pk string, cond *string, names map[string]string, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	item, exists := m.tables[table][pk]
	switch {
	case strings.HasPrefix(*cond, "attribute_not_exists("):
		return !exists
	case strings.HasPrefix(*cond, "attribute_exists("):
		return exists
	}
	if match := equalityCondition.FindStringSubmatch(*cond); match != nil {
		got, ok := item[resolveName(match[1], names)].(*types.AttributeValueMemberS)
		want, wok := values[match[2]].(*types.AttributeValueMemberS)
		return exists && ok && wok && got.Value == want.Value
	}
	return true
}

func conditionalFailure(table string) error {
	msg := "The conditional request failed for " + table
	return &types.ConditionalCheckFailedException{Message: &msg}
}

func (m *MemoryDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	if err := m.record("PutItem", table); err != nil {
		return nil, err
	}
	pk, err := m.pkOf(table, params.Item)
	if err != nil {
		return nil, err
	}
	if !m.conditionHolds(table, pk, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, conditionalFailure(table)
	}
	m.tables[table][pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *MemoryDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	if err := m.record("GetItem", table); err != nil {
		return nil, err
	}
	pk, err := m.pkOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *MemoryDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	if err := m.record("DeleteItem", table); err != nil {
		return nil, err
	}
	pk, err := m.pkOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	if !m.conditionHolds(table, pk, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, conditionalFailure(table)
	}
	delete(m.tables[table], pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *MemoryDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	if err := m.record("UpdateItem", table); err != nil {
		return nil, err
	}
	pk, err := m.pkOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	if !m.conditionHolds(table, pk, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, conditionalFailure(table)
	}
	item := m.upsert(table, pk, params.Key)
	if err := applyUpdate(item, deref(params.UpdateExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (m *MemoryDynamo) upsert(table, pk string, key map[string]types.AttributeValue) map[string]types.AttributeValue {
	item, ok := m.tables[table][pk]
	if !ok {
		item = copyItem(key)
		m.tables[table][pk] = item
	}
	return item
}

var keyConditionPattern = regexp.MustCompile(`^([#\w]+) = (:\w+)$`)

// Query supports a single equality key condition, on the table or on an index.
func (m *MemoryDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	if err := m.record("Query", table); err != nil {
		return nil, err
	}
	match := keyConditionPattern.FindStringSubmatch(deref(params.KeyConditionExpression))
	if match == nil {
		return nil, fmt.Errorf("unsupported key condition %q", deref(params.KeyConditionExpression))
	}
	attr := resolveName(match[1], params.ExpressionAttributeNames)
	want, ok := params.ExpressionAttributeValues[match[2]].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("key condition value must be a string")
	}

	var items []map[string]types.AttributeValue
	for _, pk := range m.sortedKeys(table) {
		item := m.tables[table][pk]
		if got, ok := item[attr].(*types.AttributeValueMemberS); ok && got.Value == want.Value {
			items = append(items, item)
		}
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

// Scan returns items ordered by key, honouring Limit and ExclusiveStartKey so paginators work.
func (m *MemoryDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	if err := m.record("Scan", table); err != nil {
		return nil, err
	}
	keys := m.sortedKeys(table)
	start := 0
	if params.ExclusiveStartKey != nil {
		after, err := m.pkOf(table, params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	end := len(keys)
	if params.Limit != nil && start+int(*params.Limit) < end {
		end = start + int(*params.Limit)
	}

	out := &dyn.ScanOutput{}
	for _, pk := range keys[start:end] {
		out.Items = append(out.Items, m.tables[table][pk])
	}
	out.Count = int32(len(out.Items))
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			m.keys[table]: &types.AttributeValueMemberS{Value: keys[end-1]},
		}
	}
	return out, nil
}

// TransactWriteItems checks every condition first and applies nothing if any fails.
func (m *MemoryDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("TransactWriteItems", ""); err != nil {
		return nil, err
	}

	type op struct {
		table string
		pk    string
		it    types.TransactWriteItem
	}
	ops := make([]op, 0, len(params.TransactItems))
	reasons := make([]types.CancellationReason, 0, len(params.TransactItems))
	canceled := false
	for _, it := range params.TransactItems {
		var (
			table  string
			key    map[string]types.AttributeValue
			cond   *string
			names  map[string]string
			values map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			table, key, cond = *it.Put.TableName, it.Put.Item, it.Put.ConditionExpression
			names, values = it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
		case it.Update != nil:
			table, key, cond = *it.Update.TableName, it.Update.Key, it.Update.ConditionExpression
			names, values = it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
		case it.Delete != nil:
			table, key, cond = *it.Delete.TableName, it.Delete.Key, it.Delete.ConditionExpression
			names, values = it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
		default:
			return nil, errors.New("unsupported transact item")
		}
		pk, err := m.pkOf(table, key)
		if err != nil {
			return nil, err
		}
		code := "None"
		if !m.conditionHolds(table, pk, cond, names, values) {
			code = "ConditionalCheckFailed"
			canceled = true
		}
		reasons = append(reasons, types.CancellationReason{Code: &code})
		ops = append(ops, op{table: table, pk: pk, it: it})
	}
	if canceled {
		msg := "Transaction cancelled"
		return nil, &types.TransactionCanceledException{Message: &msg, CancellationReasons: reasons}
	}

	for _, o := range ops {
		switch {
		case o.it.Put != nil:
			m.tables[o.table][o.pk] = o.it.Put.Item
		case o.it.Update != nil:
			item := m.upsert(o.table, o.pk, o.it.Update.Key)
			u := o.it.Update
			if err := applyUpdate(item, deref(u.UpdateExpression), u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		case o.it.Delete != nil:
			delete(m.tables[o.table], o.pk)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *MemoryDynamo) sortedKeys(table string) []string {
	keys := make([]string, 0, len(m.tables[table]))
	for k := range m.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	listAppendPattern = regexp.MustCompile(`([#\w]+) = list_append\(if_not_exists\([#\w]+, (:\w+)\), (:\w+)\)`)
	setPattern        = regexp.MustCompile(`([#\w]+) = (:\w+)`)
	addPattern        = regexp.MustCompile(`([#\w]+) (:\w+)`)
)

// applyUpdate understands "SET a = :v, b = list_append(if_not_exists(b, :e), :l)" and "ADD n :v".
func applyUpdate(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	switch {
	case strings.HasPrefix(expr, "SET "):
		body := strings.TrimPrefix(expr, "SET ")
		for _, m := range listAppendPattern.FindAllStringSubmatch(body, -1) {
			attr := resolveName(m[1], names)
			current, ok := item[attr].(*types.AttributeValueMemberL)
			if !ok {
				current, ok = values[m[2]].(*types.AttributeValueMemberL)
			}
			if !ok {
				current = &types.AttributeValueMemberL{}
			}
			tail, ok := values[m[3]].(*types.AttributeValueMemberL)
			if !ok {
				return fmt.Errorf("list_append value %s is not a list", m[3])
			}
			merged := append([]types.AttributeValue{}, current.Value...)
			merged = append(merged, tail.Value...)
			item[attr] = &types.AttributeValueMemberL{Value: merged}
		}
		body = listAppendPattern.ReplaceAllString(body, "")
		for _, m := range setPattern.FindAllStringSubmatch(body, -1) {
			v, ok := values[m[2]]
			if !ok {
				return fmt.Errorf("missing value %s", m[2])
			}
			item[resolveName(m[1], names)] = v
		}
	case strings.HasPrefix(expr, "ADD "):
		for _, m := range addPattern.FindAllStringSubmatch(strings.TrimPrefix(expr, "ADD "), -1) {
			attr := resolveName(m[1], names)
			inc, ok := values[m[2]].(*types.AttributeValueMemberN)
			if !ok {
				return fmt.Errorf("ADD value %s is not a number", m[2])
			}
			delta, _ := strconv.Atoi(inc.Value)
			current := 0
			if n, ok := item[attr].(*types.AttributeValueMemberN); ok {
				current, _ = strconv.Atoi(n.Value)
			}
			item[attr] = &types.AttributeValueMemberN{Value: strconv.Itoa(current + delta)}
		}
	default:
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	return nil
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if resolved, ok := names[name]; ok {
			return resolved
		}
	}
	return name
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
