package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/testutil"
)

func newNumberingDynamo() *testutil.MemoryDynamo {
	return testutil.NewMemoryDynamo(map[string]string{
		"OrderStatus":   "order_id",
		"OrderCounters": "counter_id",
	})
}

func seedOrderID(db *testutil.MemoryDynamo, id string) {
	db.Seed("OrderStatus", map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: id},
	})
}

func TestFormatOrderID(t *testing.T) {
	assert.Equal(t, "KrumbAA07", FormatOrderID(7))
	assert.Equal(t, "KrumbAA10", FormatOrderID(10))
	assert.Equal(t, "KrumbAA100", FormatOrderID(100))
}

func TestParseOrderNumber(t *testing.T) {
	n, ok := ParseOrderNumber("KrumbAA07")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	n, ok = ParseOrderNumber("KrumbAB123")
	assert.True(t, ok)
	assert.Equal(t, 123, n)

	for _, bad := range []string{"", "TEST-1724", "KrumbA01", "krumbAA01", "KrumbAA", "KrumbAA01x"} {
		_, ok := ParseOrderNumber(bad)
		assert.False(t, ok, bad)
	}
}

func TestScanNumberer_NextAfterOneToNine(t *testing.T) {
	db := newNumberingDynamo()
	for i := 1; i <= 9; i++ {
		seedOrderID(db, fmt.Sprintf("KrumbAA%02d", i))
	}

	n := NewScanNumberer(db, "OrderStatus", zap.NewNop())
	id, fallback := n.NextOrderNumber(context.Background())

	assert.False(t, fallback)
	assert.Equal(t, "KrumbAA10", id)
}

func TestScanNumberer_EmptyTable(t *testing.T) {
	n := NewScanNumberer(newNumberingDynamo(), "OrderStatus", zap.NewNop())
	id, fallback := n.NextOrderNumber(context.Background())

	assert.False(t, fallback)
	assert.Equal(t, "KrumbAA01", id)
}

func TestScanNumberer_IgnoresForeignIDsAndKeepsLetterPair(t *testing.T) {
	db := newNumberingDynamo()
	seedOrderID(db, "TEST-1724000000")
	seedOrderID(db, "KrumbAA03")
	seedOrderID(db, "KrumbAB15")

	n := NewScanNumberer(db, "OrderStatus", zap.NewNop())
	id, _ := n.NextOrderNumber(context.Background())

	assert.Equal(t, "KrumbAA16", id)
}

func TestScanNumberer_FallbackOnReadFailure(t *testing.T) {
	db := newNumberingDynamo()
	db.Fail["Scan"] = errors.New("throttled")

	n := NewScanNumberer(db, "OrderStatus", zap.NewNop())
	n.fallbackFunc = func() string { return "KrumbAA42" }

	id, fallback := n.NextOrderNumber(context.Background())
	assert.True(t, fallback)
	assert.Equal(t, "KrumbAA42", id)
}

func TestTimeSeededFallback_Format(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := timeSeededFallback()
		assert.Regexp(t, `^KrumbAA\d{2}$`, id)
	}
}

func TestCounterNumberer_Increments(t *testing.T) {
	db := newNumberingDynamo()
	n := NewCounterNumberer(db, "OrderCounters", zap.NewNop())

	for want := 1; want <= 3; want++ {
		id, fallback := n.NextOrderNumber(context.Background())
		assert.False(t, fallback)
		assert.Equal(t, FormatOrderID(want), id)
	}
}

func TestCounterNumberer_FallbackOnFailure(t *testing.T) {
	db := newNumberingDynamo()
	db.Fail["UpdateItem"] = errors.New("unavailable")

	n := NewCounterNumberer(db, "OrderCounters", zap.NewNop())
	n.fallbackFunc = func() string { return "KrumbAA05" }

	id, fallback := n.NextOrderNumber(context.Background())
	assert.True(t, fallback)
	assert.Equal(t, "KrumbAA05", id)
}
