package addresses

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krumbkraft/orderflow/internal/orders"
	"github.com/krumbkraft/orderflow/internal/testutil"
)

const table = "Address"

func newTestStore() (*Store, *testutil.MemoryDynamo) {
	db := testutil.NewMemoryDynamo(map[string]string{table: "address_id"})
	s := NewStore(db, table, "user_id-index")
	s.nowFunc = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("addr-%d", n)
	}
	return s, db
}

func homeAddress(user string) Address {
	return Address{
		UserID: user,
		Address: orders.Address{
			FullAddress: "123 Test Street, Apartment 4B",
			Area:        "Test Area",
			City:        "Mumbai",
			Pincode:     "400001",
			Landmark:    "Near Test Mall",
		},
	}
}

func TestAdd_FirstAddressIsDefault(t *testing.T) {
	s, db := newTestStore()
	ctx := context.Background()

	first, err := s.Add(ctx, homeAddress("+919876543210"))
	require.NoError(t, err)
	assert.Equal(t, "addr-1", first.AddressID)
	assert.True(t, first.IsDefault)

	second, err := s.Add(ctx, homeAddress("+919876543210"))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	other, err := s.Add(ctx, homeAddress("+911111111111"))
	require.NoError(t, err)
	assert.True(t, other.IsDefault)

	assert.Equal(t, 3, db.Len(table))
}

func TestGet(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	added, err := s.Add(ctx, homeAddress("u1"))
	require.NoError(t, err)

	got, err := s.Get(ctx, added.AddressID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Near Test Mall", got.Landmark)
	assert.Equal(t, "u1", got.UserID)

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListByUser(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u1"} {
		_, err := s.Add(ctx, homeAddress(u))
		require.NoError(t, err)
	}

	list, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	for _, a := range list {
		assert.Equal(t, "u1", a.UserID)
	}

	none, err := s.ListByUser(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete(t *testing.T) {
	s, db := newTestStore()
	ctx := context.Background()

	added, err := s.Add(ctx, homeAddress("u1"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, added.AddressID))
	assert.Equal(t, 0, db.Len(table))

	assert.ErrorIs(t, s.Delete(ctx, added.AddressID), ErrAddressNotFound)
}

func TestAdd_QueryFailure(t *testing.T) {
	s, db := newTestStore()
	db.Fail["Query"] = errors.New("throttled")

	_, err := s.Add(context.Background(), homeAddress("u1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Equal(t, 0, db.Len(table))
}
