package directory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

type memEmployees struct {
	employees map[int64]Employee
	reads     int
}

func (m *memEmployees) GetEmployee(_ context.Context, id int64) (Employee, error) {
	m.reads++
	emp, ok := m.employees[id]
	if !ok {
		return Employee{}, shared.Ef(shared.ErrNotFound, "employee %d not found", id)
	}
	return emp, nil
}

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestResolveCachesLookups(t *testing.T) {
	store := &memEmployees{employees: map[int64]Employee{
		7: {ID: 7, Name: "R. Iyer", Role: "sales", Active: true},
	}}
	resolver := NewResolver(store, testClient(t), time.Minute, nil)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "R. Iyer", first.Name)
	require.Equal(t, 1, store.reads)

	second, err := resolver.Resolve(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.reads, "second lookup should hit the cache")
}

func TestResolveUnknownEmployee(t *testing.T) {
	resolver := NewResolver(&memEmployees{employees: map[int64]Employee{}}, testClient(t), time.Minute, nil)

	_, err := resolver.Resolve(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = resolver.Resolve(context.Background(), 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestInvalidateForcesStoreRead(t *testing.T) {
	store := &memEmployees{employees: map[int64]Employee{
		7: {ID: 7, Name: "R. Iyer", Role: "sales", Active: true},
	}}
	resolver := NewResolver(store, testClient(t), time.Minute, nil)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, resolver.Invalidate(ctx, 7))

	store.employees[7] = Employee{ID: 7, Name: "R. Iyer", Role: "manager", Active: true}
	refreshed, err := resolver.Resolve(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "manager", refreshed.Role)
	require.Equal(t, 2, store.reads)
}

func TestResolveWithoutCache(t *testing.T) {
	store := &memEmployees{employees: map[int64]Employee{
		9: {ID: 9, Name: "S. Rao", Role: "warehouse", Active: true},
	}}
	resolver := NewResolver(store, nil, time.Minute, nil)

	emp, err := resolver.Resolve(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, "S. Rao", emp.Name)
}
