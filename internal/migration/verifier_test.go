package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	names    []string
	listErr  error
	counts   map[string]int64
	countErr map[string]error
	calls    []string
}

func (f *fakeTarget) TableNames(ctx context.Context) ([]string, error) {
	return f.names, f.listErr
}

func (f *fakeTarget) CountRows(ctx context.Context, table string) (int64, error) {
	f.calls = append(f.calls, table)
	if err := f.countErr[table]; err != nil {
		return 0, err
	}
	return f.counts[table], nil
}

func TestVerify(t *testing.T) {
	target := &fakeTarget{
		names:    []string{"users", "orders"},
		counts:   map[string]int64{"users": 10},
		countErr: map[string]error{"orders": errors.New("timeout")},
	}
	tables := []TableResult{
		{TableName: "users", Status: StatusSuccess},
		{TableName: "orders", Status: StatusSuccess},
		{TableName: "items", Status: StatusSuccess},
	}

	var logged []string
	out, err := Verify(context.Background(), target, tables, func(_ Level, msg string) { logged = append(logged, msg) })
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.True(t, out[0].Verified.Exists)
	require.NotNil(t, out[0].Verified.RowCount)
	assert.EqualValues(t, 10, *out[0].Verified.RowCount)

	// a failed count keeps exists=true with no count
	assert.True(t, out[1].Verified.Exists)
	assert.Nil(t, out[1].Verified.RowCount)

	assert.False(t, out[2].Verified.Exists)
	assert.Nil(t, out[2].Verified.RowCount)
	assert.False(t, out[2].Verified.VerifiedAt.IsZero())

	// sequential, in result order, never counting a missing table
	assert.Equal(t, []string{"users", "orders"}, target.calls)
	assert.Equal(t, []string{"Verified users: 10 rows", "Verified orders exists (row count unavailable)", "Table items not found in target"}, logged)

	// input untouched
	assert.Nil(t, tables[0].Verified)
}

func TestVerifyListFailureLeavesEntriesUnverified(t *testing.T) {
	target := &fakeTarget{listErr: errors.New("backend down")}
	out, err := Verify(context.Background(), target, []TableResult{{TableName: "users"}}, nil)
	assert.Error(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Verified)
	assert.Empty(t, target.calls)
}
