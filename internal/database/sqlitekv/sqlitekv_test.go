package sqlitekv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetCommit(t *testing.T) {
	env, err := Open(":memory:")
	require.NoError(t, err)
	defer env.Close()

	ctx := context.Background()
	wtx, err := env.BeginWrite(ctx)
	require.NoError(t, err)

	tbl, err := wtx.Table("widgets")
	require.NoError(t, err)
	require.NoError(t, tbl.Put([]byte("a"), []byte("1")))
	require.NoError(t, wtx.Commit(ctx))

	rtx, err := env.BeginRead(ctx)
	require.NoError(t, err)
	defer rtx.Close()

	rtbl, err := rtx.Table("widgets")
	require.NoError(t, err)
	v, found, err := rtbl.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("1"), v)
}

func TestRangeScanOrdered(t *testing.T) {
	env, err := Open(":memory:")
	require.NoError(t, err)
	defer env.Close()

	ctx := context.Background()
	wtx, err := env.BeginWrite(ctx)
	require.NoError(t, err)
	tbl, err := wtx.Table("ordered")
	require.NoError(t, err)
	for _, k := range []string{"b", "a", "c"} {
		require.NoError(t, tbl.Put([]byte(k), []byte(k)))
	}
	require.NoError(t, wtx.Commit(ctx))

	rtx, err := env.BeginRead(ctx)
	require.NoError(t, err)
	defer rtx.Close()
	rtbl, err := rtx.Table("ordered")
	require.NoError(t, err)

	var seen []string
	require.NoError(t, rtbl.Range([]byte("a"), []byte("z"), func(k, v []byte) (bool, error) {
		seen = append(seen, string(k))
		return true, nil
	}))
	require.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	env, err := Open(":memory:")
	require.NoError(t, err)
	defer env.Close()

	ctx := context.Background()
	wtx, err := env.BeginWrite(ctx)
	require.NoError(t, err)
	tbl, err := wtx.Table("rolled")
	require.NoError(t, err)
	require.NoError(t, tbl.Put([]byte("x"), []byte("y")))
	require.NoError(t, wtx.Rollback())

	// A second writer should be able to proceed once the mutex releases.
	wtx2, err := env.BeginWrite(ctx)
	require.NoError(t, err)
	tbl2, err := wtx2.Table("rolled")
	require.NoError(t, err)
	_, found, err := tbl2.Get([]byte("x"))
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, wtx2.Rollback())
}
