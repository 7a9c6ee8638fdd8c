package dbutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizeRewritesLimit(t *testing.T) {
	query, args := Finalize("SELECT id FROM pages WHERE user_id=? ORDER BY ctime DESC LIMIT ?,?", []interface{}{"u", 10, 20})
	require.Equal(t, "SELECT id FROM pages WHERE user_id=$1 ORDER BY ctime DESC LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"u", 20, 10}, args)
}

func TestInArgs(t *testing.T) {
	require.Equal(t, []interface{}{int64(1), int64(2)}, InArgs([]int64{1, 2}))
	require.Empty(t, InArgs([]string{}))
}
