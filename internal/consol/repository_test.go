package consol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBalanceQuery(t *testing.T) {
	repo := NewRepository(nil)
	from := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2018, 1, 31, 0, 0, 0, 0, time.UTC)
	filter := BalanceFilter{CompanyID: 3, AccountIDs: []int64{10, 11}, DateFrom: from, DateTo: to, TargetMove: TargetMovePosted}

	query, args, err := repo.balanceQuery(filter).ToSql()
	require.NoError(t, err)
	require.Contains(t, query, "FROM move_lines l JOIN moves m ON m.id = l.move_id")
	require.Contains(t, query, "m.company_id = $1")
	require.Contains(t, query, "l.account_id IN ($2,$3)")
	require.Contains(t, query, "m.date >= $4")
	require.Contains(t, query, "m.date <= $5")
	require.Contains(t, query, "m.state = $6")
	require.Contains(t, query, "GROUP BY l.account_id")
	require.Equal(t, []interface{}{int64(3), int64(10), int64(11), from, to, "POSTED"}, args)

	filter.TargetMove = TargetMoveAll
	query, args, err = repo.balanceQuery(filter).ToSql()
	require.NoError(t, err)
	require.NotContains(t, query, "m.state")
	require.Equal(t, []interface{}{int64(3), int64(10), int64(11), from, to}, args)
}
