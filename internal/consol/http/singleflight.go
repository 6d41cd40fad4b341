package http

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
)

var runGroup singleflight.Group

// singleflightRun collapses identical runs in flight so a double submit creates one set of moves.
func singleflightRun(ctx context.Context, key string, fn func(context.Context) (consol.RunResult, error)) (consol.RunResult, error, bool) {
	resultChan := runGroup.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return consol.RunResult{}, ctx.Err(), false
	case res := <-resultChan:
		if res.Err != nil {
			return consol.RunResult{}, res.Err, res.Shared
		}
		return res.Val.(consol.RunResult), nil, res.Shared
	}
}

func runKey(p consol.RunParams) string {
	subs := append([]int64(nil), p.SubsidiaryIDs...)
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	parts := make([]string, len(subs))
	for i, id := range subs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("consol:run:%d|%s|%s|%s|%d", p.HoldingID, strings.Join(parts, ","), p.Period(), p.TargetMove, p.JournalID)
}
