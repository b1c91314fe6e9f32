package app

import (
	"context"
	"fmt"

	"procsweep/api/sweepv1"
)

// History fetches recorded runs from the agent, newest first.
func (a *App) History(ctx context.Context, params HistoryParams) ([]Report, error) {
	req, err := params.request()
	if err != nil {
		return nil, err
	}

	var runs []Report
	err = a.withClient(ctx, params.Timeout, func(ctx context.Context, client sweepv1.SweeperClient) error {
		resp, err := client.History(ctx, req.Proto())
		if err != nil {
			return fmt.Errorf("agent history RPC failed: %w", err)
		}
		runs = sweepv1.HistoryFromProto(resp)
		return nil
	})
	return runs, err
}
