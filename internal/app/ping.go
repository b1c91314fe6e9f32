package app

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"

	"procsweep/api/sweepv1"
)

// Ping contacts the agent and returns its health response.
func (a *App) Ping(ctx context.Context, timeout time.Duration) (string, error) {
	var msg string
	err := a.withClient(ctx, timeout, func(ctx context.Context, client sweepv1.SweeperClient) error {
		resp, err := client.Ping(ctx, &emptypb.Empty{})
		if err != nil {
			return fmt.Errorf("agent ping RPC failed: %w", err)
		}
		msg = resp.GetValue()
		return nil
	})
	return msg, err
}
