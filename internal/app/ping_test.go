package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"procsweep/api/sweepv1"
)

func TestAppPingNotRunning(t *testing.T) {
	stubDaemon(t, false, nil)

	app := New(Options{})
	if _, err := app.Ping(context.Background(), time.Second); err == nil || err.Error() != "agent is not running" {
		t.Fatalf("expected agent not running error, got %v", err)
	}
}

func TestAppPingSuccess(t *testing.T) {
	stubConn(t, &fakeConn{
		invoke: func(ctx context.Context, method string, args interface{}, reply interface{}, opts ...grpc.CallOption) error {
			if method != sweepv1.PingMethod {
				t.Fatalf("unexpected method %s", method)
			}
			resp, ok := reply.(*wrapperspb.StringValue)
			if !ok {
				t.Fatalf("unexpected reply type %T", reply)
			}
			resp.Value = "pong"
			return nil
		},
	})

	app := New(Options{})
	msg, err := app.Ping(context.Background(), 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if msg != "pong" {
		t.Fatalf("expected pong, got %q", msg)
	}
}

func TestAppPingDialError(t *testing.T) {
	stubDaemon(t, true, func(ctx context.Context) (sweepv1.SweeperClient, io.Closer, error) {
		return nil, nil, errors.New("dial failed")
	})

	app := New(Options{})
	if _, err := app.Ping(context.Background(), time.Second); err == nil || err.Error() != "connect to agent: dial failed" {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}

func TestAppPingInvalidTimeout(t *testing.T) {
	stubDaemon(t, true, func(ctx context.Context) (sweepv1.SweeperClient, io.Closer, error) {
		return nil, nil, errors.New("should not dial")
	})

	app := New(Options{})
	if _, err := app.Ping(context.Background(), 0); err == nil || err.Error() != "timeout must be greater than 0" {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
