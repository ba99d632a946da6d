package httpapi

import (
	"context"
	"testing"
	"time"
)

func TestJoinContexts_CancelEitherSide(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	b := context.Background()
	joined, cancel := joinContexts(a, b)
	defer cancel()

	select {
	case <-joined.Done():
		t.Fatalf("joined done before either side")
	default:
	}
	cancelA()
	select {
	case <-joined.Done():
	case <-time.After(time.Second):
		t.Fatalf("joined not canceled after a")
	}
}

func TestSetBaseContext_NilResets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	if serverBaseCtx != ctx {
		t.Fatalf("base context not installed")
	}
	cancel()
	SetBaseContext(nil)
	if serverBaseCtx.Err() != nil {
		t.Fatalf("base context not reset")
	}
}
