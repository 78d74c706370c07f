package engine

import (
	"context"
	"testing"
)

// testContext mirrors testing.T.Context (Go 1.24): a context canceled
// just before the test's cleanup functions run.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
