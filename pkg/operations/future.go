package operations

import (
	"context"

	"github.com/dukex/flowscope/pkg/models"
)

// Future is the handle of one dispatched operation. It completes when the
// engine command returned and the operation's terminal state was persisted;
// it does not wait for the engine-side effect to become visible in the
// index.
type Future struct {
	operationID string
	done        chan struct{}

	operation *models.Operation
	err       error
}

func newFuture(operationID string) *Future {
	return &Future{operationID: operationID, done: make(chan struct{})}
}

// OperationID identifies the operation this future tracks.
func (f *Future) OperationID() string { return f.operationID }

// Wait blocks until the dispatch completed or the context is done. It
// returns the operation in its terminal state; err is the engine command
// failure for FAILED operations, nil for COMPLETED ones.
func (f *Future) Wait(ctx context.Context) (*models.Operation, error) {
	select {
	case <-f.done:
		return f.operation, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) complete(operation *models.Operation, err error) {
	f.operation = operation
	f.err = err
	close(f.done)
}
