// Package optest provides utilities for operations testing.
package optest

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/ntzs/deployments/operations"
	"github.com/ntzs/deployments/pkg/logger"
)

// NewBundle creates a new operations bundle for testing with a test logger and a memory
// reporter.
func NewBundle(t *testing.T) operations.Bundle {
	t.Helper()

	return operations.NewBundle(
		t.Context, logger.Test(t), operations.NewMemoryReporter(),
	)
}

// Handle is a scripted operations.Handle. Wait returns Value and Err, or blocks until the
// context is done when Block is set.
type Handle struct {
	TxID  string
	Value any
	Err   error
	Block bool

	waits atomic.Int32
}

var _ operations.Handle = (*Handle)(nil)

func (h *Handle) ID() string { return h.TxID }

func (h *Handle) Wait(ctx context.Context) (any, error) {
	h.waits.Add(1)
	if h.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return h.Value, h.Err
}

// Waits returns how many times Wait was called.
func (h *Handle) Waits() int { return int(h.waits.Load()) }
