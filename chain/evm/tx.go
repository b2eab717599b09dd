package evm

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/core/types"
)

// TxHandle tracks a submitted transaction until it is mined.
type TxHandle struct {
	tx      *types.Transaction
	confirm ConfirmFunc
	value   any
}

// NewTxHandle returns a handle resolving to value once tx is confirmed by confirm.
func NewTxHandle(tx *types.Transaction, confirm ConfirmFunc, value any) *TxHandle {
	return &TxHandle{tx: tx, confirm: confirm, value: value}
}

// ID returns the transaction hash.
func (h *TxHandle) ID() string { return h.tx.Hash().Hex() }

// Tx returns the submitted transaction.
func (h *TxHandle) Tx() *types.Transaction { return h.tx }

// Wait blocks until the transaction is mined and returns the value the handle was created
// with, e.g. the address of a deployed contract. A reverted transaction is an error.
func (h *TxHandle) Wait(ctx context.Context) (any, error) {
	if h.confirm == nil {
		return nil, errors.New("no confirm function configured")
	}
	if _, err := h.confirm(ctx, h.tx); err != nil {
		return nil, err
	}

	return h.value, nil
}
