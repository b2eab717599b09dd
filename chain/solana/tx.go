package solana

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/ntzs/deployments/chain/solana/provider/rpcclient"
)

// TxHandle tracks a submitted transaction until it is confirmed.
type TxHandle struct {
	client *rpcclient.Client
	sig    solana.Signature
	opts   []rpcclient.SendOpt
}

// ID returns the transaction signature.
func (h *TxHandle) ID() string { return h.sig.String() }

// Signature returns the transaction signature.
func (h *TxHandle) Signature() solana.Signature { return h.sig }

// Wait blocks until the transaction is confirmed and returns its signature.
func (h *TxHandle) Wait(ctx context.Context) (any, error) {
	if err := h.client.Confirm(ctx, h.sig, h.opts...); err != nil {
		return nil, err
	}

	return h.sig.String(), nil
}

// Send submits instructions as a single transaction signed by the deployer and returns without
// waiting for confirmation.
func (c Chain) Send(ctx context.Context, instructions []solana.Instruction, opts ...rpcclient.SendOpt) (*TxHandle, error) {
	if c.Client == nil {
		return nil, errors.New("solana client is not configured")
	}

	sig, err := c.Client.Send(ctx, instructions, opts...)
	if err != nil {
		return nil, err
	}

	return &TxHandle{client: c.Client, sig: sig, opts: opts}, nil
}
