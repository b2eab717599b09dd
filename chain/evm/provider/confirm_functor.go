package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ntzs/deployments/chain/evm"
)

// ConfirmFunctor creates the confirmation function used by an evm.Chain.
type ConfirmFunctor interface {
	// Generate returns a function that confirms transactions sent by from.
	Generate(selector uint64, client evm.OnchainClient, from common.Address) (evm.ConfirmFunc, error)
}

// ConfirmFuncGeth returns a ConfirmFunctor that polls the node for receipts.
//
// waitMinedTimeout caps every wait, on top of whatever deadline the caller's context carries.
func ConfirmFuncGeth(waitMinedTimeout time.Duration, opts ...func(*confirmFuncGeth)) ConfirmFunctor {
	cf := &confirmFuncGeth{
		tickInterval:     1 * time.Second, // the same value we have in bind.WaitMined hardcoded in "go-ethereum"
		waitMinedTimeout: waitMinedTimeout,
	}
	for _, o := range opts {
		o(cf)
	}

	return cf
}

// WithTickInterval sets how often the receipt is polled.
func WithTickInterval(interval time.Duration) func(*confirmFuncGeth) {
	return func(o *confirmFuncGeth) {
		o.tickInterval = interval
	}
}

type confirmFuncGeth struct {
	tickInterval     time.Duration
	waitMinedTimeout time.Duration
}

func (g *confirmFuncGeth) Generate(
	selector uint64, client evm.OnchainClient, from common.Address,
) (evm.ConfirmFunc, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required for selector %d", selector)
	}

	return func(ctx context.Context, tx *types.Transaction) (uint64, error) {
		if tx == nil {
			return 0, fmt.Errorf("tx was nil, nothing to confirm for selector: %d", selector)
		}

		if g.waitMinedTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.waitMinedTimeout)
			defer cancel()
		}

		receipt, err := WaitMinedWithInterval(ctx, g.tickInterval, client, tx.Hash())
		if err != nil {
			return 0, fmt.Errorf("tx %s failed to confirm for selector %d: %w",
				tx.Hash().Hex(), selector, err,
			)
		}

		return checkReceipt(ctx, selector, client, from, tx, receipt)
	}, nil
}

// checkReceipt turns a reverted receipt into an error carrying the revert reason when the node
// can replay the call.
func checkReceipt(
	ctx context.Context,
	selector uint64,
	caller ContractCaller,
	from common.Address,
	tx *types.Transaction,
	receipt *types.Receipt,
) (uint64, error) {
	if receipt == nil {
		return 0, fmt.Errorf("receipt was nil for tx %s for selector %d", tx.Hash().Hex(), selector)
	}

	blockNum := receipt.BlockNumber.Uint64()
	if receipt.Status == types.ReceiptStatusFailed {
		reason, err := getErrorReasonFromTx(ctx, caller, from, tx, receipt)
		if err == nil && reason != "" {
			return 0, fmt.Errorf("tx %s reverted for selector %d: %s",
				tx.Hash().Hex(), selector, reason,
			)
		}

		return blockNum, fmt.Errorf("tx %s reverted, could not decode error reason for selector %d",
			tx.Hash().Hex(), selector,
		)
	}

	return blockNum, nil
}

// WaitMinedWithInterval polls for the receipt of txHash every tick until it is found or ctx is
// done. Useful for networks with instant blocks where the default one second poll is too slow.
func WaitMinedWithInterval(ctx context.Context, tick time.Duration, b bind.DeployBackend, txHash common.Hash) (*types.Receipt, error) {
	queryTicker := time.NewTicker(tick)
	defer queryTicker.Stop()
	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-queryTicker.C:
		}
	}
}
