package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractCaller is the CallContract half of bind.ContractCaller. Kept narrow so revert
// decoding can be tested without a node.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// getErrorReasonFromTx replays tx at the receipt's block and extracts the revert reason from the
// error the node returns.
func getErrorReasonFromTx(
	ctx context.Context,
	caller ContractCaller,
	from common.Address,
	tx *types.Transaction,
	receipt *types.Receipt,
) (string, error) {
	call := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Data:     tx.Data(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
	}

	if _, err := caller.CallContract(ctx, call, receipt.BlockNumber); err != nil {
		reason, perr := getJSONErrorData(err)
		if perr == nil {
			return decodeRevertData(reason), nil
		}

		// Not a JSON-RPC error, the message is all we have.
		if reason == "" {
			return err.Error(), nil
		}
	}

	return "", fmt.Errorf("tx %s reverted with no reason", tx.Hash().Hex())
}

// decodeRevertData unpacks a hex encoded Error(string) payload. Anything else, including custom
// errors, is returned unchanged.
func decodeRevertData(data string) string {
	if !strings.HasPrefix(data, "0x") {
		return data
	}

	raw, err := hexutil.Decode(data)
	if err != nil {
		return data
	}

	msg, err := abi.UnpackRevert(raw)
	if err != nil {
		return data
	}

	return msg
}

// getJSONErrorData extracts the data field of a JSON-RPC error.
func getJSONErrorData(err error) (string, error) {
	if err == nil {
		return "", errors.New("cannot parse nil error")
	}

	// Matches the unexported rpc.jsonError in go-ethereum.
	type jsonError interface {
		Error() string
		ErrorCode() int
		ErrorData() any
	}

	var jerr jsonError
	if !errors.As(err, &jerr) {
		return "", fmt.Errorf("error must be of type jsonError: %w", err)
	}

	data := fmt.Sprintf("%s", jerr.ErrorData())
	if data == "" && strings.Contains(jerr.Error(), "missing trie node") {
		return "", errors.New("missing trie node, likely due to not using an archive node")
	}

	return data, nil
}
