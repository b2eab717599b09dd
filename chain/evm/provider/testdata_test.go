package provider

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"
)

var (
	testChainID    = chainsel.TEST_1000.EvmChainID
	testChainIDBig = new(big.Int).SetUint64(testChainID)
)

var adminAddr = common.HexToAddress("0xc1d6fEcd5D09Ad67cF5E0FC9633D89759DD84271")
