package evm_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"

	"github.com/ntzs/deployments/chain/evm"
)

func TestChain_ChainInfo(t *testing.T) {
	t.Parallel()

	c := evm.Chain{Selector: chainsel.ETHEREUM_MAINNET.Selector}

	assert.Equal(t, chainsel.ETHEREUM_MAINNET.Selector, c.ChainSelector())
	assert.Equal(t, "ethereum-mainnet (5009297550715157269)", c.String())
	assert.Equal(t, chainsel.ETHEREUM_MAINNET.Name, c.Name())
	assert.Equal(t, chainsel.FamilyEVM, c.Family())
}

func TestChain_DeployerAddress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, common.Address{}, evm.Chain{}.DeployerAddress())

	from := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	c := evm.Chain{DeployerKey: &bind.TransactOpts{From: from}}
	assert.Equal(t, from, c.DeployerAddress())
}
