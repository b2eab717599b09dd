package internal

import (
	"fmt"
	"strconv"

	chainsel "github.com/smartcontractkit/chain-selectors"
)

// ChainBase is embedded by the chain structs to derive names from the selector.
type ChainBase struct {
	Selector uint64
}

// ChainSelector returns the chain selector of the chain
func (c ChainBase) ChainSelector() uint64 {
	return c.Selector
}

// String returns chain name and selector "<name> (<selector>)"
func (c ChainBase) String() string {
	return fmt.Sprintf("%s (%d)", c.Name(), c.Selector)
}

// Name returns the name of the chain, falling back to the selector when the chain is not known
// to chain-selectors.
func (c ChainBase) Name() string {
	chainInfo, err := ChainInfo(c.Selector)
	if err != nil || chainInfo.ChainName == "" {
		return strconv.FormatUint(c.Selector, 10)
	}

	return chainInfo.ChainName
}

// Family returns the family of the chain, or an empty string for an unknown selector.
func (c ChainBase) Family() string {
	family, err := chainsel.GetSelectorFamily(c.Selector)
	if err != nil {
		return ""
	}

	return family
}

// ChainInfo returns the chain info for the given selector.
func ChainInfo(cs uint64) (chainsel.ChainDetails, error) {
	id, err := chainsel.GetChainIDFromSelector(cs)
	if err != nil {
		return chainsel.ChainDetails{}, err
	}
	family, err := chainsel.GetSelectorFamily(cs)
	if err != nil {
		return chainsel.ChainDetails{}, err
	}

	return chainsel.GetChainDetailsByChainIDAndFamily(id, family)
}
