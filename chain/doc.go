/*
Package chain provides the chain abstraction shared by the EVM and Solana clients.

# BlockChain

Every chain the deployer operates on satisfies BlockChain:

	type BlockChain interface {
		String() string         // "<name> (<selector>)"
		Name() string           // chain name from chain-selectors
		ChainSelector() uint64
		Family() string         // "evm" or "solana"
	}

Chains are built by a Provider, one per family, see chain/evm/provider and
chain/solana/provider:

	bc, err := provider.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize %s: %w", provider.Name(), err)
	}

FamilyOf resolves a selector to its family and rejects families the deployer does not support.

# Addresses

Address tags an on-chain address with its family so expectations and live values from different
chains never compare equal by accident:

	owner, err := chain.EVMAddress("0xab8483f64d9c6d1ecf9b849ae677dd3315835cb2")
	owner.String() // "0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2"

	mint := chain.MustParseAddress(chainsel.FamilySolana, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	owner.Equal(mint) // false
*/
package chain
