package metaplex

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	solchain "github.com/ntzs/deployments/chain/solana"
)

// Client manages token metadata on behalf of the chain deployer, who pays and acts as mint and
// update authority.
type Client struct {
	chain solchain.Chain
}

// NewClient returns a Client for c.
func NewClient(c solchain.Chain) *Client {
	return &Client{chain: c}
}

// Create sends a CreateMetadataAccountV3 transaction for mint. The handle resolves to the
// transaction signature.
func (c *Client) Create(ctx context.Context, mint solana.PublicKey, data DataV2, isMutable bool) (*solchain.TxHandle, error) {
	deployer := c.chain.DeployerAddress()
	ix, err := NewCreateMetadataAccountV3Instruction(CreateAccounts{
		Mint:            mint,
		MintAuthority:   deployer,
		Payer:           deployer,
		UpdateAuthority: deployer,
	}, data, isMutable)
	if err != nil {
		return nil, err
	}

	return c.chain.Send(ctx, []solana.Instruction{ix})
}

// Update sends an UpdateMetadataAccountV2 transaction for mint, signed by the deployer as
// current update authority.
func (c *Client) Update(ctx context.Context, mint solana.PublicKey, args UpdateArgs) (*solchain.TxHandle, error) {
	ix, err := NewUpdateMetadataAccountV2Instruction(mint, c.chain.DeployerAddress(), args)
	if err != nil {
		return nil, err
	}

	return c.chain.Send(ctx, []solana.Instruction{ix})
}

// Get reads the metadata account of mint.
func (c *Client) Get(ctx context.Context, mint solana.PublicKey) (*Metadata, error) {
	addr, err := MetadataAddress(mint)
	if err != nil {
		return nil, err
	}

	data, owner, err := c.chain.GetAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !owner.Equals(ProgramID) {
		return nil, fmt.Errorf("account %s is owned by %s: %w", addr, owner, ErrNotMetadataAccount)
	}

	return DecodeMetadata(data)
}
