package solana

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// GetMint reads and decodes an SPL token mint account.
func (c Chain) GetMint(ctx context.Context, mint solana.PublicKey) (*token.Mint, error) {
	data, owner, err := c.GetAccountData(ctx, mint)
	if err != nil {
		return nil, err
	}
	if !owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("account %s is owned by %s, not the token program", mint, owner)
	}

	var m token.Mint
	if err := bin.NewBinDecoder(data).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode mint %s: %w", mint, err)
	}

	return &m, nil
}

// SetAuthorityInstruction builds an SPL SetAuthority instruction moving the authority of kind
// on mint from current to newAuthority.
func SetAuthorityInstruction(
	mint, current, newAuthority solana.PublicKey, kind token.AuthorityType,
) (solana.Instruction, error) {
	ix, err := token.NewSetAuthorityInstruction(kind, newAuthority, mint, current, nil).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build set authority instruction: %w", err)
	}

	return ix, nil
}
