package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sollib "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/ntzs/deployments/chain"
	solchain "github.com/ntzs/deployments/chain/solana"
	"github.com/ntzs/deployments/chain/solana/provider"
	"github.com/ntzs/deployments/config"
	"github.com/ntzs/deployments/contracts/metaplex"
	"github.com/ntzs/deployments/deployment"
	"github.com/ntzs/deployments/operations"
)

// Solana step IDs.
const (
	StepCreateTokenMetadata             = "create-token-metadata"
	StepUpdateTokenMetadata             = "update-token-metadata"
	StepTransferMetadataUpdateAuthority = "transfer-metadata-update-authority"
	StepTransferMintAuthority           = "transfer-mint-authority"
	StepTransferFreezeAuthority         = "transfer-freeze-authority"
	StepUpgradeProgram                  = "upgrade-program"
)

type solanaPlan struct {
	cfg config.SolanaConfig
	env Env

	mint         sollib.PublicKey
	data         metaplex.DataV2
	newAuthority sollib.PublicKey
	programID    sollib.PublicKey
}

func solanaSteps(cfg config.SolanaConfig, mode Mode, env Env) ([]operations.Step, error) {
	p, err := newSolanaPlan(cfg, mode, env)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeDeploy:
		return p.metadataSteps(), nil
	case ModeTransferOwnership:
		return p.transferSteps(), nil
	case ModeUpgrade:
		return p.upgradeSteps(), nil
	default:
		return nil, operations.NewConfigurationError("mode", "unknown mode %q", mode)
	}
}

// newSolanaPlan validates the fields mode needs.
func newSolanaPlan(cfg config.SolanaConfig, mode Mode, env Env) (*solanaPlan, error) {
	if cfg.ChainSelector == 0 {
		return nil, operations.NewConfigurationError("solana.chain_selector", "is required")
	}
	if family, err := chain.FamilyOf(cfg.ChainSelector); err != nil || family != chainsel.FamilySolana {
		return nil, operations.NewConfigurationError("solana.chain_selector", "%d is not a Solana chain selector", cfg.ChainSelector)
	}

	p := &solanaPlan{cfg: cfg, env: env}

	var err error
	switch mode {
	case ModeDeploy:
		if p.mint, err = p.resolveMint(); err != nil {
			return nil, err
		}
		p.data = metaplex.DataV2{Name: cfg.Metadata.Name, Symbol: cfg.Metadata.Symbol, URI: cfg.Metadata.URI}
		if err = p.data.Validate(); err != nil {
			return nil, operations.NewConfigurationError("solana.metadata", "%v", err)
		}
	case ModeTransferOwnership:
		if p.mint, err = p.resolveMint(); err != nil {
			return nil, err
		}
		if p.newAuthority, err = parsePublicKey("solana.new_authority", cfg.NewAuthority); err != nil {
			return nil, err
		}
	case ModeUpgrade:
		if cfg.ProgramsDir == "" {
			return nil, operations.NewConfigurationError("solana.programs_dir", "is required")
		}
		if cfg.Program.Name == "" {
			return nil, operations.NewConfigurationError("solana.program.name", "is required")
		}
		id := cfg.Program.ID
		if id == "" {
			if id, err = lookup(env.AddressBook, cfg.ChainSelector, "solana.program.id", deployment.Program); err != nil {
				return nil, err
			}
		}
		if p.programID, err = parsePublicKey("solana.program.id", id); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func parsePublicKey(field, s string) (sollib.PublicKey, error) {
	if s == "" {
		return sollib.PublicKey{}, operations.NewConfigurationError(field, "is required")
	}

	a, err := chain.SolanaAddress(s)
	if err != nil {
		return sollib.PublicKey{}, operations.NewConfigurationError(field, "%v", err)
	}
	if a.IsZero() {
		return sollib.PublicKey{}, operations.NewConfigurationError(field, "must not be the zero address")
	}

	return sollib.MustPublicKeyFromBase58(a.String()), nil
}

// resolveMint takes the mint from the configured address, then the mint keypair file, then the
// address book.
func (p *solanaPlan) resolveMint() (sollib.PublicKey, error) {
	switch {
	case p.cfg.Mint != "":
		return parsePublicKey("solana.mint", p.cfg.Mint)
	case p.cfg.MintKeypairPath != "":
		key, err := provider.PrivateKeyFromFile(p.cfg.MintKeypairPath).Generate()
		if err != nil {
			return sollib.PublicKey{}, operations.NewConfigurationError("solana.mint_keypair_path", "%v", err)
		}

		return key.PublicKey(), nil
	case p.env.AddressBook != nil:
		found, err := lookup(p.env.AddressBook, p.cfg.ChainSelector, "solana.mint", deployment.TokenMint)
		if err != nil {
			return sollib.PublicKey{}, err
		}
		if found != "" {
			return parsePublicKey("solana.mint", found)
		}
	}

	return sollib.PublicKey{}, operations.NewConfigurationError("solana.mint", "is required, set solana.mint or solana.mint_keypair_path")
}

func (p *solanaPlan) metadataSteps() []operations.Step {
	if p.cfg.Metadata.UpdateExisting {
		return []operations.Step{
			newStep(StepUpdateTokenMetadata, "Update the Metaplex metadata of the token mint", p.updateMetadata),
		}
	}

	return []operations.Step{
		newStep(StepCreateTokenMetadata, "Create the Metaplex metadata of the token mint", p.createMetadata),
	}
}

func (p *solanaPlan) recordMetadata(rc *operations.Context, _ any) error {
	addr, err := metaplex.MetadataAddress(p.mint)
	if err != nil {
		return err
	}
	rc.Set(KeyMint, solanaAddress(p.mint))
	rc.Set(KeyMetadata, solanaAddress(addr))

	return nil
}

func (p *solanaPlan) createMetadata(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
	mc, err := p.env.metaplex()
	if err != nil {
		return operations.Outcome{}, err
	}

	h, err := mc.Create(b.GetContext(), p.mint, p.data, true)
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h).Then(p.recordMetadata), nil
}

func (p *solanaPlan) updateMetadata(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
	mc, err := p.env.metaplex()
	if err != nil {
		return operations.Outcome{}, err
	}

	data := p.data
	h, err := mc.Update(b.GetContext(), p.mint, metaplex.UpdateArgs{Data: &data})
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h).Then(p.recordMetadata), nil
}

func (p *solanaPlan) transferSteps() []operations.Step {
	return []operations.Step{
		newStep(StepTransferMetadataUpdateAuthority, "Transfer the metadata update authority",
			p.transferUpdateAuthority, operations.Optional()),
		newStep(StepTransferMintAuthority, "Transfer the mint authority",
			p.transferAuthority(token.AuthorityMintTokens), operations.Optional()),
		newStep(StepTransferFreezeAuthority, "Transfer the freeze authority",
			p.transferAuthority(token.AuthorityFreezeAccount), operations.Optional()),
	}
}

func notCurrent(what string, current, payer sollib.PublicKey) error {
	return operations.NewUnrecoverableError(fmt.Errorf("%s is %s, not %s: %w", what, current, payer, operations.ErrNotCurrentOwner))
}

func (p *solanaPlan) transferUpdateAuthority(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
	mc, err := p.env.metaplex()
	if err != nil {
		return operations.Outcome{}, err
	}

	ctx := b.GetContext()
	md, err := mc.Get(ctx, p.mint)
	if err != nil {
		return operations.Outcome{}, err
	}
	if payer := p.env.Solana.DeployerAddress(); !md.UpdateAuthority.Equals(payer) {
		return operations.Outcome{}, notCurrent("metadata update authority", md.UpdateAuthority, payer)
	}

	newAuthority := p.newAuthority
	h, err := mc.Update(ctx, p.mint, metaplex.UpdateArgs{NewUpdateAuthority: &newAuthority})
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h), nil
}

func (p *solanaPlan) transferAuthority(kind token.AuthorityType) operations.Action {
	name := "mint authority"
	if kind == token.AuthorityFreezeAccount {
		name = "freeze authority"
	}

	return func(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
		c, err := p.env.solana()
		if err != nil {
			return operations.Outcome{}, err
		}

		ctx := b.GetContext()
		m, err := c.GetMint(ctx, p.mint)
		if err != nil {
			return operations.Outcome{}, err
		}

		current := m.MintAuthority
		if kind == token.AuthorityFreezeAccount {
			current = m.FreezeAuthority
		}
		payer := c.DeployerAddress()
		if current == nil {
			return operations.Outcome{}, notCurrent(name, sollib.PublicKey{}, payer)
		}
		if !current.Equals(payer) {
			return operations.Outcome{}, notCurrent(name, *current, payer)
		}

		ix, err := solchain.SetAuthorityInstruction(p.mint, payer, p.newAuthority, kind)
		if err != nil {
			return operations.Outcome{}, err
		}

		h, err := c.Send(ctx, []sollib.Instruction{ix})
		if err != nil {
			return operations.Outcome{}, err
		}

		return operations.Submitted(h), nil
	}
}

func (p *solanaPlan) upgradeSteps() []operations.Step {
	return []operations.Step{
		newStep(StepUpgradeProgram, "Upgrade the program from its compiled binary", p.upgradeProgram),
	}
}

func (p *solanaPlan) upgradeProgram(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
	c, err := p.env.solana()
	if err != nil {
		return operations.Outcome{}, err
	}

	id, err := c.UpgradeProgram(b.GetContext(), b.Logger, p.cfg.Program.Name, p.programID.String())
	if err != nil {
		return operations.Outcome{}, err
	}

	pk, err := sollib.PublicKeyFromBase58(strings.TrimSpace(id))
	if err != nil {
		return operations.Outcome{}, fmt.Errorf("solana cli returned program id %q: %w", id, err)
	}
	if !pk.Equals(p.programID) {
		return operations.Outcome{}, operations.NewUnrecoverableError(fmt.Errorf("solana cli upgraded %s, want %s", pk, p.programID))
	}

	return operations.Queried(pk).Then(setAddress(KeyProgram)), nil
}

func solanaExpectations(c *checks, cfg config.SolanaConfig, mode Mode, env Env, rc *operations.Context) {
	p, err := newSolanaPlan(cfg, mode, env)
	if err != nil {
		return
	}

	metadata := func(ctx context.Context) (*metaplex.Metadata, error) {
		mc, err := env.metaplex()
		if err != nil {
			return nil, err
		}

		return mc.Get(ctx, p.mint)
	}
	payer := chain.Address{}
	if env.Solana != nil && env.Solana.DeployerKey != nil {
		payer = solanaAddress(env.Solana.DeployerAddress())
	}

	switch mode {
	case ModeDeploy:
		if _, ok := rc.Get(KeyMetadata); !ok {
			return
		}
		c.add("metadata.name", p.data.Name, query(func(ctx context.Context) (string, error) {
			md, err := metadata(ctx)
			if err != nil {
				return "", err
			}

			return md.Name, nil
		}))
		c.add("metadata.symbol", p.data.Symbol, query(func(ctx context.Context) (string, error) {
			md, err := metadata(ctx)
			if err != nil {
				return "", err
			}

			return md.Symbol, nil
		}))
		c.add("metadata.uri", p.data.URI, query(func(ctx context.Context) (string, error) {
			md, err := metadata(ctx)
			if err != nil {
				return "", err
			}

			return md.URI, nil
		}))
		c.add("metadata.update_authority", payer, updateAuthority(metadata))
	case ModeTransferOwnership:
		want := solanaAddress(p.newAuthority)
		c.add("metadata.update_authority", want, updateAuthority(metadata))
		c.add("mint.mint_authority", want, mintAuthority(env, p.mint, token.AuthorityMintTokens))
		c.add("mint.freeze_authority", want, mintAuthority(env, p.mint, token.AuthorityFreezeAccount))
	case ModeUpgrade:
		c.add("program.deployed", true, query(func(ctx context.Context) (bool, error) {
			sc, err := env.solana()
			if err != nil {
				return false, err
			}

			_, owner, err := sc.GetAccountData(ctx, p.programID)
			if errors.Is(err, solchain.ErrAccountNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}

			return owner.Equals(sollib.BPFLoaderUpgradeableProgramID), nil
		}))
	}
}

func updateAuthority(metadata func(context.Context) (*metaplex.Metadata, error)) operations.Query {
	return query(func(ctx context.Context) (chain.Address, error) {
		md, err := metadata(ctx)
		if err != nil {
			return chain.Address{}, err
		}

		return solanaAddress(md.UpdateAuthority), nil
	})
}

// mintAuthority reads an authority of mint. A revoked authority reads as the empty address.
func mintAuthority(env Env, mint sollib.PublicKey, kind token.AuthorityType) operations.Query {
	return query(func(ctx context.Context) (chain.Address, error) {
		sc, err := env.solana()
		if err != nil {
			return chain.Address{}, err
		}

		m, err := sc.GetMint(ctx, mint)
		if err != nil {
			return chain.Address{}, err
		}

		a := m.MintAuthority
		if kind == token.AuthorityFreezeAccount {
			a = m.FreezeAuthority
		}
		if a == nil {
			return chain.Address{}, nil
		}

		return solanaAddress(*a), nil
	})
}
