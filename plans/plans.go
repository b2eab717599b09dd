// Package plans turns a configuration and a mode into the ordered steps of a run, the state
// the chains must be in afterwards, and the address book entries of what was deployed.
//
// Steps hand addresses to later steps through the run Context under the Key* names. EVM steps
// run before Solana steps when both chains are configured.
package plans

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
	sollib "github.com/gagliardetto/solana-go"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/ntzs/deployments/chain"
	solchain "github.com/ntzs/deployments/chain/solana"
	"github.com/ntzs/deployments/config"
	"github.com/ntzs/deployments/contracts/metaplex"
	"github.com/ntzs/deployments/contracts/upgrades"
	"github.com/ntzs/deployments/deployment"
	"github.com/ntzs/deployments/explorer"
	"github.com/ntzs/deployments/operations"
)

// Mode selects what a run does.
type Mode string

const (
	ModeDeploy            Mode = "deploy"
	ModeTransferOwnership Mode = "transfer-ownership"
	ModeUpgrade           Mode = "upgrade"
)

// Modes lists the supported modes.
var Modes = []Mode{ModeDeploy, ModeTransferOwnership, ModeUpgrade}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Modes, m) {
		return "", operations.NewConfigurationError("mode", "unknown mode %q, want one of %v", s, Modes)
	}

	return m, nil
}

// Run Context keys. Values are chain.Address.
const (
	KeyAdminProxy          = "admin.proxy"
	KeyAdminImplementation = "admin.implementation"
	KeyAdminProxyAdmin     = "admin.proxy_admin"
	KeyForwarder           = "forwarder.address"
	KeyTokenProxy          = "token.proxy"
	KeyTokenImplementation = "token.implementation"
	KeyTokenProxyAdmin     = "token.proxy_admin"
	KeyMint                = "token.mint"
	KeyMetadata            = "token.metadata"
	KeyProgram             = "program.id"
)

var stepVersion = semver.MustParse("1.0.0")

var errNotConfigured = errors.New("not configured")

// Env holds the clients steps act through. Fields for chains the configuration does not use
// may be nil; plans can be built without any client, e.g. to print them.
type Env struct {
	EVM *upgrades.Client
	// Explorer is nil when source verification is disabled.
	Explorer *explorer.Client
	Solana   *solchain.Chain
	// AddressBook supplies addresses the configuration leaves empty.
	AddressBook deployment.AddressBook
}

func (e Env) evm() (*upgrades.Client, error) {
	if e.EVM == nil {
		return nil, fmt.Errorf("evm chain: %w", errNotConfigured)
	}

	return e.EVM, nil
}

func (e Env) explorer() (*explorer.Client, error) {
	if e.Explorer == nil {
		return nil, fmt.Errorf("explorer: %w", errNotConfigured)
	}

	return e.Explorer, nil
}

func (e Env) solana() (*solchain.Chain, error) {
	if e.Solana == nil || e.Solana.Client == nil {
		return nil, fmt.Errorf("solana chain: %w", errNotConfigured)
	}

	return e.Solana, nil
}

func (e Env) metaplex() (*metaplex.Client, error) {
	c, err := e.solana()
	if err != nil {
		return nil, err
	}

	return metaplex.NewClient(*c), nil
}

// Build returns the plan of mode for cfg. It only reads configuration and local files; a
// *operations.ConfigurationError is returned for any missing or malformed field, before
// anything is sent.
func Build(cfg config.Config, mode Mode, env Env) (*operations.Plan, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if !cfg.EVM.Enabled() && !cfg.Solana.Enabled() {
		return nil, operations.NewConfigurationError("evm.rpc_url", "no chain configured, set evm.rpc_url or solana.rpc_url")
	}

	var steps []operations.Step
	if cfg.EVM.Enabled() {
		s, err := evmSteps(cfg.EVM, mode, env)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s...)
	}
	if cfg.Solana.Enabled() {
		s, err := solanaSteps(cfg.Solana, mode, env)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s...)
	}

	return operations.NewPlan(string(mode), steps...)
}

// Expectations returns the state the chains must be in after a run of mode, with the queries
// reading it. Values produced by the run are taken from rc; expectations on values the run
// did not produce are left out, the run report already records why.
func Expectations(cfg config.Config, mode Mode, env Env, rc *operations.Context) (operations.ExpectedState, operations.Queries) {
	c := &checks{queries: operations.Queries{}}
	if cfg.EVM.Enabled() {
		evmExpectations(c, cfg.EVM, mode, env, rc)
	}
	if cfg.Solana.Enabled() {
		solanaExpectations(c, cfg.Solana, mode, env, rc)
	}

	return c.expected, c.queries
}

type checks struct {
	expected operations.ExpectedState
	queries  operations.Queries
}

func (c *checks) add(property string, want any, q operations.Query) {
	c.expected = append(c.expected, operations.Expectation{Property: property, Value: want})
	c.queries[property] = q
}

// Deployments returns the contracts a run recorded in rc as address book entries for the
// configured chains, including the ProxyAdmins a transfer read from the proxies. existing is
// consulted to version upgraded implementations and may be nil.
func Deployments(cfg config.Config, mode Mode, rc *operations.Context, existing deployment.AddressBook) (*deployment.AddressBookMap, error) {
	ab := deployment.NewMemoryAddressBook()

	save := func(selector uint64, key string, tv deployment.TypeAndVersion) error {
		v, _ := rc.Get(key)
		addr, ok := v.(chain.Address)
		if !ok {
			// the step producing key did not run
			return nil
		}

		// a shared ProxyAdmin is recorded under both proxy admin keys
		if known, err := deployment.AddressBookContains(ab, selector, addr.String()); err != nil || known {
			return err
		}

		return ab.Save(selector, addr.String(), tv)
	}

	v1 := *stepVersion
	switch mode {
	case ModeDeploy:
		if cfg.EVM.Enabled() {
			sel := cfg.EVM.ChainSelector
			for key, tv := range map[string]deployment.TypeAndVersion{
				KeyAdminProxy:          deployment.NewTypeAndVersion(deployment.Admin, v1, deployment.LabelProxy),
				KeyAdminImplementation: deployment.NewTypeAndVersion(deployment.Admin, v1, deployment.LabelImplementation),
				KeyForwarder:           deployment.NewTypeAndVersion(deployment.Forwarder, v1),
				KeyTokenProxy:          deployment.NewTypeAndVersion(deployment.Ntzs, v1, deployment.LabelProxy),
				KeyTokenImplementation: deployment.NewTypeAndVersion(deployment.Ntzs, v1, deployment.LabelImplementation),
			} {
				if err := save(sel, key, tv); err != nil {
					return nil, err
				}
			}
		}
		if cfg.Solana.Enabled() && !cfg.Solana.Metadata.UpdateExisting {
			sel := cfg.Solana.ChainSelector
			if err := save(sel, KeyMint, deployment.NewTypeAndVersion(deployment.TokenMint, v1)); err != nil {
				return nil, err
			}
			if err := save(sel, KeyMetadata, deployment.NewTypeAndVersion(deployment.TokenMetadata, v1)); err != nil {
				return nil, err
			}
		}
	case ModeTransferOwnership:
		if cfg.EVM.Enabled() {
			for _, key := range []string{KeyAdminProxyAdmin, KeyTokenProxyAdmin} {
				if err := save(cfg.EVM.ChainSelector, key, deployment.NewTypeAndVersion(deployment.ProxyAdmin, v1)); err != nil {
					return nil, err
				}
			}
		}
	case ModeUpgrade:
		if cfg.EVM.Enabled() {
			next := nextImplementationVersion(existing, cfg.EVM.ChainSelector)
			tv := deployment.NewTypeAndVersion(deployment.Ntzs, next, deployment.LabelImplementation)
			if err := save(cfg.EVM.ChainSelector, KeyTokenImplementation, tv); err != nil {
				return nil, err
			}
		}
	}

	return ab, nil
}

// nextImplementationVersion bumps the minor version of the newest recorded nTZS implementation.
func nextImplementationVersion(ab deployment.AddressBook, selector uint64) semver.Version {
	latest := *stepVersion
	if ab == nil {
		return latest.IncMinor()
	}

	addrs, err := ab.AddressesForChain(selector)
	if err != nil {
		return latest.IncMinor()
	}
	for _, tv := range addrs {
		if tv.Type == deployment.Ntzs && tv.Labels.Contains(deployment.LabelImplementation) && tv.Version.GreaterThan(&latest) {
			latest = tv.Version
		}
	}

	return latest.IncMinor()
}

// lookup returns the address book entry for field when the configuration leaves it empty. An
// absent entry yields "", leaving field to be reported as required.
func lookup(ab deployment.AddressBook, selector uint64, field string, typ deployment.ContractType, labels ...string) (string, error) {
	if ab == nil {
		return "", nil
	}

	found, err := deployment.SearchAddressBook(ab, selector, typ, labels...)
	switch {
	case err == nil:
		return found, nil
	case errors.Is(err, deployment.ErrAmbiguousAddress):
		return "", operations.NewConfigurationError(field, "%v, set %s explicitly", err, field)
	default:
		return "", nil
	}
}

func evmAddress(a common.Address) chain.Address {
	return chain.MustParseAddress(chainsel.FamilyEVM, a.Hex())
}

func solanaAddress(pk sollib.PublicKey) chain.Address {
	return chain.MustParseAddress(chainsel.FamilySolana, pk.String())
}

// contextEVMAddress reads an address recorded by an earlier step as a go-ethereum address.
func contextEVMAddress(rc *operations.Context, key string) (common.Address, error) {
	a, err := operations.Value[chain.Address](rc, key)
	if err != nil {
		return common.Address{}, err
	}

	return common.HexToAddress(a.String()), nil
}

// setAddress returns a Then hook storing the step's address value under key.
func setAddress(key string) func(rc *operations.Context, v any) error {
	return func(rc *operations.Context, v any) error {
		switch a := v.(type) {
		case common.Address:
			rc.Set(key, evmAddress(a))
		case sollib.PublicKey:
			rc.Set(key, solanaAddress(a))
		case chain.Address:
			rc.Set(key, a)
		default:
			return fmt.Errorf("step produced %T, want an address", v)
		}

		return nil
	}
}

func query[T any](fn func(ctx context.Context) (T, error)) operations.Query {
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}
