package plans

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/ntzs/deployments/chain"
	"github.com/ntzs/deployments/config"
	"github.com/ntzs/deployments/contracts"
	"github.com/ntzs/deployments/contracts/upgrades"
	"github.com/ntzs/deployments/deployment"
	"github.com/ntzs/deployments/explorer"
	"github.com/ntzs/deployments/operations"
)

// EVM step IDs.
const (
	StepDeployAdmin                      = "deploy-admin"
	StepVerifyAdminImplementation        = "verify-admin-implementation"
	StepDeployForwarder                  = "deploy-forwarder"
	StepVerifyForwarder                  = "verify-forwarder"
	StepDeployToken                      = "deploy-token"
	StepVerifyTokenImplementation        = "verify-token-implementation"
	StepTransferAdminOwnership           = "transfer-admin-ownership"
	StepTransferForwarderOwnership       = "transfer-forwarder-ownership"
	StepTransferTokenOwnership           = "transfer-ntzs-ownership"
	StepTransferProxyAdminOwnership      = "transfer-proxy-admin-ownership"
	StepTransferTokenProxyAdminOwnership = "transfer-token-proxy-admin-ownership"
	StepDeployTokenImplementation        = "deploy-token-implementation"
	StepUpgradeTokenProxy                = "upgrade-token-proxy"
)

// evmPlan carries the validated EVM configuration into the step actions.
type evmPlan struct {
	cfg config.EVMConfig
	env Env

	admin, forwarder, token, proxy *contracts.Artifact

	adminProxy, forwarderAddr, tokenProxy common.Address
	newOwner, newProxyAdminOwner          common.Address
}

func evmSteps(cfg config.EVMConfig, mode Mode, env Env) ([]operations.Step, error) {
	if cfg.ChainSelector == 0 {
		return nil, operations.NewConfigurationError("evm.chain_selector", "is required")
	}
	if family, err := chain.FamilyOf(cfg.ChainSelector); err != nil || family != chainsel.FamilyEVM {
		return nil, operations.NewConfigurationError("evm.chain_selector", "%d is not an EVM chain selector", cfg.ChainSelector)
	}

	p := &evmPlan{cfg: cfg, env: env}

	switch mode {
	case ModeDeploy:
		return p.deploySteps()
	case ModeTransferOwnership:
		return p.transferSteps()
	case ModeUpgrade:
		return p.upgradeSteps()
	default:
		return nil, operations.NewConfigurationError("mode", "unknown mode %q", mode)
	}
}

func loadArtifact(field, path string) (*contracts.Artifact, error) {
	if path == "" {
		return nil, operations.NewConfigurationError(field, "is required")
	}

	a, err := contracts.LoadArtifact(path)
	if err != nil {
		return nil, operations.NewConfigurationError(field, "%v", err)
	}

	return a, nil
}

// address parses a configured address, falling back to the address book entry of typ.
func (p *evmPlan) address(field, configured string, typ deployment.ContractType, labels ...string) (common.Address, error) {
	if configured == "" {
		found, err := lookup(p.env.AddressBook, p.cfg.ChainSelector, field, typ, labels...)
		if err != nil {
			return common.Address{}, err
		}
		configured = found
	}

	return parseEVMAddress(field, configured)
}

func parseEVMAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, operations.NewConfigurationError(field, "is required")
	}

	a, err := chain.EVMAddress(s)
	if err != nil {
		return common.Address{}, operations.NewConfigurationError(field, "%v", err)
	}
	if a.IsZero() {
		return common.Address{}, operations.NewConfigurationError(field, "must not be the zero address")
	}

	return common.HexToAddress(a.String()), nil
}

func newStep(id, description string, action operations.Action, opts ...operations.StepOption) operations.Step {
	return operations.NewStep(id, stepVersion, description, action, opts...)
}

func (p *evmPlan) deploySteps() ([]operations.Step, error) {
	var err error
	if p.admin, err = loadArtifact("evm.artifacts.admin", p.cfg.Artifacts.Admin); err != nil {
		return nil, err
	}
	if p.forwarder, err = loadArtifact("evm.artifacts.forwarder", p.cfg.Artifacts.Forwarder); err != nil {
		return nil, err
	}
	if p.token, err = loadArtifact("evm.artifacts.token", p.cfg.Artifacts.Token); err != nil {
		return nil, err
	}
	if p.proxy, err = loadArtifact("evm.artifacts.proxy", p.cfg.Artifacts.Proxy); err != nil {
		return nil, err
	}

	steps := []operations.Step{
		newStep(StepDeployAdmin, "Deploy the Admin contract behind a transparent proxy", p.deployAdmin),
	}
	if p.cfg.Explorer.Enabled {
		steps = append(steps, newStep(StepVerifyAdminImplementation, "Verify the Admin implementation source",
			p.verify(p.admin, KeyAdminImplementation, nil), operations.Optional()))
	}
	steps = append(steps, newStep(StepDeployForwarder, "Deploy the Forwarder for the Admin proxy", p.deployForwarder))
	if p.cfg.Explorer.Enabled {
		steps = append(steps, newStep(StepVerifyForwarder, "Verify the Forwarder source",
			p.verify(p.forwarder, KeyForwarder, p.forwarderArgs), operations.Optional()))
	}
	steps = append(steps, newStep(StepDeployToken, "Deploy the nTZS token behind a transparent proxy", p.deployToken))
	if p.cfg.Explorer.Enabled {
		steps = append(steps, newStep(StepVerifyTokenImplementation, "Verify the nTZS implementation source",
			p.verify(p.token, KeyTokenImplementation, nil), operations.Optional()))
	}

	return steps, nil
}

func (p *evmPlan) deployAdmin(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
	c, err := p.env.evm()
	if err != nil {
		return operations.Outcome{}, err
	}

	h, err := c.DeployProxy(b.GetContext(), p.admin, p.proxy, c.Chain().DeployerAddress(), "initialize")
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h).Then(setProxy(KeyAdminProxy, KeyAdminImplementation)), nil
}

func (p *evmPlan) deployForwarder(b operations.Bundle, rc *operations.Context) (operations.Outcome, error) {
	c, err := p.env.evm()
	if err != nil {
		return operations.Outcome{}, err
	}
	admin, err := contextEVMAddress(rc, KeyAdminProxy)
	if err != nil {
		return operations.Outcome{}, err
	}

	h, err := c.Deploy(b.GetContext(), p.forwarder, admin)
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h).Then(setAddress(KeyForwarder)), nil
}

func (p *evmPlan) forwarderArgs(rc *operations.Context) ([]byte, error) {
	admin, err := contextEVMAddress(rc, KeyAdminProxy)
	if err != nil {
		return nil, err
	}

	return p.forwarder.PackConstructor(admin)
}

func (p *evmPlan) deployToken(b operations.Bundle, rc *operations.Context) (operations.Outcome, error) {
	c, err := p.env.evm()
	if err != nil {
		return operations.Outcome{}, err
	}
	forwarder, err := contextEVMAddress(rc, KeyForwarder)
	if err != nil {
		return operations.Outcome{}, err
	}
	admin, err := contextEVMAddress(rc, KeyAdminProxy)
	if err != nil {
		return operations.Outcome{}, err
	}

	h, err := c.DeployProxy(b.GetContext(), p.token, p.proxy, c.Chain().DeployerAddress(), "initialize", forwarder, admin)
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h).Then(setProxy(KeyTokenProxy, KeyTokenImplementation)), nil
}

func setProxy(proxyKey, implKey string) func(rc *operations.Context, v any) error {
	return func(rc *operations.Context, v any) error {
		d, ok := v.(upgrades.ProxyDeployment)
		if !ok {
			return fmt.Errorf("step produced %T, want a proxy deployment", v)
		}
		rc.Set(proxyKey, evmAddress(d.Proxy))
		rc.Set(implKey, evmAddress(d.Implementation))

		return nil
	}
}

// verify submits the source of art deployed at the address under key. ctorArgs may be nil for
// contracts without constructor arguments, which includes every proxied implementation.
func (p *evmPlan) verify(art *contracts.Artifact, key string, ctorArgs func(*operations.Context) ([]byte, error)) operations.Action {
	return func(b operations.Bundle, rc *operations.Context) (operations.Outcome, error) {
		ex, err := p.env.explorer()
		if err != nil {
			return operations.Outcome{}, err
		}
		addr, err := contextEVMAddress(rc, key)
		if err != nil {
			return operations.Outcome{}, err
		}

		var args []byte
		if ctorArgs != nil {
			if args, err = ctorArgs(rc); err != nil {
				return operations.Outcome{}, err
			}
		}

		req, err := explorer.NewVerifyRequest(art, addr, args)
		if err != nil {
			return operations.Outcome{}, err
		}

		h, err := ex.Verify(b.GetContext(), req)
		if err != nil {
			return operations.Outcome{}, err
		}

		return operations.Submitted(h), nil
	}
}

func (p *evmPlan) transferSteps() ([]operations.Step, error) {
	var err error
	if p.adminProxy, err = p.address("evm.contracts.admin", p.cfg.Contracts.Admin, deployment.Admin, deployment.LabelProxy); err != nil {
		return nil, err
	}
	if p.forwarderAddr, err = p.address("evm.contracts.forwarder", p.cfg.Contracts.Forwarder, deployment.Forwarder); err != nil {
		return nil, err
	}
	if p.tokenProxy, err = p.address("evm.contracts.token", p.cfg.Contracts.Token, deployment.Ntzs, deployment.LabelProxy); err != nil {
		return nil, err
	}
	if p.newOwner, err = parseEVMAddress("evm.new_owner", p.cfg.NewOwner); err != nil {
		return nil, err
	}
	p.newProxyAdminOwner = p.newOwner
	if p.cfg.NewProxyAdminOwner != "" {
		if p.newProxyAdminOwner, err = parseEVMAddress("evm.new_proxy_admin_owner", p.cfg.NewProxyAdminOwner); err != nil {
			return nil, err
		}
	}

	steps := []operations.Step{
		newStep(StepTransferAdminOwnership, "Transfer ownership of the Admin contract",
			p.transferOwnership(p.adminProxy), operations.Optional()),
		newStep(StepTransferForwarderOwnership, "Transfer ownership of the Forwarder",
			p.transferOwnership(p.forwarderAddr), operations.Optional()),
		newStep(StepTransferTokenOwnership, "Transfer ownership of the nTZS token",
			p.transferOwnership(p.tokenProxy), operations.Optional()),
	}

	if p.cfg.SharedProxyAdmin {
		steps = append(steps, newStep(StepTransferProxyAdminOwnership, "Transfer the ProxyAdmin shared by the Admin and nTZS proxies",
			p.transferSharedProxyAdmin, operations.Optional()))
	} else {
		steps = append(steps,
			newStep(StepTransferProxyAdminOwnership, "Transfer the ProxyAdmin of the Admin proxy",
				p.transferProxyAdmin(p.adminProxy, KeyAdminProxyAdmin), operations.Optional()),
			newStep(StepTransferTokenProxyAdminOwnership, "Transfer the ProxyAdmin of the nTZS proxy",
				p.transferProxyAdmin(p.tokenProxy, KeyTokenProxyAdmin), operations.Optional()),
		)
	}

	return steps, nil
}

// transferOwnership moves an Ownable contract to the new owner once the deployer is confirmed
// as its current owner. Ownership failures are not retried.
func (p *evmPlan) transferOwnership(contract common.Address) operations.Action {
	return func(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
		c, err := p.env.evm()
		if err != nil {
			return operations.Outcome{}, err
		}

		h, err := p.transferFrom(b.GetContext(), c, contract, p.newOwner)
		if err != nil {
			return operations.Outcome{}, err
		}

		return operations.Submitted(h), nil
	}
}

func (p *evmPlan) transferFrom(ctx context.Context, c *upgrades.Client, contract, to common.Address) (operations.Handle, error) {
	owner, err := c.Owner(ctx, contract)
	if err != nil {
		return nil, err
	}
	if deployer := c.Chain().DeployerAddress(); owner != deployer {
		return nil, operations.NewUnrecoverableError(
			fmt.Errorf("%s is owned by %s, not %s: %w", contract, owner, deployer, operations.ErrNotCurrentOwner))
	}

	return c.TransferOwnership(ctx, contract, to)
}

func proxyAdminOf(ctx context.Context, c *upgrades.Client, proxy common.Address) (common.Address, error) {
	admin, err := c.AdminAddress(ctx, proxy)
	if err != nil {
		return common.Address{}, err
	}
	if admin == (common.Address{}) {
		return common.Address{}, operations.NewUnrecoverableError(fmt.Errorf("%s: %w", proxy, upgrades.ErrNoProxyAdmin))
	}

	return admin, nil
}

func (p *evmPlan) transferProxyAdmin(proxy common.Address, key string) operations.Action {
	return func(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
		c, err := p.env.evm()
		if err != nil {
			return operations.Outcome{}, err
		}

		admin, err := proxyAdminOf(b.GetContext(), c, proxy)
		if err != nil {
			return operations.Outcome{}, err
		}

		h, err := p.transferFrom(b.GetContext(), c, admin, p.newProxyAdminOwner)
		if err != nil {
			return operations.Outcome{}, err
		}

		return operations.Submitted(h).Then(func(rc *operations.Context, _ any) error {
			rc.Set(key, evmAddress(admin))
			return nil
		}), nil
	}
}

// transferSharedProxyAdmin transfers the ProxyAdmin of the Admin proxy after checking the nTZS
// proxy is administered by the same contract.
func (p *evmPlan) transferSharedProxyAdmin(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
	c, err := p.env.evm()
	if err != nil {
		return operations.Outcome{}, err
	}

	ctx := b.GetContext()
	adminPA, err := proxyAdminOf(ctx, c, p.adminProxy)
	if err != nil {
		return operations.Outcome{}, err
	}
	tokenPA, err := proxyAdminOf(ctx, c, p.tokenProxy)
	if err != nil {
		return operations.Outcome{}, err
	}
	if adminPA != tokenPA {
		return operations.Outcome{}, operations.NewUnrecoverableError(
			fmt.Errorf("proxy admins differ: %s administers the Admin proxy, %s the nTZS proxy", adminPA, tokenPA))
	}

	h, err := p.transferFrom(ctx, c, adminPA, p.newProxyAdminOwner)
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h).Then(func(rc *operations.Context, _ any) error {
		rc.Set(KeyAdminProxyAdmin, evmAddress(adminPA))
		rc.Set(KeyTokenProxyAdmin, evmAddress(tokenPA))

		return nil
	}), nil
}

func (p *evmPlan) upgradeSteps() ([]operations.Step, error) {
	var err error
	if p.token, err = loadArtifact("evm.artifacts.token", p.cfg.Artifacts.Token); err != nil {
		return nil, err
	}
	if p.tokenProxy, err = p.address("evm.contracts.token", p.cfg.Contracts.Token, deployment.Ntzs, deployment.LabelProxy); err != nil {
		return nil, err
	}

	steps := []operations.Step{
		newStep(StepDeployTokenImplementation, "Deploy the new nTZS implementation", p.deployTokenImplementation),
		newStep(StepUpgradeTokenProxy, "Point the nTZS proxy at the new implementation", p.upgradeTokenProxy),
	}
	if p.cfg.Explorer.Enabled {
		steps = append(steps, newStep(StepVerifyTokenImplementation, "Verify the nTZS implementation source",
			p.verify(p.token, KeyTokenImplementation, nil), operations.Optional()))
	}

	return steps, nil
}

func (p *evmPlan) deployTokenImplementation(b operations.Bundle, _ *operations.Context) (operations.Outcome, error) {
	c, err := p.env.evm()
	if err != nil {
		return operations.Outcome{}, err
	}

	h, err := c.Deploy(b.GetContext(), p.token)
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h).Then(setAddress(KeyTokenImplementation)), nil
}

func (p *evmPlan) upgradeTokenProxy(b operations.Bundle, rc *operations.Context) (operations.Outcome, error) {
	c, err := p.env.evm()
	if err != nil {
		return operations.Outcome{}, err
	}
	impl, err := contextEVMAddress(rc, KeyTokenImplementation)
	if err != nil {
		return operations.Outcome{}, err
	}

	h, err := c.UpgradeProxy(b.GetContext(), p.tokenProxy, impl, nil)
	if errors.Is(err, upgrades.ErrNoProxyAdmin) {
		return operations.Outcome{}, operations.NewUnrecoverableError(err)
	}
	if err != nil {
		return operations.Outcome{}, err
	}

	return operations.Submitted(h).Then(func(rc *operations.Context, _ any) error {
		rc.Set(KeyTokenProxy, evmAddress(p.tokenProxy))
		return nil
	}), nil
}

func evmExpectations(c *checks, cfg config.EVMConfig, mode Mode, env Env, rc *operations.Context) {
	implementation := func(proxy common.Address) operations.Query {
		return query(func(ctx context.Context) (chain.Address, error) {
			ec, err := env.evm()
			if err != nil {
				return chain.Address{}, err
			}
			a, err := ec.ImplementationAddress(ctx, proxy)

			return evmAddress(a), err
		})
	}
	owner := func(contract common.Address) operations.Query {
		return query(func(ctx context.Context) (chain.Address, error) {
			ec, err := env.evm()
			if err != nil {
				return chain.Address{}, err
			}
			a, err := ec.Owner(ctx, contract)

			return evmAddress(a), err
		})
	}
	proxyAdminOwner := func(proxy common.Address) operations.Query {
		return query(func(ctx context.Context) (chain.Address, error) {
			ec, err := env.evm()
			if err != nil {
				return chain.Address{}, err
			}
			admin, err := proxyAdminOf(ctx, ec, proxy)
			if err != nil {
				return chain.Address{}, err
			}
			a, err := ec.Owner(ctx, admin)

			return evmAddress(a), err
		})
	}
	recorded := func(key string) (common.Address, chain.Address, bool) {
		a, err := operations.Value[chain.Address](rc, key)
		if err != nil {
			return common.Address{}, chain.Address{}, false
		}

		return common.HexToAddress(a.String()), a, true
	}
	deployer := func() chain.Address {
		if env.EVM == nil {
			return chain.Address{}
		}

		return evmAddress(env.EVM.Chain().DeployerAddress())
	}

	switch mode {
	case ModeDeploy:
		if proxy, _, ok := recorded(KeyAdminProxy); ok {
			if _, impl, ok := recorded(KeyAdminImplementation); ok {
				c.add("admin.implementation", impl, implementation(proxy))
			}
			c.add("admin.proxy_admin.owner", deployer(), proxyAdminOwner(proxy))
		}
		if fwd, _, ok := recorded(KeyForwarder); ok {
			c.add("forwarder.deployed", true, query(func(ctx context.Context) (bool, error) {
				ec, err := env.evm()
				if err != nil {
					return false, err
				}

				return ec.HasCode(ctx, fwd)
			}))
		}
		if proxy, _, ok := recorded(KeyTokenProxy); ok {
			if _, impl, ok := recorded(KeyTokenImplementation); ok {
				c.add("token.implementation", impl, implementation(proxy))
			}
			c.add("token.proxy_admin.owner", deployer(), proxyAdminOwner(proxy))
		}
	case ModeTransferOwnership:
		// Build validated these already; a configuration that fails here produced no plan.
		p := &evmPlan{cfg: cfg, env: env}
		newOwner, err := parseEVMAddress("evm.new_owner", cfg.NewOwner)
		if err != nil {
			return
		}
		newPAOwner := newOwner
		if cfg.NewProxyAdminOwner != "" {
			newPAOwner = common.HexToAddress(cfg.NewProxyAdminOwner)
		}

		for _, t := range []struct {
			property, field, configured string
			typ                         deployment.ContractType
			labels                      []string
			proxyAdmin                  string
		}{
			{"admin.owner", "evm.contracts.admin", cfg.Contracts.Admin, deployment.Admin, []string{deployment.LabelProxy}, "admin.proxy_admin.owner"},
			{"forwarder.owner", "evm.contracts.forwarder", cfg.Contracts.Forwarder, deployment.Forwarder, nil, ""},
			{"ntzs.owner", "evm.contracts.token", cfg.Contracts.Token, deployment.Ntzs, []string{deployment.LabelProxy}, "token.proxy_admin.owner"},
		} {
			addr, err := p.address(t.field, t.configured, t.typ, t.labels...)
			if err != nil {
				continue
			}
			c.add(t.property, evmAddress(newOwner), owner(addr))
			if t.proxyAdmin != "" {
				c.add(t.proxyAdmin, evmAddress(newPAOwner), proxyAdminOwner(addr))
			}
		}
	case ModeUpgrade:
		if _, impl, ok := recorded(KeyTokenImplementation); ok {
			if proxy, _, ok := recorded(KeyTokenProxy); ok {
				c.add("token.implementation", impl, implementation(proxy))
			}
		}
	}
}
