package upgrades_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntzs/deployments/chain/evm"
	"github.com/ntzs/deployments/chain/evm/provider"
	"github.com/ntzs/deployments/contracts"
	"github.com/ntzs/deployments/contracts/upgrades"
	"github.com/ntzs/deployments/internal/testutils"
)

var (
	newOwner   = common.HexToAddress("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2")
	proxyAddr  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	adminAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	implAddr   = common.HexToAddress("0x3000000000000000000000000000000000000003")
	newImpl    = common.HexToAddress("0x4000000000000000000000000000000000000004")
	orphanAddr = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

func newSimClient(t *testing.T) *upgrades.Client {
	t.Helper()

	p := provider.NewSimChainProvider(t, chainsel.TEST_1000.Selector, provider.SimChainProviderConfig{
		Alloc: types.GenesisAlloc{
			proxyAddr: {
				Code:    common.FromHex(testutils.OwnableRuntime),
				Balance: common.Big0,
				Storage: map[common.Hash]common.Hash{
					upgrades.ImplementationSlot: common.BytesToHash(implAddr.Bytes()),
					upgrades.AdminSlot:          common.BytesToHash(adminAddr.Bytes()),
				},
			},
			adminAddr:  {Code: common.FromHex(testutils.OwnableRuntime), Balance: common.Big0},
			orphanAddr: {Code: common.FromHex(testutils.OwnableRuntime), Balance: common.Big0},
		},
	})
	bc, err := p.Initialize(t.Context())
	require.NoError(t, err)

	c, ok := bc.(evm.Chain)
	require.True(t, ok)

	client, err := upgrades.NewClient(c)
	require.NoError(t, err)

	return client
}

func loadArtifact(t *testing.T, spec testutils.ArtifactSpec) *contracts.Artifact {
	t.Helper()

	a, err := contracts.LoadArtifact(testutils.WriteArtifact(t, t.TempDir(), spec))
	require.NoError(t, err)

	return a
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := upgrades.NewClient(evm.Chain{})
	require.ErrorContains(t, err, "client is not configured")

	c := newSimClient(t).Chain()

	noKey := c
	noKey.DeployerKey = nil
	_, err = upgrades.NewClient(noKey)
	require.ErrorContains(t, err, "deployer key is not configured")

	noConfirm := c
	noConfirm.Confirm = nil
	_, err = upgrades.NewClient(noConfirm)
	require.ErrorContains(t, err, "confirm function is not configured")
}

func TestClient_DeployAndTransferOwnership(t *testing.T) {
	t.Parallel()

	client := newSimClient(t)
	ctx := t.Context()
	forwarder := loadArtifact(t, testutils.ArtifactSpec{Name: "Forwarder", Constructor: []string{"address"}})

	h, err := client.Deploy(ctx, forwarder, proxyAddr)
	require.NoError(t, err)

	v, err := h.Wait(ctx)
	require.NoError(t, err)
	addr, ok := v.(common.Address)
	require.True(t, ok)

	hasCode, err := client.HasCode(ctx, addr)
	require.NoError(t, err)
	assert.True(t, hasCode)

	owner, err := client.Owner(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, owner)

	th, err := client.TransferOwnership(ctx, addr, newOwner)
	require.NoError(t, err)
	v, err = th.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, newOwner, v)

	owner, err = client.Owner(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, newOwner, owner)
}

func TestClient_Deploy_MissingConstructorArgs(t *testing.T) {
	t.Parallel()

	client := newSimClient(t)
	forwarder := loadArtifact(t, testutils.ArtifactSpec{Name: "Forwarder", Constructor: []string{"address"}})

	_, err := client.Deploy(t.Context(), forwarder)
	require.ErrorContains(t, err, "failed to deploy Forwarder")
}

func TestClient_DeployProxy(t *testing.T) {
	t.Parallel()

	client := newSimClient(t)
	ctx := t.Context()
	impl := loadArtifact(t, testutils.ArtifactSpec{Name: "Ntzs", Initializer: []string{"address", "address"}})
	proxy := loadArtifact(t, testutils.ArtifactSpec{
		Name:        "TransparentUpgradeableProxy",
		Constructor: []string{"address", "address", "bytes"},
	})

	deployer := client.Chain().DeployerAddress()

	h, err := client.DeployProxy(ctx, impl, proxy, deployer, "initialize", proxyAddr, adminAddr)
	require.NoError(t, err)

	v, err := h.Wait(ctx)
	require.NoError(t, err)
	d, ok := v.(upgrades.ProxyDeployment)
	require.True(t, ok)
	assert.NotEqual(t, d.Proxy, d.Implementation)

	for _, a := range []common.Address{d.Proxy, d.Implementation} {
		hasCode, err := client.HasCode(ctx, a)
		require.NoError(t, err)
		assert.True(t, hasCode)
	}

	_, err = client.DeployProxy(ctx, impl, proxy, deployer, "initialize", proxyAddr)
	require.ErrorContains(t, err, "failed to pack initialize")

	_, err = client.DeployProxy(ctx, impl, proxy, deployer, "reinitialize")
	require.ErrorContains(t, err, "failed to pack reinitialize")
}

func TestClient_Slots(t *testing.T) {
	t.Parallel()

	client := newSimClient(t)
	ctx := t.Context()

	impl, err := client.ImplementationAddress(ctx, proxyAddr)
	require.NoError(t, err)
	assert.Equal(t, implAddr, impl)

	admin, err := client.AdminAddress(ctx, proxyAddr)
	require.NoError(t, err)
	assert.Equal(t, adminAddr, admin)

	admin, err = client.AdminAddress(ctx, orphanAddr)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, admin)
}

func TestClient_UpgradeProxy(t *testing.T) {
	t.Parallel()

	client := newSimClient(t)
	ctx := t.Context()

	h, err := client.UpgradeProxy(ctx, proxyAddr, newImpl, nil)
	require.NoError(t, err)

	want, err := contracts.ProxyAdmin().Pack("upgradeAndCall", proxyAddr, newImpl, []byte{})
	require.NoError(t, err)
	assert.Equal(t, want, h.Tx().Data())
	assert.Equal(t, &adminAddr, h.Tx().To())

	v, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, newImpl, v)

	_, err = client.UpgradeProxy(ctx, orphanAddr, newImpl, nil)
	require.ErrorIs(t, err, upgrades.ErrNoProxyAdmin)
}
