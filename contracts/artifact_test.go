package contracts_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntzs/deployments/contracts"
	"github.com/ntzs/deployments/internal/testutils"
)

func TestLoadArtifact(t *testing.T) {
	t.Parallel()

	path := testutils.WriteArtifact(t, t.TempDir(), testutils.ArtifactSpec{
		Name:        "Forwarder",
		Constructor: []string{"address"},
	})

	a, err := contracts.LoadArtifact(path)
	require.NoError(t, err)

	assert.Equal(t, "Forwarder", a.ContractName)
	assert.Equal(t, "contracts/Forwarder.sol:Forwarder", a.FullyQualifiedName())
	assert.Equal(t, path, a.Path())
	assert.Contains(t, a.ABI.Methods, "owner")
	assert.Len(t, a.ABI.Constructor.Inputs, 1)

	code, err := a.Code()
	require.NoError(t, err)
	assert.Equal(t, hexutil.MustDecode(testutils.OwnableInitCode), code)

	args, err := a.PackConstructor(common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Len(t, args, 32)

	_, err = a.PackConstructor()
	require.ErrorContains(t, err, "failed to pack constructor arguments")

	info, err := a.BuildInfo()
	require.NoError(t, err)
	assert.Equal(t, "v0.8.20+commit.a1b79de6", info.CompilerVersion())
	assert.Contains(t, string(info.Input), "Solidity")
}

func TestLoadArtifact_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.json"), wantErr: "failed to read artifact"},
		{name: "not json", path: write("bad.json", "{"), wantErr: "failed to decode artifact"},
		{name: "no name", path: write("noname.json", `{"abi":[]}`), wantErr: "artifact has no contractName"},
		{name: "no abi", path: write("noabi.json", `{"contractName":"X"}`), wantErr: "artifact has no abi"},
		{name: "invalid abi", path: write("badabi.json", `{"contractName":"X","abi":[{"type":"function","inputs":[{"type":"foo"}]}]}`),
			wantErr: "failed to parse abi of X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := contracts.LoadArtifact(tt.path)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestArtifact_Code(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bytecode string
		want     []byte
		wantErr  string
	}{
		{name: "prefixed", bytecode: "0x6001", want: []byte{0x60, 0x01}},
		{name: "unprefixed", bytecode: "6001", want: []byte{0x60, 0x01}},
		{name: "empty", bytecode: "0x", wantErr: "artifact has no bytecode"},
		{name: "unlinked", bytecode: "0x60__$abc$__", wantErr: "unlinked libraries"},
		{name: "bad hex", bytecode: "0xzz", wantErr: "invalid bytecode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := &contracts.Artifact{ContractName: "X", Bytecode: tt.bytecode}
			got, err := a.Code()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArtifact_BuildInfoRequiresPath(t *testing.T) {
	t.Parallel()

	a, err := contracts.ParseArtifact([]byte(`{"contractName":"X","abi":[]}`))
	require.NoError(t, err)

	_, err = a.BuildInfo()
	require.ErrorContains(t, err, "artifact was not loaded from disk")
}

func TestStandardABIs(t *testing.T) {
	t.Parallel()

	assert.Contains(t, contracts.Ownable().Methods, "transferOwnership")
	assert.Contains(t, contracts.ProxyAdmin().Methods, "upgradeAndCall")
}
