package onchain

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	sollib "github.com/gagliardetto/solana-go"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntzs/deployments/config"
	"github.com/ntzs/deployments/deployment"
	"github.com/ntzs/deployments/internal/testutils"
	"github.com/ntzs/deployments/pkg/logger"
	"github.com/ntzs/deployments/plans"
	"github.com/ntzs/deployments/render"
)

func solanaUpgradeConfig(t *testing.T, url, programsDir string) config.Config {
	t.Helper()

	key, err := sollib.NewRandomPrivateKey()
	require.NoError(t, err)

	return config.Config{
		Solana: config.SolanaConfig{
			RPCURL:        url,
			ChainSelector: chainsel.SOLANA_DEVNET.Selector,
			WalletKey:     key.String(),
			ProgramsDir:   programsDir,
			Program: config.ProgramConfig{
				Name: "ntzs",
				ID:   "BPFLoaderUpgradeab1e11111111111111111111111",
			},
		},
	}
}

// isolateTempDir points os.TempDir at a fresh directory and returns it.
func isolateTempDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	return dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func TestDefaultEnvLoader_SolanaKeypair(t *testing.T) {
	tests := []struct {
		name        string
		mode        plans.Mode
		unhealthy   bool
		wantKeypair bool
		wantErr     string
	}{
		{name: "upgrade writes the key until cleanup", mode: plans.ModeUpgrade, wantKeypair: true},
		{name: "deploy never writes the key", mode: plans.ModeDeploy},
		{name: "transfer never writes the key", mode: plans.ModeTransferOwnership},
		{name: "unreachable node leaves nothing behind", mode: plans.ModeUpgrade, unhealthy: true, wantErr: "is not healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			programsDir := t.TempDir()
			tmp := isolateTempDir(t)

			srv := testutils.NewSolanaRPC(t)
			if !tt.unhealthy {
				srv.HandleResult("getHealth", "ok")
			}
			cfg := solanaUpgradeConfig(t, srv.URL, programsDir)

			env, cleanup, err := defaultEnvLoader(t.Context(), logger.Test(t), cfg, tt.mode, deployment.NewMemoryAddressBook())
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.Empty(t, dirEntries(t, tmp))

				return
			}

			require.NoError(t, err)
			require.NotNil(t, env.Solana)

			if tt.wantKeypair {
				require.NotEmpty(t, env.Solana.KeypairPath)
				assert.FileExists(t, env.Solana.KeypairPath)
				assert.Equal(t, programsDir, env.Solana.ProgramsPath)
			} else {
				assert.Empty(t, env.Solana.KeypairPath)
				assert.Empty(t, env.Solana.ProgramsPath)
			}

			cleanup()
			assert.Empty(t, dirEntries(t, tmp))
		})
	}
}

func TestDefaultEnvLoader_KeypairPathIsNotCopied(t *testing.T) {
	programsDir := t.TempDir()
	keypairPath := filepath.Join(t.TempDir(), "id.json")
	tmp := isolateTempDir(t)

	key, err := sollib.NewRandomPrivateKey()
	require.NoError(t, err)
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(keypairPath, raw, 0o600))

	srv := testutils.NewSolanaRPC(t)
	srv.HandleResult("getHealth", "ok")

	cfg := solanaUpgradeConfig(t, srv.URL, programsDir)
	cfg.Solana.WalletKey = ""
	cfg.Solana.KeypairPath = keypairPath

	env, cleanup, err := defaultEnvLoader(t.Context(), logger.Test(t), cfg, plans.ModeUpgrade, deployment.NewMemoryAddressBook())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, keypairPath, env.Solana.KeypairPath)
	assert.Equal(t, key, *env.Solana.DeployerKey)
	assert.Empty(t, dirEntries(t, tmp))
}

func TestCommand_UpgradeRemovesKeypairDirectory(t *testing.T) {
	programsDir := t.TempDir()
	tmp := isolateTempDir(t)

	srv := testutils.NewSolanaRPC(t)
	srv.HandleResult("getHealth", "ok")

	// programsDir holds no ntzs.so, so the upgrade step fails before the solana CLI runs
	out, err := execute(t, Config{Deps: Deps{
		ConfigLoader: staticConfig(solanaUpgradeConfig(t, srv.URL, programsDir)),
	}}, "-c", "cfg.yaml", "-m", "upgrade", "-f", "json")
	require.ErrorIs(t, err, ErrRunFailed)
	assert.Contains(t, err.Error(), "program file not found")

	var doc render.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "aborted", doc.Run.State)

	assert.Empty(t, dirEntries(t, tmp))
}
