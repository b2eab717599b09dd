package plans_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	sollib "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntzs/deployments/chain"
	solchain "github.com/ntzs/deployments/chain/solana"
	"github.com/ntzs/deployments/chain/solana/provider/rpcclient"
	"github.com/ntzs/deployments/config"
	"github.com/ntzs/deployments/contracts/metaplex"
	"github.com/ntzs/deployments/internal/testutils"
	"github.com/ntzs/deployments/operations"
	"github.com/ntzs/deployments/operations/optest"
	"github.com/ntzs/deployments/plans"
)

type solanaFixture struct {
	srv   *testutils.SolanaRPC
	payer sollib.PrivateKey
	mint  sollib.PublicKey
	env   plans.Env
}

func newSolanaFixture(t *testing.T) *solanaFixture {
	t.Helper()

	srv := testutils.NewSolanaRPC(t)
	payer, err := sollib.NewRandomPrivateKey()
	require.NoError(t, err)

	return &solanaFixture{
		srv:   srv,
		payer: payer,
		mint:  sollib.NewWallet().PublicKey(),
		env: plans.Env{Solana: &solchain.Chain{
			Selector:    devnet,
			Client:      rpcclient.New(solrpc.New(srv.URL), payer),
			URL:         srv.URL,
			DeployerKey: &payer,
		}},
	}
}

func (f *solanaFixture) config() config.Config {
	return config.Config{Solana: config.SolanaConfig{
		RPCURL:        f.srv.URL,
		ChainSelector: devnet,
		Mint:          f.mint.String(),
		Metadata:      config.MetadataConfig{Name: "NTZS", Symbol: "nTZS", URI: "https://example.org/ntzs.json"},
		NewAuthority:  ownerSolana,
	}}
}

func (f *solanaFixture) setMetadata(t *testing.T, authority sollib.PublicKey) {
	t.Helper()

	addr, err := metaplex.MetadataAddress(f.mint)
	require.NoError(t, err)

	b, err := metaplex.EncodeMetadata(metaplex.Metadata{
		Key: metaplex.KeyMetadataV1, UpdateAuthority: authority, Mint: f.mint,
		Name: "NTZS", Symbol: "nTZS", URI: "https://example.org/ntzs.json", IsMutable: true,
	})
	require.NoError(t, err)

	f.srv.SetAccountFor(addr, metaplex.ProgramID, b)
}

func (f *solanaFixture) setMint(t *testing.T, mintAuthority, freezeAuthority *sollib.PublicKey) {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, bin.NewBinEncoder(&buf).Encode(&token.Mint{
		MintAuthority:   mintAuthority,
		Supply:          1_000_000,
		Decimals:        6,
		IsInitialized:   true,
		FreezeAuthority: freezeAuthority,
	}))

	f.srv.SetAccountFor(f.mint, sollib.TokenProgramID, buf.Bytes())
}

func (f *solanaFixture) run(t *testing.T, cfg config.Config, mode plans.Mode, opts ...operations.RunOption) (*operations.RunReport, *operations.Context) {
	t.Helper()

	p, err := plans.Build(cfg, mode, f.env)
	require.NoError(t, err)

	rc := operations.NewContext(nil)
	report, _ := operations.Run(optest.NewBundle(t), p, rc, opts...)
	require.NotNil(t, report)

	return report, rc
}

func (f *solanaFixture) verify(t *testing.T, cfg config.Config, mode plans.Mode, rc *operations.Context) map[string]bool {
	t.Helper()

	expected, queries := plans.Expectations(cfg, mode, f.env, rc)
	report := operations.Verify(t.Context(), expected, queries)

	got := map[string]bool{}
	for _, c := range report.Checks {
		got[c.Property] = c.Match
	}

	return got
}

func TestSolana_DeployMetadata(t *testing.T) {
	t.Parallel()

	f := newSolanaFixture(t)
	cfg := f.config()

	report, rc := f.run(t, cfg, plans.ModeDeploy)
	require.NoError(t, report.Err())
	require.Len(t, f.srv.Sent(), 1)
	assert.True(t, f.srv.Sent()[0].IsSigner(f.payer.PublicKey()))

	mint, err := operations.Value[chain.Address](rc, plans.KeyMint)
	require.NoError(t, err)
	assert.Equal(t, f.mint.String(), mint.String())

	f.setMetadata(t, f.payer.PublicKey())
	assert.Equal(t, map[string]bool{
		"metadata.name":             true,
		"metadata.symbol":           true,
		"metadata.uri":              true,
		"metadata.update_authority": true,
	}, f.verify(t, cfg, plans.ModeDeploy, rc))

	ab, err := plans.Deployments(cfg, plans.ModeDeploy, rc, nil)
	require.NoError(t, err)
	got, err := ab.AddressesForChain(devnet)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSolana_DeployMetadata_MintFromKeypair(t *testing.T) {
	t.Parallel()

	f := newSolanaFixture(t)

	mintKey, err := sollib.NewRandomPrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "mint.json")
	// solana-keygen files hold the 64 byte secret as a JSON byte array
	ints := make([]int, len(mintKey))
	for i, b := range mintKey {
		ints[i] = int(b)
	}
	writeJSONFile(t, path, ints)

	cfg := f.config()
	cfg.Solana.Mint = ""
	cfg.Solana.MintKeypairPath = path

	report, rc := f.run(t, cfg, plans.ModeDeploy)
	require.NoError(t, report.Err())

	mint, err := operations.Value[chain.Address](rc, plans.KeyMint)
	require.NoError(t, err)
	assert.Equal(t, mintKey.PublicKey().String(), mint.String())
}

func TestSolana_UpdateMetadata(t *testing.T) {
	t.Parallel()

	f := newSolanaFixture(t)
	cfg := f.config()
	cfg.Solana.Metadata.UpdateExisting = true

	report, rc := f.run(t, cfg, plans.ModeDeploy)
	require.NoError(t, report.Err())
	assert.Equal(t, plans.StepUpdateTokenMetadata, report.Results[0].Def.ID)
	require.Len(t, f.srv.Sent(), 1)

	ab, err := plans.Deployments(cfg, plans.ModeDeploy, rc, nil)
	require.NoError(t, err)
	got, err := ab.Addresses()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSolana_TransferAuthorities(t *testing.T) {
	t.Parallel()

	newAuthority := sollib.MustPublicKeyFromBase58(ownerSolana)

	tests := []struct {
		name       string
		setup      func(t *testing.T, f *solanaFixture)
		wantSent   int
		wantFailed []string
	}{
		{
			name: "deployer holds every authority",
			setup: func(t *testing.T, f *solanaFixture) {
				t.Helper()
				payer := f.payer.PublicKey()
				f.setMetadata(t, payer)
				f.setMint(t, &payer, &payer)
			},
			wantSent: 3,
		},
		{
			name: "freeze authority revoked",
			setup: func(t *testing.T, f *solanaFixture) {
				t.Helper()
				payer := f.payer.PublicKey()
				f.setMetadata(t, payer)
				f.setMint(t, &payer, nil)
			},
			wantSent:   2,
			wantFailed: []string{plans.StepTransferFreezeAuthority},
		},
		{
			name: "metadata held by someone else",
			setup: func(t *testing.T, f *solanaFixture) {
				t.Helper()
				payer := f.payer.PublicKey()
				f.setMetadata(t, sollib.NewWallet().PublicKey())
				f.setMint(t, &payer, &payer)
			},
			wantSent:   2,
			wantFailed: []string{plans.StepTransferMetadataUpdateAuthority},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newSolanaFixture(t)
			tt.setup(t, f)
			cfg := f.config()

			report, rc := f.run(t, cfg, plans.ModeTransferOwnership,
				operations.WithRetry(operations.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}))
			require.NoError(t, report.Err())
			assert.Equal(t, operations.StateCompleted, report.State)
			assert.Len(t, f.srv.Sent(), tt.wantSent)

			var failed []string
			for _, r := range report.Failed() {
				failed = append(failed, r.Def.ID)
				require.ErrorIs(t, r.Cause(), operations.ErrNotCurrentOwner)
				assert.Equal(t, uint(1), r.Attempts, r.Def.ID)
			}
			assert.Equal(t, tt.wantFailed, failed)

			// the fake node does not execute transactions, move the authorities by hand
			f.setMetadata(t, newAuthority)
			f.setMint(t, &newAuthority, &newAuthority)

			assert.Equal(t, map[string]bool{
				"metadata.update_authority": true,
				"mint.mint_authority":       true,
				"mint.freeze_authority":     true,
			}, f.verify(t, cfg, plans.ModeTransferOwnership, rc))
		})
	}
}

func TestSolana_TransferAuthorities_RevokedReadsEmpty(t *testing.T) {
	t.Parallel()

	f := newSolanaFixture(t)
	payer := f.payer.PublicKey()
	f.setMetadata(t, payer)
	f.setMint(t, &payer, nil)

	cfg := f.config()
	expected, queries := plans.Expectations(cfg, plans.ModeTransferOwnership, f.env, operations.NewContext(nil))
	report := operations.Verify(t.Context(), expected, queries)

	for _, c := range report.Checks {
		assert.False(t, c.Match, c.Property)
		if c.Property == "mint.freeze_authority" {
			assert.Equal(t, chain.Address{}, c.Actual)
		}
	}
}

func TestSolana_UpgradeProgram(t *testing.T) {
	t.Parallel()

	f := newSolanaFixture(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ntzs.so"), []byte{0x7f}, 0o600))
	f.env.Solana.KeypairPath = filepath.Join(dir, "authority-keypair.json")
	f.env.Solana.ProgramsPath = dir
	f.env.Solana.CLIPath = writeFakeCLI(t, dir, "Program Id: "+programID)

	cfg := config.Config{Solana: config.SolanaConfig{
		RPCURL:        f.srv.URL,
		ChainSelector: devnet,
		ProgramsDir:   dir,
		Program:       config.ProgramConfig{Name: "ntzs", ID: programID},
	}}

	report, rc := f.run(t, cfg, plans.ModeUpgrade)
	require.NoError(t, report.Err())

	id, err := operations.Value[chain.Address](rc, plans.KeyProgram)
	require.NoError(t, err)
	assert.Equal(t, chain.MustParseAddress(chainsel.FamilySolana, programID), id)

	assert.Equal(t, map[string]bool{"program.deployed": false}, f.verify(t, cfg, plans.ModeUpgrade, rc))

	f.srv.SetAccountFor(sollib.MustPublicKeyFromBase58(programID), sollib.BPFLoaderUpgradeableProgramID, []byte{2, 0, 0, 0})
	assert.Equal(t, map[string]bool{"program.deployed": true}, f.verify(t, cfg, plans.ModeUpgrade, rc))
}

func TestSolana_UpgradeProgram_UnexpectedProgramID(t *testing.T) {
	t.Parallel()

	f := newSolanaFixture(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ntzs.so"), []byte{0x7f}, 0o600))
	f.env.Solana.ProgramsPath = dir
	f.env.Solana.CLIPath = writeFakeCLI(t, dir, "Program Id: "+ownerSolana)

	cfg := config.Config{Solana: config.SolanaConfig{
		RPCURL:        f.srv.URL,
		ChainSelector: devnet,
		ProgramsDir:   dir,
		Program:       config.ProgramConfig{Name: "ntzs", ID: programID},
	}}

	report, _ := f.run(t, cfg, plans.ModeUpgrade,
		operations.WithRetry(operations.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}))

	var failure *operations.StepFailure
	require.ErrorAs(t, report.Err(), &failure)
	assert.Equal(t, plans.StepUpgradeProgram, failure.Step)
	require.ErrorContains(t, report.Err(), "want "+programID)
	// the CLI upgraded some other program, running it again cannot help
	require.Len(t, report.Results, 1)
	assert.Equal(t, uint(1), report.Results[0].Attempts)
}

func writeFakeCLI(t *testing.T, dir, output string) string {
	t.Helper()

	script := "#!/bin/sh\nprintf '%s\\n' '" + output + "'\n"
	path := filepath.Join(dir, "solana")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700)) //nolint:gosec // test script must be executable

	return path
}

func writeJSONFile(t *testing.T, path string, v any) {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}
