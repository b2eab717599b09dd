package solana

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/ntzs/deployments/chain/internal"
	"github.com/ntzs/deployments/chain/solana/provider/rpcclient"
	"github.com/ntzs/deployments/pkg/logger"
)

const (
	ProgramIDPrefix      = "Program Id: "
	SolDefaultCommitment = solrpc.CommitmentConfirmed
)

// ErrAccountNotFound is returned by the account readers when the account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Chain represents a Solana chain.
type Chain struct {
	Selector uint64

	// Client signs with DeployerKey and also exposes the raw RPC methods.
	Client      *rpcclient.Client
	URL         string
	DeployerKey *solana.PrivateKey

	// Program deployment shells out to the solana CLI, which needs a keyfile.
	KeypairPath  string
	ProgramsPath string
	// CLIPath is the solana binary. Defaults to "solana" on PATH.
	CLIPath string
}

// ChainSelector returns the chain selector of the chain
func (c Chain) ChainSelector() uint64 {
	return c.Selector
}

// String returns chain name and selector "<name> (<selector>)"
func (c Chain) String() string {
	return internal.ChainBase{Selector: c.Selector}.String()
}

// Name returns the name of the chain
func (c Chain) Name() string {
	return internal.ChainBase{Selector: c.Selector}.Name()
}

// Family returns the family of the chain
func (c Chain) Family() string {
	return internal.ChainBase{Selector: c.Selector}.Family()
}

// DeployerAddress returns the public key of the deployer, or the zero key when none is set.
func (c Chain) DeployerAddress() solana.PublicKey {
	if c.DeployerKey == nil {
		return solana.PublicKey{}
	}

	return c.DeployerKey.PublicKey()
}

// GetAccountData returns the raw data and owner of an account.
func (c Chain) GetAccountData(ctx context.Context, pubkey solana.PublicKey) ([]byte, solana.PublicKey, error) {
	res, err := c.Client.GetAccountInfoWithOpts(ctx, pubkey, &solrpc.GetAccountInfoOpts{
		Commitment: SolDefaultCommitment,
	})
	if err != nil {
		if errors.Is(err, solrpc.ErrNotFound) {
			return nil, solana.PublicKey{}, fmt.Errorf("%s: %w", pubkey, ErrAccountNotFound)
		}

		return nil, solana.PublicKey{}, fmt.Errorf("failed to get account %s: %w", pubkey, err)
	}
	if res == nil || res.Value == nil {
		return nil, solana.PublicKey{}, fmt.Errorf("%s: %w", pubkey, ErrAccountNotFound)
	}

	return res.Value.Data.GetBinary(), res.Value.Owner, nil
}

// UpgradeProgram upgrades programID in place from <ProgramsPath>/<name>.so with the solana CLI
// and returns the program id the CLI reports. The deployer must be the program's upgrade
// authority.
func (c Chain) UpgradeProgram(ctx context.Context, lggr logger.Logger, name, programID string) (string, error) {
	if programID == "" {
		return "", errors.New("program id is required")
	}

	programFile := filepath.Join(c.ProgramsPath, name+".so")
	if _, err := os.Stat(programFile); err != nil {
		return "", fmt.Errorf("program file not found: %w", err)
	}

	lggr.Infow("Upgrading program", "programFile", programFile, "programID", programID)

	stdout, err := c.runCLI(ctx, lggr,
		"program", "deploy",
		programFile,
		"--keypair", c.KeypairPath,
		"--url", c.URL,
		"--use-rpc",
		"--program-id", programID,
	)
	if err != nil {
		return "", fmt.Errorf("error upgrading program: %w", err)
	}

	return parseCLIOutput(stdout, ProgramIDPrefix)
}

func (c Chain) runCLI(ctx context.Context, lggr logger.Logger, args ...string) (string, error) {
	cli := c.CLIPath
	if cli == "" {
		cli = "solana"
	}

	cmd := exec.CommandContext(ctx, cli, args...) // #nosec G204
	lggr.Debugf("Running solana CLI: %s", cmd.String())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		lggr.Errorw("solana CLI failed",
			"error", err,
			"stdout", stdout.String(),
			"stderr", stderr.String())

		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// parseCLIOutput returns the rest of the first line starting with prefix, e.g. the program id in
// "Program Id: <PROGRAM_ID>".
func parseCLIOutput(output string, prefix string) (string, error) {
	startIdx := strings.Index(output, prefix)
	if startIdx == -1 {
		return "", fmt.Errorf("failed to find %q in output", strings.TrimSpace(prefix))
	}
	startIdx += len(prefix)
	endIdx := strings.Index(output[startIdx:], "\n")
	if endIdx == -1 {
		endIdx = len(output) - startIdx
	}

	return strings.TrimSpace(output[startIdx : startIdx+endIdx]), nil
}
