package testutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/ntzs/deployments/contracts/upgrades"
)

// OwnableRuntime is a contract that stores the first argument of any call carrying arguments
// in slot 0 and returns slot 0 for calls without. It behaves like Ownable for owner() and
// transferOwnership(address) and accepts any other call.
//
//	CALLDATASIZE PUSH1 4 LT PUSH1 0x12 JUMPI
//	PUSH1 0 SLOAD PUSH1 0 MSTORE PUSH1 32 PUSH1 0 RETURN
//	JUMPDEST PUSH1 4 CALLDATALOAD PUSH1 0 SSTORE STOP
const OwnableRuntime = "0x3660041060125760005460005260206000f35b60043560005500"

// OwnableInitCode deploys OwnableRuntime. Constructor arguments appended to it are ignored.
const OwnableInitCode = "0x601a80600b6000396000f3" + "3660041060125760005460005260206000f35b60043560005500"

// OwnableAccount returns a genesis account running OwnableRuntime with owner in slot 0.
func OwnableAccount(owner common.Address) types.Account {
	return types.Account{
		Code:    hexutil.MustDecode(OwnableRuntime),
		Balance: common.Big0,
		Storage: map[common.Hash]common.Hash{
			common.Hash{}: common.BytesToHash(owner.Bytes()),
		},
	}
}

// ProxyAccount is an OwnableAccount standing in for a transparent proxy with its ERC-1967
// slots set. A zero admin leaves the admin slot empty.
func ProxyAccount(impl, admin common.Address) types.Account {
	acc := OwnableAccount(common.Address{})
	acc.Storage[upgrades.ImplementationSlot] = common.BytesToHash(impl.Bytes())
	if admin != (common.Address{}) {
		acc.Storage[upgrades.AdminSlot] = common.BytesToHash(admin.Bytes())
	}

	return acc
}

// ArtifactSpec describes a fake Hardhat artifact backed by OwnableInitCode.
type ArtifactSpec struct {
	Name string
	// Constructor and Initializer are ABI input types, e.g. []string{"address"}. A nil
	// Initializer omits the initialize function.
	Constructor []string
	Initializer []string
	// Bytecode overrides OwnableInitCode when set.
	Bytecode string
}

type abiInput struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type abiEntry struct {
	Type            string     `json:"type"`
	Name            string     `json:"name,omitempty"`
	StateMutability string     `json:"stateMutability"`
	Inputs          []abiInput `json:"inputs"`
	Outputs         []abiInput `json:"outputs,omitempty"`
}

func inputs(kinds []string) []abiInput {
	in := make([]abiInput, 0, len(kinds))
	for i, t := range kinds {
		in = append(in, abiInput{Name: "arg" + string(rune('0'+i)), Type: t})
	}

	return in
}

// WriteArtifact writes a Hardhat style artifact, its .dbg.json and a build-info file for spec
// below dir and returns the artifact path.
func WriteArtifact(t *testing.T, dir string, spec ArtifactSpec) string {
	t.Helper()

	entries := []abiEntry{
		{Type: "constructor", StateMutability: "nonpayable", Inputs: inputs(spec.Constructor)},
		{Type: "function", Name: "owner", StateMutability: "view", Inputs: []abiInput{},
			Outputs: []abiInput{{Name: "", Type: "address"}}},
		{Type: "function", Name: "transferOwnership", StateMutability: "nonpayable",
			Inputs: []abiInput{{Name: "newOwner", Type: "address"}}},
	}
	if spec.Initializer != nil {
		entries = append(entries, abiEntry{
			Type: "function", Name: "initialize", StateMutability: "nonpayable", Inputs: inputs(spec.Initializer),
		})
	}

	code := spec.Bytecode
	if code == "" {
		code = OwnableInitCode
	}

	sourceName := "contracts/" + spec.Name + ".sol"
	artifact := map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     spec.Name,
		"sourceName":       sourceName,
		"abi":              entries,
		"bytecode":         code,
		"deployedBytecode": OwnableRuntime,
	}

	artifactDir := filepath.Join(dir, "artifacts", sourceName)
	buildInfoDir := filepath.Join(dir, "artifacts", "build-info")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))
	require.NoError(t, os.MkdirAll(buildInfoDir, 0o755))

	path := filepath.Join(artifactDir, spec.Name+".json")
	writeJSON(t, path, artifact)
	writeJSON(t, strings.TrimSuffix(path, ".json")+".dbg.json", map[string]any{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": "../../build-info/" + strings.ToLower(spec.Name) + ".json",
	})
	writeJSON(t, filepath.Join(buildInfoDir, strings.ToLower(spec.Name)+".json"), map[string]any{
		"_format":         "hh-sol-build-info-1",
		"solcVersion":     "0.8.20",
		"solcLongVersion": "0.8.20+commit.a1b79de6",
		"input": map[string]any{
			"language": "Solidity",
			"sources": map[string]any{
				sourceName: map[string]any{"content": "// SPDX-License-Identifier: MIT\npragma solidity ^0.8.20;\n"},
			},
			"settings": map[string]any{"optimizer": map[string]any{"enabled": true, "runs": 200}},
		},
	})

	return path
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()

	b, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}
