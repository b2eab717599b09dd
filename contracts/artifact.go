// Package contracts loads compiled contract artifacts and the standard ABIs the deployer talks
// to.
package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrNoBytecode = errors.New("artifact has no bytecode")

// Artifact is a Hardhat compilation artifact, the JSON file written to
// artifacts/<source>/<Contract>.json.
type Artifact struct {
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              abi.ABI         `json:"-"`
	RawABI           json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`

	path string
}

// LoadArtifact reads and parses the artifact at path.
func LoadArtifact(path string) (*Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	a, err := ParseArtifact(b)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	a.path = path

	return a, nil
}

// ParseArtifact parses an artifact from its JSON encoding. The build info of a parsed artifact
// cannot be resolved since it has no location on disk.
func ParseArtifact(b []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if a.ContractName == "" {
		return nil, errors.New("artifact has no contractName")
	}
	if len(a.RawABI) == 0 {
		return nil, errors.New("artifact has no abi")
	}

	parsed, err := abi.JSON(bytes.NewReader(a.RawABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi of %s: %w", a.ContractName, err)
	}
	a.ABI = parsed

	return &a, nil
}

// Path returns the file the artifact was loaded from.
func (a *Artifact) Path() string { return a.path }

// FullyQualifiedName returns "<sourceName>:<contractName>", the name explorers expect.
func (a *Artifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.ContractName
}

// Code returns the creation bytecode. Artifacts with unlinked libraries are rejected.
func (a *Artifact) Code() ([]byte, error) {
	code := strings.TrimSpace(a.Bytecode)
	if code == "" || code == "0x" {
		return nil, fmt.Errorf("%s: %w", a.ContractName, ErrNoBytecode)
	}
	if strings.Contains(code, "__$") {
		return nil, fmt.Errorf("%s: bytecode has unlinked libraries", a.ContractName)
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}

	b, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid bytecode: %w", a.ContractName, err)
	}

	return b, nil
}

// PackConstructor ABI encodes constructor arguments, as appended to the creation code.
func (a *Artifact) PackConstructor(args ...any) ([]byte, error) {
	b, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to pack constructor arguments: %w", a.ContractName, err)
	}

	return b, nil
}

// PackCall ABI encodes a call to method, e.g. an initializer.
func (a *Artifact) PackCall(method string, args ...any) ([]byte, error) {
	b, err := a.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to pack %s: %w", a.ContractName, method, err)
	}

	return b, nil
}

// BuildInfo is the subset of a Hardhat build-info file needed to verify sources on an explorer.
type BuildInfo struct {
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

// CompilerVersion returns the compiler version in the "v0.8.20+commit.a1b79de6" form explorers
// expect.
func (b *BuildInfo) CompilerVersion() string {
	v := b.SolcLongVersion
	if v == "" {
		v = b.SolcVersion
	}
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}

	return v
}

type debugFile struct {
	BuildInfo string `json:"buildInfo"`
}

// BuildInfo resolves the build-info file through the artifact's .dbg.json companion.
func (a *Artifact) BuildInfo() (*BuildInfo, error) {
	if a.path == "" {
		return nil, fmt.Errorf("%s: artifact was not loaded from disk", a.ContractName)
	}

	dbgPath := strings.TrimSuffix(a.path, ".json") + ".dbg.json"
	b, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read debug file: %w", err)
	}

	var dbg debugFile
	if err = json.Unmarshal(b, &dbg); err != nil {
		return nil, fmt.Errorf("failed to decode debug file %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("debug file %s has no buildInfo", dbgPath)
	}

	infoPath := dbg.BuildInfo
	if !filepath.IsAbs(infoPath) {
		infoPath = filepath.Join(filepath.Dir(dbgPath), infoPath)
	}

	b, err = os.ReadFile(infoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read build info: %w", err)
	}

	var info BuildInfo
	if err = json.Unmarshal(b, &info); err != nil {
		return nil, fmt.Errorf("failed to decode build info %s: %w", infoPath, err)
	}
	if len(info.Input) == 0 {
		return nil, fmt.Errorf("build info %s has no compiler input", infoPath)
	}

	return &info, nil
}
