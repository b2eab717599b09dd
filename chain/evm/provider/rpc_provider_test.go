package provider

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntzs/deployments/chain/evm"
	"github.com/ntzs/deployments/pkg/logger"
)

// newFakeRPCServer answers eth_chainId with chainID and fails every other method.
func newFakeRPCServer(t *testing.T, chainID uint64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if req.Method == "eth_chainId" {
			resp["result"] = hexutil.EncodeUint64(chainID)
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	return srv
}

type alwaysFailingTransactorGenerator struct{}

func (*alwaysFailingTransactorGenerator) Generate(*big.Int) (*bind.TransactOpts, error) {
	return nil, errors.New("always fails")
}

func Test_RPCChainProviderConfig_validate(t *testing.T) {
	t.Parallel()

	confirmFuncGeth := ConfirmFuncGeth(10 * time.Millisecond)

	tests := []struct {
		name    string
		config  RPCChainProviderConfig
		wantErr string
	}{
		{
			name: "valid config",
			config: RPCChainProviderConfig{
				DeployerTransactorGen: TransactorRandom(),
				RPCURL:                "http://localhost:8545",
				ConfirmFunctor:        confirmFuncGeth,
			},
		},
		{
			name: "missing deployer transactor generator",
			config: RPCChainProviderConfig{
				RPCURL:         "http://localhost:8545",
				ConfirmFunctor: confirmFuncGeth,
			},
			wantErr: "deployer transactor generator is required",
		},
		{
			name: "missing confirm functor",
			config: RPCChainProviderConfig{
				DeployerTransactorGen: TransactorRandom(),
				RPCURL:                "http://localhost:8545",
			},
			wantErr: "confirm functor is required",
		},
		{
			name: "missing rpc url",
			config: RPCChainProviderConfig{
				DeployerTransactorGen: TransactorRandom(),
				ConfirmFunctor:        confirmFuncGeth,
			},
			wantErr: "rpc url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func Test_RPCChainProvider_Initialize(t *testing.T) {
	t.Parallel()

	var (
		chainSelector = chainsel.TEST_1000.Selector
		goodSrv       = newFakeRPCServer(t, testChainID)
		wrongSrv      = newFakeRPCServer(t, testChainID+1)
		confirm       = ConfirmFuncGeth(1 * time.Second)
	)

	tests := []struct {
		name              string
		giveSelector      uint64
		giveConfig        RPCChainProviderConfig
		giveExistingChain *evm.Chain
		wantErr           string
	}{
		{
			name:         "valid initialization",
			giveSelector: chainSelector,
			giveConfig: RPCChainProviderConfig{
				DeployerTransactorGen: TransactorRandom(),
				RPCURL:                goodSrv.URL,
				ConfirmFunctor:        confirm,
				Logger:                logger.Test(t),
			},
		},
		{
			name:              "returns an already initialized chain",
			giveSelector:      chainSelector,
			giveExistingChain: &evm.Chain{Selector: chainSelector},
		},
		{
			name:         "fails config validation",
			giveSelector: chainSelector,
			giveConfig:   RPCChainProviderConfig{Logger: logger.Nop()},
			wantErr:      "deployer transactor generator is required",
		},
		{
			name:         "fails getting chain ID from selector",
			giveSelector: 1,
			giveConfig: RPCChainProviderConfig{
				DeployerTransactorGen: TransactorRandom(),
				RPCURL:                goodSrv.URL,
				ConfirmFunctor:        confirm,
				Logger:                logger.Nop(),
			},
			wantErr: "failed to get chain ID from selector",
		},
		{
			name:         "fails to generate deployer transactor",
			giveSelector: chainSelector,
			giveConfig: RPCChainProviderConfig{
				DeployerTransactorGen: &alwaysFailingTransactorGenerator{},
				RPCURL:                goodSrv.URL,
				ConfirmFunctor:        confirm,
				Logger:                logger.Nop(),
			},
			wantErr: "failed to generate deployer key",
		},
		{
			name:         "fails on chain id mismatch",
			giveSelector: chainSelector,
			giveConfig: RPCChainProviderConfig{
				DeployerTransactorGen: TransactorRandom(),
				RPCURL:                wrongSrv.URL,
				ConfirmFunctor:        confirm,
				Logger:                logger.Nop(),
			},
			wantErr: "rpc reports chain id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := NewRPCChainProvider(tt.giveSelector, tt.giveConfig)
			if tt.giveExistingChain != nil {
				p.chain = tt.giveExistingChain
			}

			got, err := p.Initialize(t.Context())
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			gotChain, ok := got.(evm.Chain)
			require.True(t, ok, "expected got to be of type evm.Chain")
			assert.Equal(t, tt.giveSelector, gotChain.Selector)
			assert.Equal(t, tt.giveSelector, p.ChainSelector())
			assert.Equal(t, "EVM RPC Chain Provider", p.Name())
			assert.Equal(t, got, p.BlockChain())

			if tt.giveExistingChain == nil {
				assert.NotNil(t, gotChain.Client)
				assert.NotNil(t, gotChain.DeployerKey)
				assert.NotNil(t, gotChain.Confirm)
			}
		})
	}
}
