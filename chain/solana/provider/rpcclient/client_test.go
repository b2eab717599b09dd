package rpcclient

import (
	"encoding/json"
	"testing"
	"time"

	sollib "github.com/gagliardetto/solana-go"
	solsystem "github.com/gagliardetto/solana-go/programs/system"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntzs/deployments/internal/testutils"
)

func Test_Client_SendAndConfirmTx(t *testing.T) {
	t.Parallel()

	payer, err := sollib.NewRandomPrivateKey()
	require.NoError(t, err)
	funder, err := sollib.NewRandomPrivateKey()
	require.NoError(t, err)
	receiver, err := sollib.NewRandomPrivateKey()
	require.NoError(t, err)

	transferFromPayer := solsystem.NewTransferInstruction(
		sollib.LAMPORTS_PER_SOL, payer.PublicKey(), receiver.PublicKey(),
	).Build()
	transferFromFunder := solsystem.NewTransferInstruction(
		sollib.LAMPORTS_PER_SOL, funder.PublicKey(), receiver.PublicKey(),
	).Build()

	tests := []struct {
		name       string
		setup      func(*testutils.SolanaRPC)
		giveIxs    []sollib.Instruction
		giveOpts   []SendOpt
		wantErr    string
		wantErrIs  error
		wantSigned int
	}{
		{
			name:       "sends and confirms",
			giveIxs:    []sollib.Instruction{transferFromPayer},
			wantSigned: 1,
		},
		{
			name:       "signs with additional signers",
			giveIxs:    []sollib.Instruction{transferFromFunder},
			giveOpts:   []SendOpt{WithSigners(funder)},
			wantSigned: 2,
		},
		{
			name:    "fails when a signer is missing",
			giveIxs: []sollib.Instruction{transferFromFunder},
			wantErr: "error signing transaction",
		},
		{
			name: "does not retry program errors",
			setup: func(s *testutils.SolanaRPC) {
				s.Handle("sendTransaction", func(json.RawMessage) (any, *testutils.RPCError) {
					return nil, &testutils.RPCError{Code: -32002, Message: "custom program error: 0x1"}
				})
			},
			giveIxs:  []sollib.Instruction{transferFromPayer},
			giveOpts: []SendOpt{WithRetry(3, time.Millisecond)},
			wantErr:  "will not retry",
		},
		{
			name: "reports failed transactions",
			setup: func(s *testutils.SolanaRPC) {
				s.SetSignatureStatus("confirmed", map[string]any{"InstructionError": []any{0, "InvalidAccountData"}})
			},
			giveIxs:   []sollib.Instruction{transferFromPayer},
			wantErrIs: ErrTransactionFailed,
		},
		{
			name: "gives up when never confirmed",
			setup: func(s *testutils.SolanaRPC) {
				s.SetSignatureStatus("processed", nil)
			},
			giveIxs:  []sollib.Instruction{transferFromPayer},
			giveOpts: []SendOpt{WithRetry(1, time.Millisecond), WithConfirmAttempts(3)},
			wantErr:  "not yet confirmed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := testutils.NewSolanaRPC(t)
			if tt.setup != nil {
				tt.setup(srv)
			}

			client := New(solrpc.New(srv.URL), payer)

			sig, err := client.SendAndConfirmTx(t.Context(), tt.giveIxs, tt.giveOpts...)
			switch {
			case tt.wantErrIs != nil:
				require.ErrorIs(t, err, tt.wantErrIs)
			case tt.wantErr != "":
				require.ErrorContains(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, srv.Signature, sig)

				sent := srv.Sent()
				require.Len(t, sent, 1)
				assert.Len(t, sent[0].Signatures, tt.wantSigned)
				assert.Equal(t, payer.PublicKey(), sent[0].Message.AccountKeys[0])
			}
		})
	}
}

func Test_Client_Confirm(t *testing.T) {
	t.Parallel()

	srv := testutils.NewSolanaRPC(t)
	payer, err := sollib.NewRandomPrivateKey()
	require.NoError(t, err)

	client := New(solrpc.New(srv.URL), payer)

	require.NoError(t, client.Confirm(t.Context(), srv.Signature))
	assert.Equal(t, 1, srv.Calls("getSignatureStatuses"))

	srv.SetSignatureStatus("", nil)
	err = client.Confirm(t.Context(), srv.Signature, WithRetry(1, time.Millisecond), WithConfirmAttempts(2))
	require.ErrorContains(t, err, "not yet confirmed")
}
