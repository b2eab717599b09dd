package metaplex_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solchain "github.com/ntzs/deployments/chain/solana"
	"github.com/ntzs/deployments/chain/solana/provider/rpcclient"
	"github.com/ntzs/deployments/contracts/metaplex"
	"github.com/ntzs/deployments/internal/testutils"
)

var tokenData = metaplex.DataV2{
	Name:   "NTZS",
	Symbol: "nTZS",
	URI:    "https://example.com/ntzs.json",
}

// borshString encodes s as a u32 length prefixed string.
func borshString(s string) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
	return append(b, s...)
}

func encodedData(d metaplex.DataV2) []byte {
	var b []byte
	b = append(b, borshString(d.Name)...)
	b = append(b, borshString(d.Symbol)...)
	b = append(b, borshString(d.URI)...)
	b = binary.LittleEndian.AppendUint16(b, d.SellerFeeBasisPoints)

	return append(b, 0, 0, 0)
}

func TestMetadataAddress(t *testing.T) {
	t.Parallel()

	mint := solana.NewWallet().PublicKey()

	got, err := metaplex.MetadataAddress(mint)
	require.NoError(t, err)

	want, _, err := solana.FindProgramAddress([][]byte{[]byte("metadata"), metaplex.ProgramID[:], mint[:]}, metaplex.ProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, got.IsOnCurve())
}

func TestNewCreateMetadataAccountV3Instruction(t *testing.T) {
	t.Parallel()

	mint := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()

	ix, err := metaplex.NewCreateMetadataAccountV3Instruction(metaplex.CreateAccounts{
		Mint:            mint,
		MintAuthority:   payer,
		Payer:           payer,
		UpdateAuthority: payer,
	}, tokenData, true)
	require.NoError(t, err)

	assert.Equal(t, metaplex.ProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)

	want := []byte{33}
	want = append(want, encodedData(tokenData)...)
	want = append(want, 1, 0) // is_mutable, collection_details
	assert.Equal(t, want, data)

	metadata, err := metaplex.MetadataAddress(mint)
	require.NoError(t, err)

	accts := ix.Accounts()
	require.Len(t, accts, 7)
	assert.Equal(t, metadata, accts[0].PublicKey)
	assert.True(t, accts[0].IsWritable)
	assert.Equal(t, mint, accts[1].PublicKey)
	assert.False(t, accts[1].IsSigner)
	assert.True(t, accts[2].IsSigner)
	assert.True(t, accts[3].IsSigner)
	assert.True(t, accts[3].IsWritable)
	assert.True(t, accts[4].IsSigner)
	assert.Equal(t, solana.SystemProgramID, accts[5].PublicKey)
	assert.Equal(t, solana.SysVarRentPubkey, accts[6].PublicKey)
}

func TestNewCreateMetadataAccountV3Instruction_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    metaplex.DataV2
		wantErr string
	}{
		{name: "empty name", data: metaplex.DataV2{Symbol: "nTZS"}, wantErr: "metadata name is empty"},
		{name: "long name", data: metaplex.DataV2{Name: strings.Repeat("n", 33)}, wantErr: "name is longer than 32 bytes"},
		{name: "long symbol", data: metaplex.DataV2{Name: "n", Symbol: strings.Repeat("s", 11)}, wantErr: "symbol is longer than 10 bytes"},
		{name: "long uri", data: metaplex.DataV2{Name: "n", URI: strings.Repeat("u", 201)}, wantErr: "uri is longer than 200 bytes"},
		{name: "fee", data: metaplex.DataV2{Name: "n", SellerFeeBasisPoints: 10001}, wantErr: "seller fee basis points above 10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := metaplex.NewCreateMetadataAccountV3Instruction(metaplex.CreateAccounts{}, tt.data, true)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewUpdateMetadataAccountV2Instruction(t *testing.T) {
	t.Parallel()

	mint := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	newAuthority := solana.NewWallet().PublicKey()
	isMutable := true

	tests := []struct {
		name string
		args metaplex.UpdateArgs
		want []byte
	}{
		{
			name: "nothing",
			want: []byte{15, 0, 0, 0, 0},
		},
		{
			name: "data and mutability",
			args: metaplex.UpdateArgs{Data: &tokenData, IsMutable: &isMutable},
			want: func() []byte {
				b := append([]byte{15, 1}, encodedData(tokenData)...)
				return append(b, 0, 0, 1, 1)
			}(),
		},
		{
			name: "new update authority",
			args: metaplex.UpdateArgs{NewUpdateAuthority: &newAuthority},
			want: func() []byte {
				b := append([]byte{15, 0, 1}, newAuthority[:]...)
				return append(b, 0, 0)
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ix, err := metaplex.NewUpdateMetadataAccountV2Instruction(mint, authority, tt.args)
			require.NoError(t, err)

			data, err := ix.Data()
			require.NoError(t, err)
			assert.Equal(t, tt.want, data)

			accts := ix.Accounts()
			require.Len(t, accts, 2)
			assert.True(t, accts[0].IsWritable)
			assert.Equal(t, authority, accts[1].PublicKey)
			assert.True(t, accts[1].IsSigner)
		})
	}

	_, err := metaplex.NewUpdateMetadataAccountV2Instruction(mint, authority, metaplex.UpdateArgs{Data: &metaplex.DataV2{}})
	require.ErrorContains(t, err, "metadata name is empty")
}

func TestDecodeMetadata(t *testing.T) {
	t.Parallel()

	want := metaplex.Metadata{
		Key:             metaplex.KeyMetadataV1,
		UpdateAuthority: solana.NewWallet().PublicKey(),
		Mint:            solana.NewWallet().PublicKey(),
		Name:            "NTZS",
		Symbol:          "nTZS",
		URI:             "https://example.com/ntzs.json",
		Creators: []metaplex.Creator{
			{Address: solana.NewWallet().PublicKey(), Verified: true, Share: 100},
		},
		IsMutable: true,
	}

	b, err := metaplex.EncodeMetadata(want)
	require.NoError(t, err)

	got, err := metaplex.DecodeMetadata(b)
	require.NoError(t, err)
	assert.Equal(t, &want, got)

	// The program pads strings with zeros up to their maximum length.
	padded := want
	padded.Creators = nil
	padded.Name = "NTZS" + strings.Repeat("\x00", 28)
	b, err = metaplex.EncodeMetadata(padded)
	require.NoError(t, err)

	got, err = metaplex.DecodeMetadata(append(b, 0xff, 0x01))
	require.NoError(t, err)
	assert.Equal(t, "NTZS", got.Name)

	_, err = metaplex.DecodeMetadata([]byte{1})
	require.ErrorIs(t, err, metaplex.ErrNotMetadataAccount)

	_, err = metaplex.DecodeMetadata([]byte{4, 1, 2})
	require.ErrorContains(t, err, "failed to decode metadata")
}

func TestClient(t *testing.T) {
	t.Parallel()

	srv := testutils.NewSolanaRPC(t)
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	c := metaplex.NewClient(solchain.Chain{
		Client:      rpcclient.New(solrpc.New(srv.URL), payer),
		DeployerKey: &payer,
	})
	mint := solana.NewWallet().PublicKey()
	ctx := t.Context()

	h, err := c.Create(ctx, mint, tokenData, true)
	require.NoError(t, err)
	_, err = h.Wait(ctx)
	require.NoError(t, err)

	newAuthority := solana.NewWallet().PublicKey()
	_, err = c.Update(ctx, mint, metaplex.UpdateArgs{NewUpdateAuthority: &newAuthority})
	require.NoError(t, err)

	sent := srv.Sent()
	require.Len(t, sent, 2)
	for _, tx := range sent {
		assert.True(t, tx.IsSigner(payer.PublicKey()))
	}

	srv.HandleResult("getAccountInfo", testutils.MissingAccount())
	_, err = c.Get(ctx, mint)
	require.ErrorIs(t, err, solchain.ErrAccountNotFound)

	addr, err := metaplex.MetadataAddress(mint)
	require.NoError(t, err)

	b, err := metaplex.EncodeMetadata(metaplex.Metadata{
		Key: metaplex.KeyMetadataV1, UpdateAuthority: payer.PublicKey(), Mint: mint,
		Name: tokenData.Name, Symbol: tokenData.Symbol, URI: tokenData.URI, IsMutable: true,
	})
	require.NoError(t, err)

	srv.SetAccountFor(addr, solana.TokenProgramID, b)
	_, err = c.Get(ctx, mint)
	require.ErrorIs(t, err, metaplex.ErrNotMetadataAccount)

	srv.SetAccountFor(addr, metaplex.ProgramID, b)
	got, err := c.Get(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, payer.PublicKey(), got.UpdateAuthority)
	assert.Equal(t, "nTZS", got.Symbol)
}
