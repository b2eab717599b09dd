package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PrivateKeyFromRaw(t *testing.T) {
	t.Parallel()

	// Generate a random private key for testing
	privateKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	tests := []struct {
		name           string
		givePrivateKey string
		wantAddr       string
		wantErr        string
	}{
		{
			name:           "valid private key",
			givePrivateKey: privateKey.String(),
			wantAddr:       privateKey.PublicKey().String(),
		},
		{
			name:           "invalid private key",
			givePrivateKey: "invalid_private_key",
			wantErr:        "failed to parse private key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen := PrivateKeyFromRaw(tt.givePrivateKey)
			got, err := gen.Generate()

			if tt.wantErr != "" {
				require.Error(t, err)
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, got)
				assert.Equal(t, tt.givePrivateKey, got.String())
			}
		})
	}
}

func Test_PrivateKeyRandom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wantAddr string
		wantErr  string
	}{
		{
			name: "valid private key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen := PrivateKeyRandom()
			got, err := gen.Generate()

			if tt.wantErr != "" {
				require.Error(t, err)
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, got)
				assert.NotEmpty(t, got.String())
				assert.True(t, got.IsValid())
			}
		})
	}
}

func Test_PrivateKeyFromFile(t *testing.T) {
	t.Parallel()

	privateKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	dir := t.TempDir()
	validPath := filepath.Join(dir, "id.json")
	require.NoError(t, writePrivateKeyToPath(validPath, privateKey))

	shortPath := filepath.Join(dir, "short.json")
	require.NoError(t, os.WriteFile(shortPath, []byte("[1,2,3]"), 0o600))

	garbagePath := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbagePath, []byte("not json"), 0o600))

	tests := []struct {
		name     string
		givePath string
		wantErr  string
	}{
		{
			name:     "valid keypair file",
			givePath: validPath,
		},
		{
			name:     "missing file",
			givePath: filepath.Join(dir, "missing.json"),
			wantErr:  "failed to read keypair file",
		},
		{
			name:     "wrong length",
			givePath: shortPath,
			wantErr:  "holds 3 bytes, want 64",
		},
		{
			name:     "not json",
			givePath: garbagePath,
			wantErr:  "failed to parse keypair file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := PrivateKeyFromFile(tt.givePath).Generate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, privateKey, got)
			assert.Equal(t, privateKey.PublicKey(), got.PublicKey())
		})
	}
}
