package symbol

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-alerts/internal/solana"
	"wallet-alerts/internal/solana/stub"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func borsh(s string) []byte {
	b := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(b, uint32(len(s)))
	copy(b[4:], s)
	return b
}

func metadataAccount(name, sym string) string {
	raw := make([]byte, 65)
	raw[0] = metadataV1Key
	raw = append(raw, borsh(name)...)
	raw = append(raw, borsh(sym)...)
	raw = append(raw, borsh("https://example.com/meta.json")...)
	return base64.StdEncoding.EncodeToString(raw)
}

func metadataPDA(t *testing.T, mint string) string {
	t.Helper()
	mintBytes, err := solana.DecodeAddress(mint)
	require.NoError(t, err)
	programBytes, err := solana.DecodeAddress(MetaplexProgramID)
	require.NoError(t, err)

	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("metadata"), programBytes, mintBytes}, MetaplexProgramID)
	require.NoError(t, err)
	return pda
}

func TestMetaplexSource_Lookup(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Accounts[metadataPDA(t, testMint)] = &solana.AccountInfo{Data: metadataAccount("USD Coin\x00\x00", "USDC\x00")}

	sym, err := NewMetaplexSource(rpc).Lookup(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, "USDC", sym)
}

func TestMetaplexSource_NameWhenSymbolBlank(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Accounts[metadataPDA(t, testMint)] = &solana.AccountInfo{Data: metadataAccount("Some Token", "")}

	sym, err := NewMetaplexSource(rpc).Lookup(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, "Some Token", sym)
}

func TestMetaplexSource_MissingAccount(t *testing.T) {
	_, err := NewMetaplexSource(stub.NewRPCClient()).Lookup(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestMetaplexSource_InvalidMint(t *testing.T) {
	_, err := NewMetaplexSource(stub.NewRPCClient()).Lookup(context.Background(), "not-a-mint")
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestMetaplexSource_RPCErrorIsNotDefinitive(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Err = errors.New("connection refused")

	_, err := NewMetaplexSource(rpc).Lookup(context.Background(), testMint)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMetadata)
}

func TestParseMetadata_Garbage(t *testing.T) {
	_, _, err := parseMetadata(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	assert.Error(t, err)

	_, _, err = parseMetadata("%%%")
	assert.Error(t, err)
}
