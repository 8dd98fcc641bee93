package symbol

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"wallet-alerts/internal/solana"
)

// MetaplexProgramID is the Metaplex Token Metadata program.
const MetaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

const metadataV1Key = 4

// MetaplexSource reads the symbol from the mint's Metaplex metadata account.
type MetaplexSource struct {
	rpc solana.AccountReader
}

// NewMetaplexSource creates a Source backed by Solana RPC.
func NewMetaplexSource(rpc solana.AccountReader) *MetaplexSource {
	return &MetaplexSource{rpc: rpc}
}

// Lookup returns the metadata symbol, or the name when the symbol is blank.
func (s *MetaplexSource) Lookup(ctx context.Context, mint string) (string, error) {
	mintBytes, err := solana.DecodeAddress(mint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoMetadata, err)
	}
	programBytes, err := solana.DecodeAddress(MetaplexProgramID)
	if err != nil {
		return "", err
	}

	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("metadata"), programBytes, mintBytes}, MetaplexProgramID)
	if err != nil {
		return "", fmt.Errorf("derive metadata address: %w", err)
	}

	info, err := s.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		return "", fmt.Errorf("get metadata account: %w", err)
	}
	if info == nil {
		return "", ErrNoMetadata
	}

	name, sym, err := parseMetadata(info.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoMetadata, err)
	}
	if sym != "" {
		return sym, nil
	}
	if name != "" {
		return name, nil
	}
	return "", ErrNoMetadata
}

// parseMetadata reads name and symbol from a base64 MetadataV1 account:
// key u8, update authority [32], mint [32], then borsh strings name and symbol.
func parseMetadata(data string) (name, sym string, err error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", "", fmt.Errorf("decode metadata: %w", err)
	}
	if len(raw) < 65 || raw[0] != metadataV1Key {
		return "", "", fmt.Errorf("not a metadata v1 account")
	}

	offset := 65
	name, offset, err = readBorshString(raw, offset, 64)
	if err != nil {
		return "", "", fmt.Errorf("name: %w", err)
	}
	sym, _, err = readBorshString(raw, offset, 16)
	if err != nil {
		return "", "", fmt.Errorf("symbol: %w", err)
	}
	return name, sym, nil
}

func readBorshString(raw []byte, offset, max int) (string, int, error) {
	if offset+4 > len(raw) {
		return "", offset, fmt.Errorf("truncated length at %d", offset)
	}
	n := int(binary.LittleEndian.Uint32(raw[offset:]))
	offset += 4
	if n > max || offset+n > len(raw) {
		return "", offset, fmt.Errorf("length %d out of range", n)
	}
	s := strings.TrimSpace(strings.TrimRight(string(raw[offset:offset+n]), "\x00"))
	return s, offset + n, nil
}

var _ Source = (*MetaplexSource)(nil)
