package solana

import (
	"testing"

	"github.com/mr-tron/base58"
)

const (
	testMetaplexProgram = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	testNativeMint      = "So11111111111111111111111111111111111111112"
)

func TestFindProgramAddress(t *testing.T) {
	mint, err := DecodeAddress(testNativeMint)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	program, _ := DecodeAddress(testMetaplexProgram)

	seeds := [][]byte{[]byte("metadata"), program, mint}

	addr, bump, err := FindProgramAddress(seeds, testMetaplexProgram)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	again, againBump, _ := FindProgramAddress(seeds, testMetaplexProgram)
	if addr != again || bump != againBump {
		t.Errorf("derivation not deterministic: %s/%d vs %s/%d", addr, bump, again, againBump)
	}

	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		t.Fatalf("derived address is not a 32-byte key: %v", err)
	}
	if isOnCurve(raw) {
		t.Error("derived address must be off curve")
	}
}

func TestFindProgramAddress_InvalidProgram(t *testing.T) {
	if _, _, err := FindProgramAddress(nil, "not-base58-0OIl"); err == nil {
		t.Error("expected error for invalid program id")
	}
}

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{testNativeMint, true},
		{testMetaplexProgram, true},
		{"", false},
		{"short", false},
		{"0OIl", false},
	}
	for _, tt := range tests {
		if got := IsValidAddress(tt.addr); got != tt.want {
			t.Errorf("IsValidAddress(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
