package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTokenIDHex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already normalized", input: "0x1a", expected: "0x1a"},
		{name: "missing prefix", input: "1a", expected: "0x1a"},
		{name: "uppercase", input: "0X1A", expected: "0x1a"},
		{name: "whitespace", input: "  0x01 ", expected: "0x01"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTokenIDHex(tt.input))
		})
	}
}

func TestTokenIDHexToInt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *int64
	}{
		{name: "small id", input: "0xff", expected: int64Ptr(255)},
		{name: "zero", input: "0x0", expected: int64Ptr(0)},
		{name: "no prefix", input: "10", expected: int64Ptr(16)},
		{name: "overflows int64", input: "0xffffffffffffffffffffffffffffffff", expected: nil},
		{name: "not hex", input: "0xzz", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenIDHexToInt(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			assert.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func TestChainGasTicker(t *testing.T) {
	assert.Equal(t, "ETH", ChainEthereum.GasTicker())
	assert.Equal(t, "MATIC", ChainPolygon.GasTicker())
}

func TestIsValidChain(t *testing.T) {
	assert.True(t, IsValidChain(ChainEthereum))
	assert.True(t, IsValidChain(ChainPolygon))
	assert.False(t, IsValidChain(Chain("solana")))
}

func int64Ptr(v int64) *int64 { return &v }
