package helpers

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertNth(t *testing.T) {
	var testcases = []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty", input: "", expected: ""},
		{name: "OddLength", input: "123", expected: "01-23"},
		{name: "EvenLength", input: "1234", expected: "12-34"},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, insertNth(tc.input, 2, '-'))
		})
	}
}

func TestToHexInt(t *testing.T) {
	assert.Equal(t, "0", toHexInt(big.NewInt(0)))
	assert.Equal(t, "ff", toHexInt(big.NewInt(255)))
	assert.Equal(t, "-ff", toHexInt(big.NewInt(-255)))
}

func TestSerialNumberToString(t *testing.T) {
	var testcases = []struct {
		name     string
		input    *big.Int
		expected string
	}{
		{name: "Zero", input: big.NewInt(0), expected: "00"},
		{name: "Positive", input: big.NewInt(255), expected: "ff"},
		{name: "Negative", input: big.NewInt(-255), expected: "ff"},
		{name: "OddLength", input: big.NewInt(256), expected: "01-00"},
		{name: "EvenLength", input: big.NewInt(1024 * 4), expected: "10-00"},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SerialNumberToString(tc.input))
		})
	}
}

func TestSerialNumberHexRoundTrip(t *testing.T) {
	for i := 0; i < 20; i++ {
		sn, err := GenerateSerialNumber()
		require.NoError(t, err)
		assert.Equal(t, 1, sn.Sign())
		assert.LessOrEqual(t, len(sn.Bytes()), 20)

		parsed, err := ParseSerialNumberHex(SerialNumberToHexString(sn))
		require.NoError(t, err)
		assert.Equal(t, 0, sn.Cmp(parsed))
	}

	_, err := ParseSerialNumberHex("zz")
	assert.Error(t, err)
}
