package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationToString(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{duration: 0, expected: "0s"},
		{duration: time.Second, expected: "1s"},
		{duration: time.Minute, expected: "1m"},
		{duration: 24 * time.Hour, expected: "1d"},
		{duration: 7 * 24 * time.Hour, expected: "1w"},
		{duration: 52 * 7 * 24 * time.Hour, expected: "1y"},
		{duration: 10*24*time.Hour + 23*time.Hour + 47*time.Minute + 16*time.Second, expected: "1w3d23h47m16s"},
		{duration: 123 * time.Millisecond, expected: "123ms"},
		{duration: 456 * time.Microsecond, expected: "456us"},
		{duration: -1 * time.Second, expected: "-1s"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, DurationToString(test.duration))
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{input: "0", expected: 0},
		{input: "1s", expected: time.Second},
		{input: "1d", expected: 24 * time.Hour},
		{input: "1w", expected: 7 * 24 * time.Hour},
		{input: "1y", expected: 52 * 7 * 24 * time.Hour},
		{input: "1w3d23h47m16s", expected: 10*24*time.Hour + 23*time.Hour + 47*time.Minute + 16*time.Second},
		{input: "1.5h", expected: 90 * time.Minute},
		{input: "30d12h", expected: 30*24*time.Hour + 12*time.Hour},
		{input: "-1s", expected: -time.Second},
		{input: "", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "1.5d", wantErr: true},
	}

	for _, test := range tests {
		result, err := ParseDuration(test.input)
		if test.wantErr {
			assert.Error(t, err, test.input)
			continue
		}
		require.NoError(t, err, test.input)
		assert.Equal(t, test.expected, result, test.input)
	}
}

func TestTimeDurationJSON(t *testing.T) {
	var td TimeDuration
	require.NoError(t, td.UnmarshalJSON([]byte(`"2w"`)))
	assert.Equal(t, 14*24*time.Hour, td.Duration())

	out, err := td.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2w"`, string(out))

	assert.Error(t, td.UnmarshalJSON([]byte(`"soon"`)))
}
