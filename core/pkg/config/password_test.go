package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordMarshalText(t *testing.T) {
	p := Password("mysecretpassword")

	marshaled, err := p.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "*************", string(marshaled))
}

func TestPasswordUnmarshalText(t *testing.T) {
	var p Password

	err := p.UnmarshalText([]byte("mysecretpassword"))
	require.NoError(t, err)
	assert.Equal(t, Password("mysecretpassword"), p)
}
