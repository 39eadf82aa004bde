package jig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOnOff(t *testing.T) {
	for _, s := range []string{"on", "1", "true"} {
		on, err := parseOnOff(s)
		require.NoError(t, err)
		assert.True(t, on)
	}
	for _, s := range []string{"off", "0", "false"} {
		on, err := parseOnOff(s)
		require.NoError(t, err)
		assert.False(t, on)
	}
	_, err := parseOnOff("maybe")
	assert.Error(t, err)
}

func TestParseInts(t *testing.T) {
	vals, err := parseInts([]string{"2", "0x3", "9"}, "ADC", "CHANNEL")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, vals)

	_, err = parseInts([]string{"2"}, "ADC", "CHANNEL")
	assert.EqualError(t, err, "CHANNEL required")
	_, err = parseInts([]string{"two"}, "ADC")
	assert.Error(t, err)
}
