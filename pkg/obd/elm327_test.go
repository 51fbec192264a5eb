package obd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	r, err := ParseResponse("41 0C 1A F8\r\n>")
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), r.Mode)
	assert.Equal(t, "0C", r.PID)
	assert.Equal(t, []byte{0x1A, 0xF8}, r.Data)

	v, ok := Decode(r.PID, r.Data)
	require.True(t, ok)
	assert.Equal(t, 1726.0, v)

	r, err = ParseResponse("410d5a")
	require.NoError(t, err)
	assert.Equal(t, "0D", r.PID)
	assert.Equal(t, []byte{0x5A}, r.Data)
}

func TestParseResponseMode03(t *testing.T) {
	r, err := ParseResponse("43 02 01 01 C1 00")
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), r.Mode)
	assert.Equal(t, []string{"P0101", "U0100"}, DecodeDTCs(r.Data))
}

func TestParseResponseErrors(t *testing.T) {
	_, err := ParseResponse("NO DATA")
	assert.ErrorIs(t, err, ErrNoData)

	_, err = ParseResponse(">")
	assert.ErrorIs(t, err, ErrNoData)

	for _, line := range []string{"?", "CAN ERROR", "41 0", "01 0C", "41"} {
		_, err := ParseResponse(line)
		assert.Error(t, err, line)
	}
}

func TestRequest(t *testing.T) {
	assert.Equal(t, "010C", Request("0c"))
	assert.Equal(t, "010D", Request("d"))
}
