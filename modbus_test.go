package goodwe

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     string
		expected uint16
	}{
		{data: "010300000001", expected: 0x840A},
		{data: "0103021234", expected: 0xB533},
		{data: "f70388b80021", expected: 0x3AC1},
		{data: "", expected: 0xFFFF},
		{data: "00", expected: 0xBF40},
	}

	for _, tc := range testCases {
		crc := CRC16(mustHex(t, tc.data))
		if crc != tc.expected {
			t.Errorf("CRC16(%s) returned incorrect CRC: got %#04x, expected %#04x", tc.data, crc, tc.expected)
		}
	}
}

func TestBuildModbusReadRequest(t *testing.T) {
	req := BuildModbusReadRequest(0xF7, 0x88B8, 0x0021)
	assert.Equal(t, "f70388b800213ac1", hex.EncodeToString(req))

	req = BuildModbusReadRequest(0xF7, 0x0401, 0x0002)
	assert.Equal(t, "f70304010002806d", hex.EncodeToString(req))
}

func TestBuildModbusWriteRequest(t *testing.T) {
	req := BuildModbusWriteRequest(0xF7, 0x0401, 0x1388)
	assert.Equal(t, "f70604011388c0fa", hex.EncodeToString(req))
}

func TestBuildModbusWriteMultiRequest(t *testing.T) {
	req := BuildModbusWriteMultiRequest(0xF7, 0x0401, []byte{0x11, 0x22, 0x33, 0x44})
	assert.Equal(t, "f710040100020411223344acdd", hex.EncodeToString(req))
}

func TestValidateModbusReadResponse(t *testing.T) {
	response := mustHex(t, "aa55f70304123456781708")

	ok, err := ValidateModbusResponse(response, ModbusReadCmd, 0x0401, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateModbusResponseCorruptedCRC(t *testing.T) {
	response := mustHex(t, "aa55f70304123456781708")
	response[len(response)-1] ^= 0x01

	ok, err := ValidateModbusResponse(response, ModbusReadCmd, 0x0401, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateModbusResponseRejection(t *testing.T) {
	response := mustHex(t, "aa55f7830220c3")

	ok, err := ValidateModbusResponse(response, ModbusReadCmd, 0x0401, 2)
	assert.False(t, ok)
	var rejected *RequestRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "ILLEGAL DATA ADDRESS", rejected.Reason)
	assert.Equal(t, response, rejected.Response)
}

func TestValidateModbusResponseWrongFunctionCode(t *testing.T) {
	ok, err := ValidateModbusResponse(mustHex(t, "aa55f70304123456781708"), ModbusWriteCmd, 0x0401, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateModbusResponseTooShort(t *testing.T) {
	ok, err := ValidateModbusResponse([]byte{0xAA, 0x55, 0xF7}, ModbusReadCmd, 0x0401, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateModbusWriteResponse(t *testing.T) {
	response := mustHex(t, "aa55f70604011388c0fa")

	ok, err := ValidateModbusResponse(response, ModbusWriteCmd, 0x0401, 0x1388)
	require.NoError(t, err)
	assert.True(t, ok)

	// Echoed register mismatch is malformed, not a rejection.
	ok, err = ValidateModbusResponse(response, ModbusWriteCmd, 0x0402, 0x1388)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestModbusCommandTrimResponse(t *testing.T) {
	cmd := NewModbusReadCommand(0xF7, 0x0401, 2)
	raw := mustHex(t, "aa55f70304123456781708")

	trimmed := cmd.TrimResponse(raw)
	assert.Equal(t, "12345678", hex.EncodeToString(trimmed))
	assert.Equal(t, len(raw)-modbusHeaderLen-modbusTrailerLen, len(trimmed))
}

func TestModbusCommandOffsetIsLinear(t *testing.T) {
	cmd := NewModbusReadCommand(0xF7, 0x88B8, 0x21)
	for k := 0; k < 0x21; k++ {
		assert.Equal(t, 2*k, cmd.Offset(0x88B8+k))
	}
}

func TestModbusCommandString(t *testing.T) {
	assert.Equal(t, "READ 33 registers from 35000 (f70388b800213ac1)", NewModbusReadCommand(0xF7, 35000, 33).String())
	assert.Equal(t, "READ register 35000 (f70388b800013b19)", NewModbusReadCommand(0xF7, 35000, 1).String())
	assert.Equal(t, "WRITE 5000 to register 1025 (f70604011388c0fa)", NewModbusWriteCommand(0xF7, 1025, 5000).String())
}
