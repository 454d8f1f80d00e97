package goodwe

import (
	"encoding/binary"

	"github.com/zeromicro/go-zero/core/logx"
)

// Modbus function codes used by the inverter protocol.
const (
	ModbusReadCmd       byte = 0x03
	ModbusWriteCmd      byte = 0x06
	ModbusWriteMultiCmd byte = 0x10
)

const modbusFailureBit byte = 0x80

// CRC16 calculates the Modbus CRC16 checksum. The result is returned
// byte-swapped so that a big-endian append produces the low-byte-first
// wire order Modbus requires.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if (crc & 0x0001) != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return ((crc & 0xFF) << 8) | ((crc >> 8) & 0xFF)
}

// exceptionMessage returns a human-readable message for a Modbus
// exception code.
func exceptionMessage(exceptionCode byte) string {
	switch exceptionCode {
	case 0x01:
		return "ILLEGAL FUNCTION"
	case 0x02:
		return "ILLEGAL DATA ADDRESS"
	case 0x03:
		return "ILLEGAL DATA VALUE"
	case 0x04:
		return "SLAVE DEVICE FAILURE"
	case 0x05:
		return "ACKNOWLEDGE"
	case 0x06:
		return "SLAVE DEVICE BUSY"
	case 0x07:
		return "NEGATIVE ACKNOWLEDGEMENT"
	case 0x08:
		return "MEMORY PARITY ERROR"
	case 0x0A:
		return "GATEWAY PATH UNAVAILABLE"
	case 0x0B:
		return "GATEWAY TARGET DEVICE FAILED TO RESPOND"
	default:
		return "UNKNOWN"
	}
}

// BuildModbusReadRequest builds a request frame reading count registers
// starting at offset.
func BuildModbusReadRequest(commAddr byte, offset, count uint16) []byte {
	return buildModbusRequest(commAddr, ModbusReadCmd, offset, count)
}

// BuildModbusWriteRequest builds a request frame writing value to a
// single register.
func BuildModbusWriteRequest(commAddr byte, register, value uint16) []byte {
	return buildModbusRequest(commAddr, ModbusWriteCmd, register, value)
}

func buildModbusRequest(commAddr, funcCode byte, offset, value uint16) []byte {
	req := make([]byte, 8)
	req[0] = commAddr
	req[1] = funcCode
	binary.BigEndian.PutUint16(req[2:4], offset)
	binary.BigEndian.PutUint16(req[4:6], value)
	binary.BigEndian.PutUint16(req[6:8], CRC16(req[:6]))
	return req
}

// BuildModbusWriteMultiRequest builds a request frame writing values
// (2 bytes per register) to consecutive registers starting at offset.
func BuildModbusWriteMultiRequest(commAddr byte, offset uint16, values []byte) []byte {
	req := make([]byte, 7+len(values)+2)
	req[0] = commAddr
	req[1] = ModbusWriteMultiCmd
	binary.BigEndian.PutUint16(req[2:4], offset)
	binary.BigEndian.PutUint16(req[4:6], uint16(len(values)/2))
	req[6] = byte(len(values))
	copy(req[7:], values)
	binary.BigEndian.PutUint16(req[7+len(values):], CRC16(req[:7+len(values)]))
	return req
}

// ValidateModbusResponse classifies a raw response frame for the given
// request parameters. It returns (true, nil) for an accepted frame,
// (false, nil) for a malformed or unexpected one and
// (false, *RequestRejectedError) when the inverter answered with an
// exception frame (function code with the high bit set).
//
// The frame layout is AA 55 + commAddr + funcCode + [length byte for
// reads] + payload + CRC16. The CRC covers everything between the AA 55
// prefix and the trailing two bytes.
func ValidateModbusResponse(data []byte, funcCode byte, offset, value uint16) (bool, error) {
	if len(data) <= 4 {
		logx.Debugf("response is too short: %d bytes", len(data))
		return false, nil
	}
	if data[0] != 0xAA || data[1] != 0x55 {
		logx.Debugf("response has unexpected header: %02x%02x", data[0], data[1])
		return false, nil
	}
	if data[3] != funcCode {
		if data[3] == funcCode|modbusFailureBit {
			return false, &RequestRejectedError{Reason: exceptionMessage(data[4]), Response: data}
		}
		logx.Debugf("response has unexpected function code: %02x, expected %02x", data[3], funcCode)
		return false, nil
	}

	var expected int
	if funcCode == ModbusReadCmd {
		expected = int(data[4]) + 7
		if len(data) < expected {
			logx.Debugf("response has unexpected length: %d, expected %d", len(data), expected)
			return false, nil
		}
		if int(data[4]) != int(value)*2 {
			logx.Debugf("response has unexpected payload length: %d, expected %d", data[4], value*2)
			return false, nil
		}
	} else {
		expected = 10
		if len(data) < expected {
			logx.Debugf("response has unexpected length: %d, expected %d", len(data), expected)
			return false, nil
		}
		if binary.BigEndian.Uint16(data[4:6]) != offset {
			logx.Debugf("response has unexpected register: %d, expected %d", binary.BigEndian.Uint16(data[4:6]), offset)
			return false, nil
		}
		if binary.BigEndian.Uint16(data[6:8]) != value {
			logx.Debugf("response has unexpected value: %d, expected %d", binary.BigEndian.Uint16(data[6:8]), value)
			return false, nil
		}
	}

	if CRC16(data[2:expected-2]) != binary.BigEndian.Uint16(data[expected-2:expected]) {
		logx.Debugf("response CRC does not match")
		return false, nil
	}
	return true, nil
}
