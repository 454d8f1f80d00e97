package goodwe

import (
	"encoding/hex"
	"fmt"
)

const (
	modbusHeaderLen  = 5
	modbusTrailerLen = 2
)

// ModbusCommand is a command framed with the Modbus-derived protocol
// seen on newer generations of inverters. Registers are 2-byte units at
// logical addresses; the byte offset of a register within a response
// payload is relative to the first register of the request.
type ModbusCommand struct {
	request      []byte
	funcCode     byte
	firstAddress uint16
	value        uint16
}

// NewModbusReadCommand builds a command reading count registers
// starting at register offset.
func NewModbusReadCommand(commAddr byte, offset, count uint16) *ModbusCommand {
	return &ModbusCommand{
		request:      BuildModbusReadRequest(commAddr, offset, count),
		funcCode:     ModbusReadCmd,
		firstAddress: offset,
		value:        count,
	}
}

// NewModbusWriteCommand builds a command setting a single register.
func NewModbusWriteCommand(commAddr byte, register, value uint16) *ModbusCommand {
	return &ModbusCommand{
		request:      BuildModbusWriteRequest(commAddr, register, value),
		funcCode:     ModbusWriteCmd,
		firstAddress: register,
		value:        value,
	}
}

// NewModbusWriteMultiCommand builds a command setting len(values) bytes
// (2 bytes per register) of consecutive registers starting at offset.
func NewModbusWriteMultiCommand(commAddr byte, offset uint16, values []byte) *ModbusCommand {
	return &ModbusCommand{
		request:      BuildModbusWriteMultiRequest(commAddr, offset, values),
		funcCode:     ModbusWriteMultiCmd,
		firstAddress: offset,
		value:        uint16(len(values) / 2),
	}
}

func (c *ModbusCommand) Request() []byte {
	return c.request
}

func (c *ModbusCommand) Validate(data []byte) (bool, error) {
	return ValidateModbusResponse(data, c.funcCode, c.firstAddress, c.value)
}

// TrimResponse strips the 5-byte header and 2-byte CRC.
func (c *ModbusCommand) TrimResponse(raw []byte) []byte {
	return raw[modbusHeaderLen : len(raw)-modbusTrailerLen]
}

// Offset maps a register address to its byte offset in the trimmed
// payload: 2 bytes per register, relative to the request's first
// register.
func (c *ModbusCommand) Offset(address int) int {
	return (address - int(c.firstAddress)) * 2
}

func (c *ModbusCommand) String() string {
	switch c.funcCode {
	case ModbusReadCmd:
		if c.value > 1 {
			return fmt.Sprintf("READ %d registers from %d (%s)", c.value, c.firstAddress, hex.EncodeToString(c.request))
		}
		return fmt.Sprintf("READ register %d (%s)", c.firstAddress, hex.EncodeToString(c.request))
	case ModbusWriteCmd:
		return fmt.Sprintf("WRITE %d to register %d (%s)", c.value, c.firstAddress, hex.EncodeToString(c.request))
	default:
		return fmt.Sprintf("WRITE %d registers from %d (%s)", c.value, c.firstAddress, hex.EncodeToString(c.request))
	}
}
