package goodwe

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeromicro/go-zero/core/logx"
)

// The AA55 protocol is seen mostly on older generations of inverters.
// It is quite probably a variation of an RS-485 serial protocol adapted
// to UDP. Requests start with 0xAA 0x55 0xC0 0x7F followed by the
// payload and two bytes of plain checksum. Responses start with
// 0xAA 0x55 0x7F 0xC0, bytes 4-5 carry a response type, byte 6 the
// payload length, and the last two bytes are again a plain checksum.

var aa55RequestPrefix = []byte{0xAA, 0x55, 0xC0, 0x7F}

const (
	aa55HeaderLen   = 7
	aa55TrailerLen  = 2
	aa55ResponseMin = 9
)

// AA55Command is a command framed with the legacy plain-checksum
// protocol.
type AA55Command struct {
	request      []byte
	responseType uint16
}

// NewAA55Command frames payload with the AA55 request prefix and
// trailing checksum. responseType is the expected response type code,
// or 0 to skip the response type check.
func NewAA55Command(payload []byte, responseType uint16) *AA55Command {
	req := make([]byte, 0, len(aa55RequestPrefix)+len(payload)+aa55TrailerLen)
	req = append(req, aa55RequestPrefix...)
	req = append(req, payload...)
	req = binary.BigEndian.AppendUint16(req, aa55Checksum(req))
	return &AA55Command{request: req, responseType: responseType}
}

// NewAA55ReadCommand builds a command reading count registers starting
// at register offset.
func NewAA55ReadCommand(offset int, count int) *AA55Command {
	payload := []byte{0x01, 0x1A, 0x03, byte(offset >> 8), byte(offset), byte(count)}
	return NewAA55Command(payload, 0x019A)
}

// NewAA55WriteCommand builds a command setting a single register.
func NewAA55WriteCommand(register int, value int) *AA55Command {
	payload := []byte{0x02, 0x39, 0x05, byte(register >> 8), byte(register), 0x01, byte(value >> 8), byte(value)}
	return NewAA55Command(payload, 0x02B9)
}

// NewAA55WriteMultiCommand builds a command setting len(values) bytes
// of consecutive registers starting at register offset.
func NewAA55WriteMultiCommand(offset int, values []byte) *AA55Command {
	payload := make([]byte, 0, 6+len(values))
	payload = append(payload, 0x02, 0x39, 0x0B, byte(offset>>8), byte(offset), byte(len(values)))
	payload = append(payload, values...)
	return NewAA55Command(payload, 0x02B9)
}

// aa55Checksum is the plain sum of all bytes, modulo 2^16.
func aa55Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

func (c *AA55Command) Request() []byte {
	return c.request
}

// Validate checks response length, expected response type and trailing
// checksum. The AA55 protocol has no rejection frames, so the result is
// never a *RequestRejectedError.
func (c *AA55Command) Validate(data []byte) (bool, error) {
	if len(data) <= 8 {
		logx.Debugf("response is too short: %d bytes", len(data))
		return false, nil
	}
	if len(data) != int(data[6])+aa55ResponseMin {
		logx.Debugf("response has unexpected length: %d, expected %d", len(data), int(data[6])+aa55ResponseMin)
		return false, nil
	}
	if c.responseType != 0 {
		responseType := binary.BigEndian.Uint16(data[4:6])
		if responseType != c.responseType {
			logx.Debugf("response type unexpected: %04x, expected %04x", responseType, c.responseType)
			return false, nil
		}
	}
	if aa55Checksum(data[:len(data)-2]) != binary.BigEndian.Uint16(data[len(data)-2:]) {
		logx.Debugf("response checksum does not match")
		return false, nil
	}
	return true, nil
}

// TrimResponse strips the 7-byte header and 2-byte checksum.
func (c *AA55Command) TrimResponse(raw []byte) []byte {
	return raw[aa55HeaderLen : len(raw)-aa55TrailerLen]
}

// Offset is identity: AA55 register addresses are already absolute.
func (c *AA55Command) Offset(address int) int {
	return address
}

func (c *AA55Command) String() string {
	return hex.EncodeToString(c.request)
}
