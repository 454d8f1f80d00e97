package goodwe

import (
	"context"
	"encoding/hex"
	"io"
	"sync"

	serial "github.com/hootrhino/goserial"
	"github.com/zeromicro/go-zero/core/logx"
)

// SerialSession carries the AA55 framing over its native RS-485 serial
// link. The port is opened lazily on the first request and kept open
// across calls; reads are framed by the AA55 layout (7-byte header, the
// length byte at index 6, 2-byte checksum). Timeouts and malformed
// responses are retried symmetrically like the datagram session, with
// the port's configured timeout bounding each attempt.
type SerialSession struct {
	config  *serial.Config
	retries int

	mu    sync.Mutex
	port  io.ReadWriteCloser
	retry int
}

// NewSerialSession creates a session for the inverter on the serial
// line described by config. config.Timeout bounds one attempt.
func NewSerialSession(config *serial.Config, retries int) *SerialSession {
	if retries < 0 {
		retries = 0
	}
	return &SerialSession{config: config, retries: retries}
}

func (s *SerialSession) ensurePort() error {
	if s.port != nil {
		return nil
	}
	port, err := serial.Open(s.config)
	if err != nil {
		return err
	}
	s.port = port
	return nil
}

// SendRequest transmits the command and waits for a validated response.
func (s *SerialSession) SendRequest(ctx context.Context, cmd Command) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensurePort(); err != nil {
		return nil, err
	}
	s.retry = 0

	for {
		if err := ctx.Err(); err != nil {
			s.closeLocked()
			return nil, err
		}
		logx.Debugf("sending: %s", cmd)
		if _, err := s.port.Write(cmd.Request()); err != nil {
			s.closeLocked()
			return nil, err
		}

		data, err := s.readFrame()
		if err != nil {
			// Serial reads fail on timeout; resend while the budget
			// lasts.
			if s.retry < s.retries {
				s.retry++
				logx.Debugf("failed to receive response to %s - retry #%d/%d", cmd, s.retry, s.retries)
				continue
			}
			return nil, &MaxRetriesError{Retries: s.retries, Command: cmd.String()}
		}

		ok, verr := cmd.Validate(data)
		if verr != nil {
			logx.Debugf("received exception response: %s", hex.EncodeToString(data))
			return nil, verr
		}
		if ok {
			logx.Debugf("received: %s", hex.EncodeToString(data))
			return data, nil
		}
		logx.Debugf("received invalid response: %s", hex.EncodeToString(data))
		if s.retry >= s.retries {
			return nil, &MaxRetriesError{Retries: s.retries, Command: cmd.String()}
		}
		s.retry++
	}
}

// readFrame reads one AA55 response frame: the fixed header first, then
// the payload and checksum sized by the length byte.
func (s *SerialSession) readFrame() ([]byte, error) {
	header := make([]byte, aa55HeaderLen)
	if _, err := io.ReadFull(s.port, header); err != nil {
		return nil, err
	}
	rest := make([]byte, int(header[6])+aa55TrailerLen)
	if _, err := io.ReadFull(s.port, rest); err != nil {
		return nil, err
	}
	return append(header, rest...), nil
}

func (s *SerialSession) closeLocked() {
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}
}

// Close releases the serial port. Closing an already closed session is
// a no-op.
func (s *SerialSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}
