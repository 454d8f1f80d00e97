package goodwe

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// maxFrameSize bounds a single response frame for both framings.
const maxFrameSize = 1024

// defaultTimeout is the per-attempt timeout applied when none is given.
const defaultTimeout = time.Second

// UDPSession is the connectionless Session implementation. A fresh
// socket is used for every request cycle; timeouts and malformed
// responses are handled symmetrically by resending the same datagram
// until the retry budget runs out.
type UDPSession struct {
	host    string
	port    int
	timeout time.Duration
	retries int

	mu    sync.Mutex
	conn  net.Conn
	retry int
}

// NewUDPSession creates a session for the inverter at host:port.
// timeout is the time one attempt may take before it is considered
// lost; retries is the number of additional attempts after the first.
func NewUDPSession(host string, port int, timeout time.Duration, retries int) *UDPSession {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if retries < 0 {
		retries = 0
	}
	return &UDPSession{host: host, port: port, timeout: timeout, retries: retries}
}

func (s *UDPSession) ensureConn() error {
	if s.conn != nil {
		return nil
	}
	conn, err := net.Dial("udp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// SendRequest transmits the command and waits for a validated response.
// At most one request may be in flight; concurrent callers are
// serialized.
func (s *UDPSession) SendRequest(ctx context.Context, cmd Command) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConn(); err != nil {
		return nil, err
	}
	s.retry = 0

	logx.Debugf("sending: %s", cmd)
	if _, err := s.conn.Write(cmd.Request()); err != nil {
		s.closeLocked()
		return nil, err
	}

	buf := make([]byte, maxFrameSize)
	deadline := s.attemptDeadline(ctx)
	for {
		if err := ctx.Err(); err != nil {
			s.closeLocked()
			return nil, err
		}
		_ = s.conn.SetReadDeadline(deadline)
		n, err := s.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() && ctx.Err() == nil {
				if s.retry < s.retries {
					s.retry++
					logx.Debugf("failed to receive response to %s in time (%s) - retry #%d/%d", cmd, s.timeout, s.retry, s.retries)
					if _, err := s.conn.Write(cmd.Request()); err != nil {
						s.closeLocked()
						return nil, err
					}
					deadline = s.attemptDeadline(ctx)
					continue
				}
				s.closeLocked()
				return nil, &MaxRetriesError{Retries: s.retries, Command: cmd.String()}
			}
			s.closeLocked()
			return nil, err
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		ok, verr := cmd.Validate(data)
		if verr != nil {
			logx.Debugf("received exception response: %s", hex.EncodeToString(data))
			s.closeLocked()
			return nil, verr
		}
		if ok {
			logx.Debugf("received: %s", hex.EncodeToString(data))
			s.closeLocked()
			return data, nil
		}
		logx.Debugf("received invalid response: %s", hex.EncodeToString(data))
		if s.retry >= s.retries {
			s.closeLocked()
			return nil, &MaxRetriesError{Retries: s.retries, Command: cmd.String()}
		}
		s.retry++
		// Resend the same datagram without extending the current
		// deadline window.
		if _, err := s.conn.Write(cmd.Request()); err != nil {
			s.closeLocked()
			return nil, err
		}
	}
}

// attemptDeadline is the per-attempt read deadline, capped by the
// context deadline when that comes first.
func (s *UDPSession) attemptDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

func (s *UDPSession) closeLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close tears down the socket. Closing an already closed session is a
// no-op.
func (s *UDPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}
