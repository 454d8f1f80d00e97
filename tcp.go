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

// TCPSession is the connection-oriented Session implementation. A
// healthy connection is reused across calls. The retry counter tracks
// consecutive connection-level failures, not failures within one
// exchange: any successful exchange resets it to 0, and recovery from a
// timeout or broken connection re-enters the full connect+send path.
type TCPSession struct {
	host    string
	port    int
	timeout time.Duration
	retries int

	mu    sync.Mutex
	conn  net.Conn
	retry int
}

// NewTCPSession creates a session for the inverter at host:port.
func NewTCPSession(host string, port int, timeout time.Duration, retries int) *TCPSession {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if retries < 0 {
		retries = 0
	}
	return &TCPSession{host: host, port: port, timeout: timeout, retries: retries}
}

func (s *TCPSession) ensureConn() error {
	if s.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)), s.timeout)
	if err != nil {
		return err
	}
	logx.Debugf("connection opened")
	s.conn = conn
	return nil
}

// SendRequest transmits the command and waits for a validated response,
// reconnecting and resending while the retry budget lasts. A protocol
// rejection is returned immediately and deliberately leaves the
// connection open: a NAK is a valid exchange, not a transport fault.
func (s *TCPSession) SendRequest(ctx context.Context, cmd Command) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			s.closeLocked()
			return nil, err
		}
		if err := s.ensureConn(); err != nil {
			if s.retry < s.retries {
				s.retry++
				logx.Debugf("connection refused error: %v - retry #%d/%d", err, s.retry, s.retries)
				continue
			}
			s.closeLocked()
			return nil, &MaxRetriesError{Retries: s.retries, Command: cmd.String()}
		}

		data, err := s.exchange(ctx, cmd)
		if err == nil {
			s.retry = 0
			return data, nil
		}
		var rejected *RequestRejectedError
		if errors.As(err, &rejected) {
			return nil, err
		}
		// Timeout, peer close or socket error: tear the connection
		// down and recover with a fresh connect+send cycle.
		s.closeLocked()
		if s.retry < s.retries {
			s.retry++
			logx.Debugf("connection broken error: %v - retry #%d/%d", err, s.retry, s.retries)
			continue
		}
		return nil, &MaxRetriesError{Retries: s.retries, Command: cmd.String()}
	}
}

// exchange performs one send+receive cycle on the current connection.
func (s *TCPSession) exchange(ctx context.Context, cmd Command) ([]byte, error) {
	logx.Debugf("sending: %s", cmd)
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)
	if _, err := s.conn.Write(cmd.Request()); err != nil {
		return nil, err
	}

	buf := make([]byte, maxFrameSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	data := make([]byte, n)
	copy(data, buf[:n])

	ok, verr := cmd.Validate(data)
	if verr != nil {
		logx.Debugf("received exception response: %s", hex.EncodeToString(data))
		return nil, verr
	}
	if !ok {
		logx.Debugf("received invalid response: %s", hex.EncodeToString(data))
		s.closeLocked()
		return nil, &RequestRejectedError{Reason: "unexpected response", Response: data}
	}
	logx.Debugf("received: %s", hex.EncodeToString(data))
	return data, nil
}

func (s *TCPSession) closeLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		logx.Debugf("connection closed")
	}
}

// Close tears down the connection. Closing an already closed session is
// a no-op.
func (s *TCPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}
