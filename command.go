package goodwe

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"

	"github.com/zeromicro/go-zero/core/logx"
)

// Command is a single immutable inverter request together with the
// logic needed to classify and trim its response.
type Command interface {
	// Request returns the framed request bytes.
	Request() []byte
	// Validate classifies a raw response: (true, nil) accepted,
	// (false, nil) malformed or unexpected, (false, err) with a
	// *RequestRejectedError for a protocol-level rejection.
	Validate(data []byte) (bool, error)
	// TrimResponse strips framing header and trailer bytes from a raw
	// response, exposing the logical payload.
	TrimResponse(raw []byte) []byte
	// Offset maps a logical register address to a byte offset within
	// the trimmed payload.
	Offset(address int) int
	// String renders the command for logging.
	String() string
}

// Session turns an unreliable socket into a reliable request/response
// primitive. Implementations allow at most one in-flight command;
// callers must not issue overlapping calls on the same session.
type Session interface {
	// SendRequest transmits the command and blocks until a validated
	// response arrives or a terminal failure occurs.
	SendRequest(ctx context.Context, cmd Command) ([]byte, error)
	// Close tears down the transport handle. Closing an already closed
	// session is a no-op.
	Close() error
}

// EqualCommands reports whether two commands are the same request.
// Commands are compared by request bytes only.
func EqualCommands(a, b Command) bool {
	return bytes.Equal(a.Request(), b.Request())
}

// Execute runs the command on the session and wraps the raw response
// bytes in a Response. Protocol rejections and exhausted retry budgets
// surface as *RequestRejectedError and *MaxRetriesError respectively;
// every other failure is normalized to *RequestFailedError so the
// caller never observes raw socket errors or cancellation.
func Execute(ctx context.Context, session Session, cmd Command) (*Response, error) {
	data, err := session.SendRequest(ctx, cmd)
	if err != nil {
		var rejected *RequestRejectedError
		var maxRetries *MaxRetriesError
		if errors.As(err, &rejected) || errors.As(err, &maxRetries) {
			return nil, err
		}
		logx.Debugf("request %s failed: %v", cmd, err)
		return nil, &RequestFailedError{Reason: "no valid response received to '" + hex.EncodeToString(cmd.Request()) + "' request"}
	}
	if len(data) == 0 {
		return nil, &RequestFailedError{Reason: "no response received to '" + hex.EncodeToString(cmd.Request()) + "' request"}
	}
	return NewResponse(data, cmd), nil
}
