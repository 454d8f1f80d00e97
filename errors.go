package goodwe

import (
	"encoding/hex"
	"fmt"
)

// RequestRejectedError signals that the inverter answered with a
// protocol-level rejection (NAK) rather than the requested data.
type RequestRejectedError struct {
	Reason   string
	Response []byte
}

func (e *RequestRejectedError) Error() string {
	if len(e.Response) > 0 {
		return fmt.Sprintf("goodwe: request rejected: %s (response %s)", e.Reason, hex.EncodeToString(e.Response))
	}
	return fmt.Sprintf("goodwe: request rejected: %s", e.Reason)
}

// RequestFailedError signals that no usable response was obtained for a
// request. It hides retry/timeout mechanics from the caller.
type RequestFailedError struct {
	Reason string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("goodwe: request failed: %s", e.Reason)
}

// MaxRetriesError signals that all retry attempts were exhausted
// without receiving a valid response.
type MaxRetriesError struct {
	Retries int
	Command string
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("goodwe: max number of retries (%d) reached, request %s failed", e.Retries, e.Command)
}
