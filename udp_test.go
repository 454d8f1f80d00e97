package goodwe

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startUDPResponder answers each received datagram according to script;
// a nil reply means stay silent. It returns the endpoint, a counter of
// received datagrams and a stop function.
func startUDPResponder(t *testing.T, script func(attempt int) []byte) (string, int, *int32, func()) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	var received int32
	go func() {
		buf := make([]byte, maxFrameSize)
		for {
			_, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			attempt := int(atomic.AddInt32(&received, 1))
			if reply := script(attempt); reply != nil {
				_, _ = pc.WriteTo(reply, addr)
			}
		}
	}()

	addr := pc.LocalAddr().(*net.UDPAddr)
	return "127.0.0.1", addr.Port, &received, func() { _ = pc.Close() }
}

func TestUDPSessionValidResponse(t *testing.T) {
	valid := mustHex(t, "aa557fc0019a02001002eb")
	host, port, received, stop := startUDPResponder(t, func(int) []byte { return valid })
	defer stop()

	session := NewUDPSession(host, port, time.Second, 3)
	defer session.Close()

	response, err := Execute(context.Background(), session, NewAA55ReadCommand(0, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x10}, response.ResponseData())
	assert.Equal(t, int32(1), atomic.LoadInt32(received))
}

func TestUDPSessionMaxRetriesOnInvalidResponse(t *testing.T) {
	const retries = 2
	host, port, received, stop := startUDPResponder(t, func(int) []byte { return []byte{0x01, 0x02, 0x03} })
	defer stop()

	session := NewUDPSession(host, port, time.Second, retries)
	defer session.Close()

	_, err := Execute(context.Background(), session, NewAA55ReadCommand(0, 1))
	var maxRetries *MaxRetriesError
	require.ErrorAs(t, err, &maxRetries)
	assert.Equal(t, retries, maxRetries.Retries)

	// Exactly retries+1 datagrams were transmitted.
	assert.Equal(t, int32(retries+1), atomic.LoadInt32(received))
}

func TestUDPSessionRetriesThenSucceeds(t *testing.T) {
	valid := mustHex(t, "aa557fc0019a02001002eb")
	host, port, received, stop := startUDPResponder(t, func(attempt int) []byte {
		if attempt < 3 {
			return []byte{0x01, 0x02, 0x03}
		}
		return valid
	})
	defer stop()

	session := NewUDPSession(host, port, time.Second, 3)
	defer session.Close()

	response, err := Execute(context.Background(), session, NewAA55ReadCommand(0, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x10}, response.ResponseData())
	assert.Equal(t, int32(3), atomic.LoadInt32(received))
}

func TestUDPSessionTimeoutExhaustsRetries(t *testing.T) {
	host, port, received, stop := startUDPResponder(t, func(int) []byte { return nil })
	defer stop()

	session := NewUDPSession(host, port, 60*time.Millisecond, 1)
	defer session.Close()

	start := time.Now()
	_, err := session.SendRequest(context.Background(), NewAA55ReadCommand(0, 1))
	var maxRetries *MaxRetriesError
	require.ErrorAs(t, err, &maxRetries)

	// Worst-case latency is timeout x (retries+1).
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(received) == 2 },
		time.Second, 10*time.Millisecond)
}

func TestUDPSessionRejection(t *testing.T) {
	nak := mustHex(t, "aa55f7830220c3")
	host, port, _, stop := startUDPResponder(t, func(int) []byte { return nak })
	defer stop()

	session := NewUDPSession(host, port, time.Second, 3)
	defer session.Close()

	_, err := Execute(context.Background(), session, NewModbusReadCommand(0xF7, 0x0401, 2))
	var rejected *RequestRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "ILLEGAL DATA ADDRESS", rejected.Reason)
}

func TestUDPSessionContextCancelled(t *testing.T) {
	host, port, _, stop := startUDPResponder(t, func(int) []byte { return nil })
	defer stop()

	session := NewUDPSession(host, port, time.Second, 3)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, session, NewAA55ReadCommand(0, 1))
	var failed *RequestFailedError
	require.ErrorAs(t, err, &failed)
}

func TestUDPSessionCloseIsIdempotent(t *testing.T) {
	session := NewUDPSession("127.0.0.1", 8899, time.Second, 3)
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
}
