package goodwe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// OnDataFunc is a callback type for pushing polled responses.
type OnDataFunc func(*Response)

// OnErrorFunc is a callback type for error reporting.
type OnErrorFunc func(error)

// Poller periodically executes a command on a session and dispatches
// each response to the OnData callback. Requests are issued
// sequentially, so the session's one-in-flight invariant holds.
type Poller struct {
	session  Session
	command  Command
	interval time.Duration
	onData   atomic.Value
	onError  atomic.Value
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller executing cmd on session every interval.
func NewPoller(session Session, cmd Command, interval time.Duration) *Poller {
	return &Poller{
		session:  session,
		command:  cmd,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// SetOnData sets the callback for polled responses.
func (p *Poller) SetOnData(fn OnDataFunc) {
	p.onData.Store(fn)
}

// SetOnError sets the callback for poll errors.
func (p *Poller) SetOnError(fn OnErrorFunc) {
	p.onError.Store(fn)
}

// Start launches the polling goroutine. The first poll runs
// immediately.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		p.poll(ctx)
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

func (p *Poller) poll(ctx context.Context) {
	response, err := Execute(ctx, p.session, p.command)
	if err != nil {
		if cb := p.onError.Load(); cb != nil {
			cb.(OnErrorFunc)(err)
		}
		return
	}
	if cb := p.onData.Load(); cb != nil {
		cb.(OnDataFunc)(response)
	}
}

// Stop terminates polling and waits for the in-flight poll to finish.
// Stopping twice is a no-op.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
