package arduino

import (
	"errors"
	"sync"

	"github.com/teslashibe/go-itemsense/pkg/actuation"
)

// errMockSend is returned by Mock when a failure is scripted.
var errMockSend = errors.New("arduino: mock send failure")

// Mock implements Actuator for testing.
type Mock struct {
	// SendFunc overrides Send when set.
	SendFunc func(cmd actuation.Command) error

	mu       sync.Mutex
	sent     []actuation.Command
	attempts int
	failures int
	closed   int
}

var _ Actuator = (*Mock)(nil)

// NewMock returns a Mock that accepts every command.
func NewMock() *Mock {
	return &Mock{}
}

// FailNext makes the next n sends fail.
func (m *Mock) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// Send implements Actuator.
func (m *Mock) Send(cmd actuation.Command) error {
	m.mu.Lock()
	m.attempts++
	if m.closed > 0 {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.failures > 0 {
		m.failures--
		m.mu.Unlock()
		return errMockSend
	}
	fn := m.SendFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(cmd); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.sent = append(m.sent, cmd)
	m.mu.Unlock()
	return nil
}

// Close implements Actuator.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Sent returns the successfully sent commands in order.
func (m *Mock) Sent() []actuation.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]actuation.Command, len(m.sent))
	copy(out, m.sent)
	return out
}

// Attempts returns how many times Send was called.
func (m *Mock) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// CloseCount returns how many times Close was called.
func (m *Mock) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
