package uart

import (
	"bytes"
	"sync"
	"time"
)

// MockPort is an in-memory TimeoutPorter. Reads block until data is fed,
// the read timeout passes or the port is closed.
type MockPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	in      bytes.Buffer
	out     bytes.Buffer
	timeout time.Duration
	closed  bool

	// ReadError is returned once by the next Read if set.
	ReadError error
	// WriteError is returned by every Write while set.
	WriteError error
}

func NewMockPort() *MockPort {
	m := &MockPort{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Feed makes data available to Read.
func (m *MockPort) Feed(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.in.Write(data)
	m.cond.Broadcast()
}

func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline := time.Now().Add(m.timeout)
	for m.in.Len() == 0 && !m.closed && m.ReadError == nil {
		if m.timeout <= 0 {
			m.cond.Wait()
			continue
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, nil
		}
		t := time.AfterFunc(wait, func() {
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		m.cond.Wait()
		t.Stop()
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, err
	}
	if m.in.Len() == 0 && m.closed {
		return 0, ErrClosed
	}
	return m.in.Read(p)
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	return m.out.Write(p)
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

func (m *MockPort) SetReadTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
	return nil
}

// Written returns a copy of everything written to the port.
func (m *MockPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.out.Bytes())
}

func (m *MockPort) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
