package testutil

import (
	"errors"
	"io"
	"sync"
	"time"
)

// FakeConn is an in-memory websocket transport. ReadMessage blocks until
// Close; writes are discarded.
type FakeConn struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewFakeConn() *FakeConn {
	return &FakeConn{done: make(chan struct{})}
}

func (f *FakeConn) ReadMessage() (int, []byte, error) {
	<-f.done
	return 0, nil, errors.New("use of closed connection")
}

func (f *FakeConn) WriteMessage(int, []byte) error         { return nil }
func (f *FakeConn) NextWriter(int) (io.WriteCloser, error) { return nopWriteCloser{io.Discard}, nil }
func (f *FakeConn) SetReadLimit(int64)                     {}
func (f *FakeConn) SetReadDeadline(time.Time) error        { return nil }
func (f *FakeConn) SetWriteDeadline(time.Time) error       { return nil }
func (f *FakeConn) SetPongHandler(func(string) error)      {}

func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

// IsClosed reports whether Close was called.
func (f *FakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
