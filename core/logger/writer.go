package logger

import (
	"errors"
	"io"
	"sync"
)

// sinkEntry is either a log line or a flush barrier.
type sinkEntry struct {
	line []byte
	ack  chan struct{}
}

// sink copies log lines to its outputs from a single goroutine so slow
// files never stall handlers.
type sink struct {
	entries chan sinkEntry
	done    chan struct{}
	outputs []io.Writer

	closeOnce sync.Once
	mu        sync.Mutex // guards closed and sends on entries
	closed    bool

	errMu sync.Mutex
	err   error
}

func newSink(outputs []io.Writer, queue int) *sink {
	if queue <= 0 {
		queue = 1024
	}
	s := &sink{
		entries: make(chan sinkEntry, queue),
		done:    make(chan struct{}),
	}
	for _, w := range outputs {
		if w != nil {
			s.outputs = append(s.outputs, w)
		}
	}
	go s.run()
	return s
}

func (s *sink) run() {
	defer close(s.done)
	for e := range s.entries {
		if e.ack != nil {
			close(e.ack)
			continue
		}
		for _, w := range s.outputs {
			if _, err := w.Write(e.line); err != nil {
				s.fail(err)
			}
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full.
func (s *sink) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := s.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	s.entries <- sinkEntry{line: append([]byte(nil), p...)}
	return nil
}

// Flush returns once every line queued before the call has been written.
func (s *sink) Flush() error {
	ack := make(chan struct{})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.Err()
	}
	s.entries <- sinkEntry{ack: ack}
	s.mu.Unlock()
	<-ack
	return s.Err()
}

// Close drains the queue and returns the first write error.
func (s *sink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.entries)
		s.mu.Unlock()
	})
	<-s.done
	return s.Err()
}

// Err returns the first write error seen by the sink.
func (s *sink) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *sink) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

var errSinkClosed = errors.New("logger: sink closed")
