package testutil

import (
	"context"
	"sync"
)

// Persisted is one recorded Persist call.
type Persisted struct {
	Name string
	Data []byte
}

// RecordingSink records every Persist call in completion order.
type RecordingSink struct {
	mu    sync.Mutex
	calls []Persisted
	files map[string][]byte

	// Err, when set, is returned by Persist for the named item.
	Err map[string]error
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{files: make(map[string][]byte)}
}

// Persist records data under name, replacing earlier content.
func (s *RecordingSink) Persist(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.Err[name]; ok {
		return err
	}

	buf := append([]byte(nil), data...)
	s.calls = append(s.calls, Persisted{Name: name, Data: buf})
	s.files[name] = buf
	return nil
}

// Calls returns the recorded calls in completion order.
func (s *RecordingSink) Calls() []Persisted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Persisted(nil), s.calls...)
}

// Files returns the final content per name.
func (s *RecordingSink) Files() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]byte, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out
}
