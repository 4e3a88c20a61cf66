package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
)

// LogCapture logs for async testing where we can't get a nice handle on things
func LogCapture(fn func()) string {
	capture := &bytes.Buffer{}
	log.SetOutput(capture)
	fn()
	log.SetOutput(os.Stderr)

	return capture.String()
}

// writePatternFile drops pattern JSON into a temp file and returns the path
func writePatternFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "patterns.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write pattern file: %s", err)
	}

	return path
}

// MockSink implements the Sink interface, for testing
type MockSink struct {
	sync.Mutex

	Published          []*LogEntry
	CloseWasCalled     bool
	PublishShouldError bool
	PublishShouldPanic bool
}

func (s *MockSink) Publish(entry *LogEntry) error {
	s.Lock()
	defer s.Unlock()

	if s.PublishShouldPanic {
		panic("intentional test panic")
	}

	if s.PublishShouldError {
		return errors.New("intentional test error")
	}

	s.Published = append(s.Published, entry)

	return nil
}

func (s *MockSink) Close() error {
	s.Lock()
	defer s.Unlock()

	s.CloseWasCalled = true

	return nil
}

func (s *MockSink) Count() int {
	s.Lock()
	defer s.Unlock()

	return len(s.Published)
}

func (s *MockSink) Last() *LogEntry {
	s.Lock()
	defer s.Unlock()

	if len(s.Published) < 1 {
		return nil
	}

	return s.Published[len(s.Published)-1]
}
