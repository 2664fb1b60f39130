// Package testutil provides test doubles shared across packages.
package testutil

import (
	"sync"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
)

// Entry is one call captured by MockLogger.  Fields include those attached
// with With.
type Entry struct {
	Level   string
	Logger  string
	Message string
	Fields  []logging.Field
}

// field returns the value of key, if present.
func (e Entry) field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// sink is the entry buffer shared by a MockLogger and its children.
type sink struct {
	mu      sync.Mutex
	entries []Entry
}

// MockLogger records every entry for later assertions.  Children from With
// and Named write to the same buffer.
type MockLogger struct {
	sink   *sink
	name   string
	fields []logging.Field
}

var _ logging.Logger = (*MockLogger)(nil)

// NewMockLogger returns an empty recorder.
func NewMockLogger() *MockLogger {
	return &MockLogger{sink: &sink{}}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.fields)+len(fields))
	all = append(append(all, m.fields...), fields...)
	m.sink.mu.Lock()
	m.sink.entries = append(m.sink.entries, Entry{Level: level, Logger: m.name, Message: msg, Fields: all})
	m.sink.mu.Unlock()
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }
func (m *MockLogger) Sync() error                               { return nil }

func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	child := *m
	child.fields = append(append([]logging.Field(nil), m.fields...), fields...)
	return &child
}

func (m *MockLogger) Named(name string) logging.Logger {
	child := *m
	if m.name == "" {
		child.name = name
	} else {
		child.name = m.name + "." + name
	}
	return &child
}

// Entries returns a copy of everything logged so far.
func (m *MockLogger) Entries() []Entry {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	return append([]Entry(nil), m.sink.entries...)
}

// Count returns the number of entries at level.
func (m *MockLogger) Count(level string) int {
	n := 0
	for _, e := range m.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Reset drops all entries.
func (m *MockLogger) Reset() {
	m.sink.mu.Lock()
	m.sink.entries = nil
	m.sink.mu.Unlock()
}

// HasMessage reports whether msg was logged at level.
func (m *MockLogger) HasMessage(level, msg string) bool {
	for _, e := range m.Entries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// Field returns the value of key on the first entry with message msg.
func (m *MockLogger) Field(msg, key string) (interface{}, bool) {
	for _, e := range m.Entries() {
		if e.Message != msg {
			continue
		}
		if v, ok := e.field(key); ok {
			return v, true
		}
	}
	return nil, false
}
