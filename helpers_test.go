package querycache

import "sync/atomic"

// testLogger counts debug messages
type testLogger struct {
	debugCount int64
}

func (l *testLogger) Debug(msg string, args ...any) { atomic.AddInt64(&l.debugCount, 1) }
func (l *testLogger) Info(msg string, args ...any)  {}
func (l *testLogger) Warn(msg string, args ...any)  {}
func (l *testLogger) Error(msg string, args ...any) {}

func (l *testLogger) debugs() int64 {
	return atomic.LoadInt64(&l.debugCount)
}

// testMarshaller is a simple marshaller implementation for testing
type testMarshaller struct{}

func (m *testMarshaller) Marshal(v any) ([]byte, error) {
	return []byte("test"), nil
}

func (m *testMarshaller) Unmarshal(data []byte, v any) error {
	return nil
}
