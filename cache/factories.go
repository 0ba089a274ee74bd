package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// Debug logs a debug message (no-op).
func (n *NoOpLogger) Debug(msg string, args ...any) {}

// Info logs an info message (no-op).
func (n *NoOpLogger) Info(msg string, args ...any) {}

// Warn logs a warning message (no-op).
func (n *NoOpLogger) Warn(msg string, args ...any) {}

// Error logs an error message (no-op).
func (n *NoOpLogger) Error(msg string, args ...any) {}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// ConsoleLogger writes leveled lines to stdout.
type ConsoleLogger struct {
	prefix string
}

func (cl *ConsoleLogger) log(level, msg string, args []any) {
	line := fmt.Sprintf("[%s] %s: %s", level, cl.prefix, msg)
	if len(args) > 0 {
		line += fmt.Sprintf(" %v", args)
	}
	fmt.Println(line)
}

// Debug logs a debug message to console.
func (cl *ConsoleLogger) Debug(msg string, args ...any) { cl.log("DEBUG", msg, args) }

// Info logs an info message to console.
func (cl *ConsoleLogger) Info(msg string, args ...any) { cl.log("INFO", msg, args) }

// Warn logs a warning message to console.
func (cl *ConsoleLogger) Warn(msg string, args ...any) { cl.log("WARN", msg, args) }

// Error logs an error message to console.
func (cl *ConsoleLogger) Error(msg string, args ...any) { cl.log("ERROR", msg, args) }

// NewConsoleLogger creates a new console logger.
func NewConsoleLogger(prefix string) Logger {
	return &ConsoleLogger{prefix: prefix}
}

// GlogLogger forwards to github.com/golang/glog. Debug lines are written at
// verbosity 1 so they only show with -v=1 or higher.
type GlogLogger struct {
	prefix string
}

// NewGlogLogger creates a logger backed by glog.
func NewGlogLogger(prefix string) Logger {
	return &GlogLogger{prefix: prefix}
}

func (gl *GlogLogger) format(msg string, args []any) string {
	if len(args) == 0 {
		return gl.prefix + ": " + msg
	}
	return fmt.Sprintf("%s: %s %v", gl.prefix, msg, args)
}

// Debug logs a debug message at verbosity 1.
func (gl *GlogLogger) Debug(msg string, args ...any) {
	if glog.V(1) {
		glog.InfoDepth(1, gl.format(msg, args))
	}
}

// Info logs an info message.
func (gl *GlogLogger) Info(msg string, args ...any) {
	glog.InfoDepth(1, gl.format(msg, args))
}

// Warn logs a warning message.
func (gl *GlogLogger) Warn(msg string, args ...any) {
	glog.WarningDepth(1, gl.format(msg, args))
}

// Error logs an error message.
func (gl *GlogLogger) Error(msg string, args ...any) {
	glog.ErrorDepth(1, gl.format(msg, args))
}

// JSONMarshaller is a marshaller that uses the standard JSON library.
type JSONMarshaller struct{}

// Marshal serializes a value to JSON.
func (jm *JSONMarshaller) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes a value from JSON.
func (jm *JSONMarshaller) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewJSONMarshaller creates a new JSON marshaller.
func NewJSONMarshaller() Marshaller {
	return &JSONMarshaller{}
}

// MapCacheFactory creates retention stores that never evict.
type MapCacheFactory struct{}

// NewMapCacheFactory creates a new map cache factory.
func NewMapCacheFactory() LocalCacheFactory {
	return &MapCacheFactory{}
}

// Create creates a new map cache instance.
func (mcf *MapCacheFactory) Create() (LocalCache, error) {
	return NewMapCache(), nil
}

// MapCache keeps every inactive entry until it is deleted or cleared.
type MapCache struct {
	mu     sync.RWMutex
	items  map[string]any
	hits   int64
	misses int64
}

// NewMapCache creates an empty map cache.
func NewMapCache() *MapCache {
	return &MapCache{items: make(map[string]any)}
}

// Get retrieves a value from the map.
func (mc *MapCache) Get(key string) (any, bool) {
	mc.mu.RLock()
	value, found := mc.items[key]
	mc.mu.RUnlock()
	if found {
		atomic.AddInt64(&mc.hits, 1)
	} else {
		atomic.AddInt64(&mc.misses, 1)
	}
	return value, found
}

// Set stores a value in the map. Cost is ignored.
func (mc *MapCache) Set(key string, value any, cost int64) bool {
	mc.mu.Lock()
	mc.items[key] = value
	mc.mu.Unlock()
	return true
}

// Delete removes a value from the map.
func (mc *MapCache) Delete(key string) {
	mc.mu.Lock()
	delete(mc.items, key)
	mc.mu.Unlock()
}

// Clear removes all values from the map.
func (mc *MapCache) Clear() {
	mc.mu.Lock()
	clear(mc.items)
	mc.mu.Unlock()
}

// Close clears the map.
func (mc *MapCache) Close() {
	mc.Clear()
}

// Metrics returns cache metrics.
func (mc *MapCache) Metrics() LocalCacheMetrics {
	mc.mu.RLock()
	size := int64(len(mc.items))
	mc.mu.RUnlock()
	return LocalCacheMetrics{
		Hits:   atomic.LoadInt64(&mc.hits),
		Misses: atomic.LoadInt64(&mc.misses),
		Size:   size,
	}
}
