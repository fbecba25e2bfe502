package testutils

import "sync"

// TestingT is a minimal interface that matches the methods we need from testing.T
type TestingT interface {
	Errorf(format string, args ...any)
}

// FieldsToMap safely converts a slice of alternating key-value pairs to a map.
// It performs safe type assertions and handles malformed entries gracefully.
// This is commonly used in logging tests to validate structured log fields.
func FieldsToMap(t TestingT, fields []any) map[string]any {
	fieldsMap := make(map[string]any)

	for i := 0; i < len(fields); i += 2 {
		// Ensure we have both key and value
		if i+1 >= len(fields) {
			t.Errorf("Malformed fields slice: missing value for key at index %d", i)
			continue
		}

		// Safe type assertion for the key
		key, ok := fields[i].(string)
		if !ok {
			t.Errorf("Malformed fields slice: key at index %d is not a string, got %T", i, fields[i])
			continue
		}

		// Store the key-value pair
		fieldsMap[key] = fields[i+1]
	}

	return fieldsMap
}

// LogRecord is one captured log call.
type LogRecord struct {
	Level   string
	Message string
	Fields  []any
}

// CaptureLogger records log calls for assertions. Safe for concurrent use.
type CaptureLogger struct {
	mu      sync.Mutex
	records []LogRecord
}

// NewCaptureLogger creates an empty capture logger.
func NewCaptureLogger() *CaptureLogger {
	return &CaptureLogger{}
}

func (c *CaptureLogger) log(level, msg string, fields []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, LogRecord{Level: level, Message: msg, Fields: fields})
}

func (c *CaptureLogger) Debug(msg string, fields ...any) { c.log("DEBUG", msg, fields) }
func (c *CaptureLogger) Info(msg string, fields ...any)  { c.log("INFO", msg, fields) }
func (c *CaptureLogger) Warn(msg string, fields ...any)  { c.log("WARN", msg, fields) }
func (c *CaptureLogger) Error(msg string, fields ...any) { c.log("ERROR", msg, fields) }

// Records returns a snapshot of all captured log calls.
func (c *CaptureLogger) Records() []LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogRecord, len(c.records))
	copy(out, c.records)
	return out
}

// MessagesAt returns the messages logged at the given level.
func (c *CaptureLogger) MessagesAt(level string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, r := range c.records {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}
