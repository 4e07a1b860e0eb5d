package test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// TestLogger forwards log lines to testing.T so they show up with -v.
type TestLogger struct {
	mtx sync.Mutex
	T   *testing.T
}

func (t *TestLogger) Debug(msg string, keyvals ...interface{}) {
	t.log("DEBUG", msg, keyvals)
}

func (t *TestLogger) Info(msg string, keyvals ...interface{}) {
	t.log("INFO ", msg, keyvals)
}

func (t *TestLogger) Error(msg string, keyvals ...interface{}) {
	t.log("ERROR", msg, keyvals)
}

func (t *TestLogger) log(level, msg string, keyvals []interface{}) {
	t.T.Helper()
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.T.Log(append([]interface{}{level + ": " + msg}, keyvals...)...)
}

// MockLogger records log lines so tests can assert on them.
type MockLogger struct {
	mtx                             sync.Mutex
	DebugLines, InfoLines, ErrLines []string
}

func (t *MockLogger) Debug(msg string, keyvals ...interface{}) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.DebugLines = append(t.DebugLines, format(msg, keyvals))
}

func (t *MockLogger) Info(msg string, keyvals ...interface{}) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.InfoLines = append(t.InfoLines, format(msg, keyvals))
}

func (t *MockLogger) Error(msg string, keyvals ...interface{}) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.ErrLines = append(t.ErrLines, format(msg, keyvals))
}

// Contains reports whether any recorded line, at any level, contains substr.
func (t *MockLogger) Contains(substr string) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for _, lines := range [][]string{t.DebugLines, t.InfoLines, t.ErrLines} {
		for _, l := range lines {
			if strings.Contains(l, substr) {
				return true
			}
		}
	}
	return false
}

func format(msg string, keyvals []interface{}) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", keyvals[i], keyvals[i+1])
	}
	return sb.String()
}
