package logger

import (
	"fmt"
	"strings"
	"sync"
)

// MemLogger keeps every line in memory, so tests can check what got logged.
// Safe for use from several goroutines.
type MemLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *MemLogger) Printf(level LogLevel, format string, a ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLevelPrefix[level]+": "+fmt.Sprintf(format, a...))
}

func (l *MemLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}

func (l *MemLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}

func (l *MemLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

func (l *MemLogger) SetLogLevel(level LogLevel) {}

func (l *MemLogger) GetLogLevel() LogLevel { return LogDebug }

func (l *MemLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether any logged line contains `substr`.
func (l *MemLogger) Contains(substr string) bool {
	for _, line := range l.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
