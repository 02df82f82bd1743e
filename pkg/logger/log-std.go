package logger

import (
	"fmt"
	"log"
)

// StdLogger writes through the standard library's log package.
type StdLogger struct {
	logLevel LogLevel
}

func NewStdLogger(level LogLevel) *StdLogger {
	return &StdLogger{logLevel: level}
}

func (l *StdLogger) Printf(level LogLevel, format string, a ...interface{}) {
	if level < l.logLevel {
		return
	}
	log.Println(logLevelPrefix[level] + ": " + fmt.Sprintf(format, a...))
}
func (l *StdLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}
func (l *StdLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}
func (l *StdLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

func (l *StdLogger) SetLogLevel(level LogLevel) {
	l.logLevel = level
}
func (l *StdLogger) GetLogLevel() LogLevel {
	return l.logLevel
}
