package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerSkipPrefixes lists function name fragments that never count as the
// real call site of a log line.
var callerSkipPrefixes = []string{"sirupsen/logrus", "fundingflow/logger"}

// callerHook points entry.Caller at the first frame outside logrus and the
// Log/Entry wrappers in this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isWrapperFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isWrapperFrame(fn string) bool {
	for _, prefix := range callerSkipPrefixes {
		if strings.Contains(fn, prefix) {
			return true
		}
	}
	return false
}
