package hooks

import (
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// contextHook adds the file:line of the logging call site to debug and trace entries.
type contextHook struct {
}

func NewContextHook() contextHook {
	return contextHook{}
}

func (hook contextHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.DebugLevel, logrus.TraceLevel}
}

func (hook contextHook) Fire(entry *logrus.Entry) error {
	if entry.HasCaller() {
		entry.Data["file:line"] = trimPath(entry.Caller.File)
		return nil
	}
	stack := debug.Stack()
	lines := strings.Split(string(stack), "\n")
	foundLoggerBlock := false
	for i := 0; i < len(lines); i++ {
		if strings.Contains(lines[i], "sirupsen/logrus") {
			foundLoggerBlock = true
			continue
		}
		if !foundLoggerBlock || !strings.HasPrefix(lines[i], "\t") {
			continue
		}
		entry.Data["file:line"] = trimPath(strings.TrimSpace(lines[i]))
		break
	}
	return nil
}

func trimPath(s string) string {
	parts := strings.Split(s, "jobtree/")
	s = parts[len(parts)-1]
	if i := strings.Index(s, " +0x"); i >= 0 {
		s = s[:i]
	}
	return s
}
