// Package log configures the process-wide logrus logger used by every jobtree package.
package log

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jobtree/jobtree/common/log/hooks"
)

// Init sets the global logrus level and formatter.
// An unparseable level falls back to info and is reported as an error.
func Init(level string, json bool) error {
	if json {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetOutput(os.Stderr)
	logrus.AddHook(hooks.NewContextHook())

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.SetLevel(logrus.InfoLevel)
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// AddHook installs hook on the standard logger.
func AddHook(hook logrus.Hook) {
	logrus.AddHook(hook)
}
