// Package tags carries job identity through to code that logs about a single statement.
package tags

import (
	log "github.com/sirupsen/logrus"
)

// LogTags identifies the job and statement a log line belongs to.
type LogTags struct {
	JobPath   string
	JobID     string
	Statement int
}

// Fields renders the tags as logrus fields.
func (t LogTags) Fields() log.Fields {
	return log.Fields{
		"jobPath":   t.JobPath,
		"jid":       t.JobID,
		"statement": t.Statement,
	}
}
