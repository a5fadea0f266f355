package shell

import (
	"time"
)

// Event records one statement's lifecycle. A start event carries the pid and start time;
// the matching end event repeats them and adds the end time, return code and output.
type Event struct {
	Index      int        `json:"index"`
	Statement  string     `json:"statement"`
	Pid        int        `json:"pid"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	ReturnCode *int       `json:"returncode,omitempty"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// IsEnd reports whether the event marks a finished statement.
func (e Event) IsEnd() bool {
	return e.ReturnCode != nil
}

func (e Event) ended(at time.Time, code int) Event {
	e.EndTime = &at
	e.ReturnCode = &code
	return e
}
