package events

import "time"

// SendStart is emitted before a document is executed.
type SendStart struct {
	Document string
	Kind     string
	Policy   string
}

// SendFinish is emitted after a document execution completes.
type SendFinish struct {
	Document string
	Kind     string
	Source   string
	Partial  bool
	Errors   int
	Err      error
	Duration time.Duration
}
