package events

import "time"

// NetworkStart is emitted before a transport dispatches a document.
type NetworkStart struct {
	Transport string
	Target    string
	Document  string
}

// NetworkFinish is emitted after a transport call completes. Status is the
// transport's own status representation (HTTP status code, gRPC code).
type NetworkFinish struct {
	Transport string
	Target    string
	Document  string
	Status    string
	Err       error
	Duration  time.Duration
}
