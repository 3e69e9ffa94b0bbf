package notify

import "errors"

// ErrNotFound is returned when a notification record does not exist.
var ErrNotFound = errors.New("notify: record not found")
