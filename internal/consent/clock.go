package consent

import "time"

// Clock abstracts time so expiry behavior is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Now returns the current time.
func (realClock) Now() time.Time {
	return time.Now()
}
