package services

import "time"

// Clock supplies the current time. Tests inject a controllable one.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func orSystemClock(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}
