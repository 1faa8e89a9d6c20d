package utils

import (
	"fmt"
	"time"
)

func CurrentTimeInMicro() int64 {
	return time.Now().UnixNano() / int64(time.Microsecond)
}

// Max of two int
func Max(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// Retry function f sleep time between attempts
func Retry(f func() error, attempts int, sleep time.Duration) error {
	var err error
	for i := 0; ; i++ {
		err = f()
		if err == nil {
			return nil
		}
		if i >= attempts-1 {
			break
		}

		// linear backoff
		time.Sleep(sleep * time.Duration(i+1))
	}
	return fmt.Errorf("after %d attempts, last error: %w", attempts, err)
}
