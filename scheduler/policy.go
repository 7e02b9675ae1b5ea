package scheduler

import (
	"errors"
	"fmt"
)

// ErrSensorFailed wraps the last sensor error once a policy gives up.
var ErrSensorFailed = errors.New("scheduler: sensor failed")

// SensorPolicy decides what a failed sensor read costs. The read is tried
// 1+Retries times inside the same tick. When all attempts fail Escalate gets
// the last error: nil skips the sample, an error stops the scheduler.
type SensorPolicy struct {
	Retries  int
	Escalate func(err error) error
}

func escalate(err error) error {
	return fmt.Errorf("%w: %w", ErrSensorFailed, err)
}

// EscalatePolicy stops on the first failure.
func EscalatePolicy() SensorPolicy {
	return RetryPolicy(0)
}

// RetryPolicy retries n times, then stops.
func RetryPolicy(n int) SensorPolicy {
	return SensorPolicy{Retries: n, Escalate: escalate}
}

// SkipPolicy retries n times, then drops the sample and carries on.
func SkipPolicy(n int) SensorPolicy {
	return SensorPolicy{Retries: n, Escalate: func(error) error { return nil }}
}
