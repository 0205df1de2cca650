package governor

import "time"

// Opts carries the tunable parameters of the control loop. The active
// value is swapped atomically so a running loop picks up changes on its
// next tick.
type Opts struct {
	SamplePeriod time.Duration
	TopBusyCores int
}
