// Package metrics defines the recorder contract the gateway reports through
// and ships noop and prometheus implementations.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
