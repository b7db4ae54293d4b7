// Package clock adapts wall-clock time and the timer service to the
// elections core's Clock and TimerPort ports.
package clock

import (
	"time"

	"github.com/matsnd/eventstore/pkg/elections"
)

// Real is elections.Clock backed by the system clock.
type Real struct{}

func (Real) UTCNow() time.Time { return time.Now().UTC() }

// TimerService is elections.TimerPort backed by time.AfterFunc. Delivery
// is handed to sink, which must forward onto the same dispatcher that
// drives the coordinator's Handle — the coordinator itself never calls
// back into a TimerPort on the delivery goroutine.
type TimerService struct {
	sink func(elections.Message)
}

// NewTimerService returns a TimerService that calls sink for every fired
// envelope, on its own goroutine.
func NewTimerService(sink func(elections.Message)) *TimerService {
	return &TimerService{sink: sink}
}

func (t *TimerService) Schedule(delay time.Duration, msg elections.Message) {
	time.AfterFunc(delay, func() {
		t.sink(msg)
	})
}
