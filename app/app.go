// Package app provides the traffic applications installed on the hosts: a
// bulk sender that keeps a TCP connection saturated and a sink that counts
// what arrives.
package app

import (
	"fmt"

	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// An Application runs on a node between its start and stop times.
type Application interface {
	Name() string
	SetStartTime(t timing.VTimeInSec)
	SetStopTime(t timing.VTimeInSec)
	Install(engine timing.EventScheduler) error
}

type startEvent struct {
	*timing.EventBase
}

type stopEvent struct {
	*timing.EventBase
}

// appBase keeps the activity window of an application.
type appBase struct {
	name      string
	startTime timing.VTimeInSec
	stopTime  timing.VTimeInSec
	hasStop   bool
	running   bool
}

// Name returns the name of the application.
func (a *appBase) Name() string {
	return a.name
}

// SetStartTime sets when the application starts.
func (a *appBase) SetStartTime(t timing.VTimeInSec) {
	a.startTime = t
}

// SetStopTime sets when the application stops. Without a stop time the
// application runs until the simulation ends.
func (a *appBase) SetStopTime(t timing.VTimeInSec) {
	a.stopTime = t
	a.hasStop = true
}

// StartTime returns when the application starts.
func (a *appBase) StartTime() timing.VTimeInSec {
	return a.startTime
}

// StopTime returns when the application stops.
func (a *appBase) StopTime() timing.VTimeInSec {
	return a.stopTime
}

// IsRunning tells if the application has started and not stopped.
func (a *appBase) IsRunning() bool {
	return a.running
}

func (a *appBase) schedule(
	engine timing.EventScheduler,
	handler timing.Handler,
) error {
	if a.startTime < engine.Now() {
		return fmt.Errorf("%s: start time %.6f is in the past",
			a.name, a.startTime)
	}

	if a.hasStop && a.stopTime < a.startTime {
		return fmt.Errorf("%s: stop time %.6f is before start time %.6f",
			a.name, a.stopTime, a.startTime)
	}

	engine.Schedule(startEvent{timing.NewEventBase(a.startTime, handler)})

	if a.hasStop {
		engine.Schedule(stopEvent{timing.NewEventBase(a.stopTime, handler)})
	}

	return nil
}
