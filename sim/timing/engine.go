// Package timing provides the discrete-event engine that drives a
// simulation on a single logical timeline.
package timing

import (
	"errors"

	"github.com/sarchlab/tcpgoodput/sim/hooking"
)

// ErrEngineAborted is returned when a handler fails and the engine stops
// before reaching the requested horizon.
var ErrEngineAborted = errors.New("simulation aborted")

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	Now() VTimeInSec
}

// EventScheduler can be used to schedule future events.
type EventScheduler interface {
	TimeTeller

	Schedule(e Event)
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run will process all the events until the simulation finishes.
	Run() error

	// RunUntil processes every event scheduled no later than the horizon and
	// then advances the clock to the horizon. Later events stay queued.
	RunUntil(horizon VTimeInSec) error

	// Reset drops all pending events and rewinds the clock to zero.
	Reset()

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation.
	Continue()
}
