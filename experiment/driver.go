package experiment

import (
	"fmt"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// A SimulationEngine runs the events of an experiment up to a horizon.
type SimulationEngine interface {
	hooking.Hookable
	timing.EventScheduler

	RunUntil(horizon timing.VTimeInSec) error
	Reset()
}

// ResolveRoutes fills the routing table of every node with shortest paths
// to every interface of the dumbbell.
func ResolveRoutes(topo *Topology) error {
	err := network.PopulateRoutingTables(topo.Nodes())
	if err != nil {
		return fmt.Errorf("resolving routes: %w", err)
	}

	return nil
}

// A RunDriver runs an engine to the horizon and then tears it down.
type RunDriver struct {
	Engine  SimulationEngine
	Horizon timing.VTimeInSec
}

// Run blocks until every event up to the horizon has been processed. The
// engine is reset afterwards, even when a handler failed.
func (d RunDriver) Run() error {
	defer d.Engine.Reset()

	err := d.Engine.RunUntil(d.Horizon)
	if err != nil {
		return fmt.Errorf("running to %g s: %w", d.Horizon, err)
	}

	return nil
}
