package network

import "fmt"

// Connect joins two nodes with a point-to-point link and returns the device
// created on each side. Every device gets its own queue built from the
// queue configuration.
func Connect(
	a, b *Node,
	spec LinkSpec,
	queue QueueConfig,
) (*Device, *Device) {
	if a.engine != b.engine {
		panic("cannot connect nodes driven by different engines")
	}

	devA := newDevice(a, spec, queue)
	devB := newDevice(b, spec, queue)
	devA.peer = devB
	devB.peer = devA

	return devA, devB
}

func newDevice(n *Node, spec LinkSpec, queue QueueConfig) *Device {
	name := fmt.Sprintf("%s.Dev%d", n.name, len(n.devices))
	d := &Device{
		name:   name,
		node:   n,
		spec:   spec,
		engine: n.engine,
		queue:  NewDropTailQueue(name+".Queue", queue),
	}
	n.devices = append(n.devices, d)

	return d
}
