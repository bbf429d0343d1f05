package experiment

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/tcpgoodput/app"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// A Receiver counts the bytes delivered to the receiving end of a flow.
type Receiver interface {
	Name() string
	TotalRx() uint64
}

// A Flow is one sender on a left leaf pushing data to the matching right
// leaf.
type Flow struct {
	Index       int
	StartOffset timing.VTimeInSec
	Port        uint16
	Sender      *app.BulkSender
	Receiver    Receiver
}

// ReceivedBytes returns the bytes the receiver has counted so far.
func (f *Flow) ReceivedBytes() uint64 {
	return f.Receiver.TotalRx()
}

// InstallFlows puts a packet sink on every right leaf and a bulk sender on
// every left leaf. Sinks run for the whole horizon, sender i starts at
// offsets[i]. Flow i uses port BasePort+i.
func InstallFlows(
	engine timing.EventScheduler,
	topo *Topology,
	offsets []timing.VTimeInSec,
	cfg Config,
	horizon timing.VTimeInSec,
) ([]*Flow, error) {
	n := int(cfg.FlowCount)
	if len(offsets) != n || topo.FlowCount() != n {
		return nil, fmt.Errorf("%w: %d flows, %d offsets, %d leaf pairs",
			ErrInvalidConfig, n, len(offsets), topo.FlowCount())
	}

	flows := make([]*Flow, 0, n)

	for i := 0; i < n; i++ {
		if offsets[i] < 0 || offsets[i] >= horizon {
			return nil, fmt.Errorf("%w: start offset %g of flow %d is outside [0, %g)",
				ErrInvalidConfig, offsets[i], i, horizon)
		}

		f, err := installFlow(engine, topo, i, offsets[i], horizon)
		if err != nil {
			return nil, err
		}

		flows = append(flows, f)
	}

	return flows, nil
}

func installFlow(
	engine timing.EventScheduler,
	topo *Topology,
	i int,
	offset, horizon timing.VTimeInSec,
) (*Flow, error) {
	port := BasePort + uint16(i)

	sink := app.NewPacketSink(fmt.Sprintf("Sink%d", i), topo.RightStack(i), port)
	sink.SetStartTime(0)
	sink.SetStopTime(horizon)

	if err := sink.Install(engine); err != nil {
		return nil, err
	}

	sender := app.NewBulkSender(
		fmt.Sprintf("Sender%d", i),
		topo.LeftStack(i),
		netip.AddrPortFrom(topo.RightAddress(i), port),
	)
	sender.SetSendSize(SendChunkBytes)
	sender.SetMaxBytes(0)
	sender.SetStartTime(offset)
	sender.SetStopTime(horizon)

	if err := sender.Install(engine); err != nil {
		return nil, err
	}

	return &Flow{
		Index:       i,
		StartOffset: offset,
		Port:        port,
		Sender:      sender,
		Receiver:    sink,
	}, nil
}
