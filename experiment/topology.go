package experiment

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/timing"
	"github.com/sarchlab/tcpgoodput/tcp"
)

// An AddressBlock numbers one group of links with consecutive networks.
type AddressBlock struct {
	Block    netip.Prefix
	First    netip.Addr
	MaskBits int
}

func (b AddressBlock) helper() (*network.AddressHelper, error) {
	h, err := network.NewAddressHelper(b.Block, b.First, b.MaskBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return h, nil
}

// An AddressPlan tells which block each side of the dumbbell draws its
// addresses from.
type AddressPlan struct {
	Left   AddressBlock
	Right  AddressBlock
	Router AddressBlock
}

// DefaultAddressPlan gives one /24 per link: 10.1.x.0 on the left,
// 10.2.x.0 on the right and 10.3.x.0 between the routers, x starting at 1.
func DefaultAddressPlan() AddressPlan {
	return AddressPlan{
		Left: AddressBlock{
			Block:    netip.MustParsePrefix("10.1.0.0/16"),
			First:    netip.MustParseAddr("10.1.1.0"),
			MaskBits: 24,
		},
		Right: AddressBlock{
			Block:    netip.MustParsePrefix("10.2.0.0/16"),
			First:    netip.MustParseAddr("10.2.1.0"),
			MaskBits: 24,
		},
		Router: AddressBlock{
			Block:    netip.MustParsePrefix("10.3.0.0/16"),
			First:    netip.MustParseAddr("10.3.1.0"),
			MaskBits: 24,
		},
	}
}

// Validate rejects plans whose blocks overlap.
func (p AddressPlan) Validate() error {
	blocks := []AddressBlock{p.Left, p.Right, p.Router}
	for i := range blocks {
		for j := i + 1; j < len(blocks); j++ {
			if blocks[i].Block.Overlaps(blocks[j].Block) {
				return fmt.Errorf("%w: address blocks %s and %s overlap",
					ErrInvalidConfig, blocks[i].Block, blocks[j].Block)
			}
		}
	}

	return nil
}

// A Topology is a dumbbell: two routers joined by the core link, with the
// same number of leaves on each side.
type Topology struct {
	LeftRouter  *network.Node
	RightRouter *network.Node
	LeftLeaves  []*network.Node
	RightLeaves []*network.Node

	nodes  []*network.Node
	stacks []*tcp.Stack
}

// BuildDumbbell creates the nodes and links of a dumbbell, installs a TCP
// stack on every node and numbers every interface. Routers get ids 0 and 1,
// left leaves follow, then right leaves.
func BuildDumbbell(
	engine timing.EventScheduler,
	flowCount uint32,
	leaf, core network.LinkSpec,
	defaults TransportDefaults,
	plan AddressPlan,
) (*Topology, error) {
	if flowCount == 0 {
		return nil, fmt.Errorf("%w: at least one flow is required",
			ErrInvalidConfig)
	}

	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	t := &Topology{}
	t.createNodes(engine, int(flowCount))
	t.connect(leaf, core, defaults.QueueConfig())
	t.installStacks(defaults.TCPConfig())

	if err := t.assignAddresses(plan); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Topology) createNodes(engine timing.EventScheduler, n int) {
	var nextID int64

	newNode := func(name string) *network.Node {
		node := network.NewNode(nextID, name, engine)
		nextID++
		t.nodes = append(t.nodes, node)

		return node
	}

	t.LeftRouter = newNode("LeftRouter")
	t.RightRouter = newNode("RightRouter")

	for i := 0; i < n; i++ {
		t.LeftLeaves = append(t.LeftLeaves, newNode(fmt.Sprintf("Left%d", i)))
	}

	for i := 0; i < n; i++ {
		t.RightLeaves = append(t.RightLeaves, newNode(fmt.Sprintf("Right%d", i)))
	}
}

// connect builds the core link first so that it is device 0 of both
// routers.
func (t *Topology) connect(
	leaf, core network.LinkSpec,
	queue network.QueueConfig,
) {
	network.Connect(t.LeftRouter, t.RightRouter, core, queue)

	for _, l := range t.LeftLeaves {
		network.Connect(l, t.LeftRouter, leaf, queue)
	}

	for _, r := range t.RightLeaves {
		network.Connect(r, t.RightRouter, leaf, queue)
	}
}

func (t *Topology) installStacks(cfg tcp.Config) {
	for _, n := range t.nodes {
		t.stacks = append(t.stacks, tcp.Install(n, cfg))
	}
}

func (t *Topology) assignAddresses(plan AddressPlan) error {
	routerIP, err := plan.Router.helper()
	if err != nil {
		return err
	}

	err = routerIP.Assign(t.LeftRouter.Device(0), t.RightRouter.Device(0))
	if err != nil {
		return err
	}

	leftIP, err := plan.Left.helper()
	if err != nil {
		return err
	}

	if err := numberLeafLinks(leftIP, t.LeftLeaves, t.LeftRouter); err != nil {
		return err
	}

	rightIP, err := plan.Right.helper()
	if err != nil {
		return err
	}

	return numberLeafLinks(rightIP, t.RightLeaves, t.RightRouter)
}

// numberLeafLinks gives leaf i address .1 and the router side .2 of the
// i-th network of the helper.
func numberLeafLinks(
	h *network.AddressHelper,
	leaves []*network.Node,
	router *network.Node,
) error {
	for i, l := range leaves {
		err := h.Assign(l.Device(0), router.Device(i+1))
		if err != nil {
			return err
		}

		h.NewNetwork()
	}

	return nil
}

// FlowCount returns the number of leaves on each side.
func (t *Topology) FlowCount() int {
	return len(t.LeftLeaves)
}

// Nodes returns every node ordered by id.
func (t *Topology) Nodes() []*network.Node {
	return t.nodes
}

// Stacks returns the TCP stack of every node, in the order of Nodes.
func (t *Topology) Stacks() []*tcp.Stack {
	return t.stacks
}

// Devices returns every device of every node, in the order of Nodes.
func (t *Topology) Devices() []*network.Device {
	var devs []*network.Device
	for _, n := range t.nodes {
		devs = append(devs, n.Devices()...)
	}

	return devs
}

// Bottleneck returns the device that sends from the left router onto the
// core link.
func (t *Topology) Bottleneck() *network.Device {
	return t.LeftRouter.Device(0)
}

// LeftStack returns the stack of left leaf i.
func (t *Topology) LeftStack(i int) *tcp.Stack {
	return t.stacks[2+i]
}

// RightStack returns the stack of right leaf i.
func (t *Topology) RightStack(i int) *tcp.Stack {
	return t.stacks[2+len(t.LeftLeaves)+i]
}

// LeftAddress returns the interface address of left leaf i.
func (t *Topology) LeftAddress(i int) netip.Addr {
	return leafAddress(t.LeftLeaves[i])
}

// RightAddress returns the interface address of right leaf i.
func (t *Topology) RightAddress(i int) netip.Addr {
	return leafAddress(t.RightLeaves[i])
}

func leafAddress(n *network.Node) netip.Addr {
	addr, ok := n.Device(0).Address()
	if !ok {
		panic(fmt.Sprintf("%s is not addressed", n.Name()))
	}

	return addr
}
