package network

import (
	"fmt"
	"math"
	"net/netip"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// PopulateRoutingTables computes hop-count shortest paths between all the
// nodes and fills every routing table with a route to each connected network
// and a host route to every remote interface address.
//
// All devices must be addressed first. Tables built earlier are replaced.
func PopulateRoutingTables(nodes []*Node) error {
	err := allDevicesMustBeAddressed(nodes)
	if err != nil {
		return err
	}

	g := buildConnGraph(nodes)

	for _, src := range nodes {
		routes := make([]Route, 0, len(src.devices))
		for _, dev := range src.devices {
			routes = append(routes, Route{Prefix: dev.Prefix().Masked(), Device: dev})
		}

		spTree := path.DijkstraFrom(simple.Node(src.id), g)

		for _, dst := range nodes {
			if dst == src {
				continue
			}

			nodeSeq, _ := spTree.To(dst.id)
			if len(nodeSeq) < 2 {
				continue
			}

			out := src.deviceTo(nodeSeq[1].ID())
			if out == nil {
				return fmt.Errorf("%s has no device towards node %d",
					src.name, nodeSeq[1].ID())
			}

			for _, addr := range dst.Addresses() {
				routes = append(routes, Route{
					Prefix: netip.PrefixFrom(addr, 32),
					Device: out,
				})
			}
		}

		src.setRoutes(routes)
	}

	return nil
}

func allDevicesMustBeAddressed(nodes []*Node) error {
	for _, n := range nodes {
		for _, d := range n.devices {
			if _, ok := d.Address(); !ok {
				return fmt.Errorf("%w: %s", ErrNotAddressed, d.Name())
			}
		}
	}

	return nil
}

// buildConnGraph converts the nodes and links into a graph with every link
// weighted 1, so that shortest paths minimize the number of hops.
func buildConnGraph(nodes []*Node) *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))

	for _, n := range nodes {
		g.AddNode(simple.Node(n.id))
	}

	for _, n := range nodes {
		for _, d := range n.devices {
			if d.peer == nil || d.peer.node == n {
				continue
			}

			g.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(n.id),
				T: simple.Node(d.peer.node.id),
				W: 1.0,
			})
		}
	}

	return g
}
