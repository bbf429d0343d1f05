// Package network models the packet plumbing of a small wired network:
// nodes, point-to-point devices with tail-drop queues, IPv4 addressing and
// global shortest-path routing.
package network

import "errors"

var (
	// ErrAddressSpaceExhausted is returned when an address block has no more
	// networks or hosts to hand out.
	ErrAddressSpaceExhausted = errors.New("address space exhausted")

	// ErrNotAddressed is returned when routing is requested before every
	// device carries an address.
	ErrNotAddressed = errors.New("device has no address")

	// ErrNoRoute is returned when a node cannot find a route to the
	// destination of a locally originated packet.
	ErrNoRoute = errors.New("no route to host")

	// ErrInvalidLink is returned for malformed link descriptions.
	ErrInvalidLink = errors.New("invalid link specification")
)
