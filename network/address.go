package network

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// An AddressHelper hands out IPv4 addresses network by network, the way an
// operator would number a set of point-to-point links. All networks it
// creates stay inside its block.
type AddressHelper struct {
	block     netip.Prefix
	network   uint32
	maskBits  int
	nextHost  uint32
	exhausted bool
}

// NewAddressHelper creates a helper that starts at firstNetwork, numbers
// networks of the given mask length, and never leaves block.
func NewAddressHelper(
	block netip.Prefix,
	firstNetwork netip.Addr,
	maskBits int,
) (*AddressHelper, error) {
	if !firstNetwork.Is4() || !block.Addr().Is4() {
		return nil, fmt.Errorf("only IPv4 addressing is supported")
	}

	if maskBits < block.Bits() || maskBits > 30 {
		return nil, fmt.Errorf("mask /%d does not fit in block %s",
			maskBits, block)
	}

	first := netip.PrefixFrom(firstNetwork, maskBits)
	if first.Masked().Addr() != firstNetwork {
		return nil, fmt.Errorf("%s is not a /%d network address",
			firstNetwork, maskBits)
	}

	if !block.Contains(firstNetwork) {
		return nil, fmt.Errorf("%s is outside of block %s", firstNetwork, block)
	}

	return &AddressHelper{
		block:    block.Masked(),
		network:  toUint32(firstNetwork),
		maskBits: maskBits,
		nextHost: 1,
	}, nil
}

// MustNewAddressHelper is NewAddressHelper for literal blocks.
func MustNewAddressHelper(block, firstNetwork string, maskBits int) *AddressHelper {
	h, err := NewAddressHelper(
		netip.MustParsePrefix(block),
		netip.MustParseAddr(firstNetwork),
		maskBits,
	)
	if err != nil {
		panic(err)
	}

	return h
}

// Block returns the prefix the helper allocates from.
func (h *AddressHelper) Block() netip.Prefix {
	return h.block
}

// Assign gives each device the next host address of the current network.
func (h *AddressHelper) Assign(devs ...*Device) error {
	for _, d := range devs {
		addr, err := h.nextAddress()
		if err != nil {
			return fmt.Errorf("assigning %s: %w", d.Name(), err)
		}

		d.SetAddress(netip.PrefixFrom(addr, h.maskBits))
	}

	return nil
}

func (h *AddressHelper) nextAddress() (netip.Addr, error) {
	if h.exhausted {
		return netip.Addr{}, fmt.Errorf("%w: no network left in %s",
			ErrAddressSpaceExhausted, h.block)
	}

	hostBits := 32 - h.maskBits
	broadcast := uint32(1)<<hostBits - 1
	if h.nextHost >= broadcast {
		return netip.Addr{}, fmt.Errorf("%w: no host left in %s",
			ErrAddressSpaceExhausted, h.currentNetwork())
	}

	addr := fromUint32(h.network + h.nextHost)
	h.nextHost++

	return addr, nil
}

// NewNetwork moves on to the next network. Running out of networks is
// reported by the next Assign.
func (h *AddressHelper) NewNetwork() {
	if h.exhausted {
		return
	}

	step := uint32(1) << (32 - h.maskBits)
	next := h.network + step

	if next < h.network || !h.block.Contains(fromUint32(next)) {
		h.exhausted = true
		return
	}

	h.network = next
	h.nextHost = 1
}

func (h *AddressHelper) currentNetwork() netip.Prefix {
	return netip.PrefixFrom(fromUint32(h.network), h.maskBits)
}

func toUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromUint32(v uint32) netip.Addr {
	var b [4]byte

	binary.BigEndian.PutUint32(b[:], v)

	return netip.AddrFrom4(b)
}
