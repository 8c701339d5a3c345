// File: transform/macswap.go
// Package transform implements the one packet mutation the forwarder
// performs in place between RX peek and TX submit: swapping the source and
// destination MAC addresses of the Ethernet header. Styled after the
// teacher's protocol frame codecs (core/protocol/frame_codec.go): a small,
// allocation-free function operating directly on a byte slice view into
// pooled/UMEM memory, never copying the packet.
package transform

import "fmt"

// EthHeaderLen is the fixed 14-byte Ethernet header: 6 bytes destination
// MAC, 6 bytes source MAC, 2 bytes EtherType.
const EthHeaderLen = 14

const macLen = 6

// SwapEthernetMACs exchanges the destination and source MAC address fields
// of an Ethernet frame in place. pkt must reference the live packet bytes
// (the UMEM frame's data region for the duration between RX peek and TX
// submit) — the mutation must be synchronous and must never reallocate the
// frame.
func SwapEthernetMACs(pkt []byte) error {
	if len(pkt) < EthHeaderLen {
		return fmt.Errorf("transform: packet too short for ethernet header: %d bytes", len(pkt))
	}
	var tmp [macLen]byte
	copy(tmp[:], pkt[0:macLen])
	copy(pkt[0:macLen], pkt[macLen:2*macLen])
	copy(pkt[macLen:2*macLen], tmp[:])
	return nil
}
