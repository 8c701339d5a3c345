// File: transform/macswap_test.go
package transform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSwapEthernetMACsExchangesFields(t *testing.T) {
	pkt := []byte{
		0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, // dst
		0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, // src
		0x08, 0x00, // EtherType IPv4
		0xde, 0xad, 0xbe, 0xef, // payload
	}
	err := SwapEthernetMACs(pkt)
	require.NoError(t, err)

	require.Equal(t, []byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}, pkt[0:6])
	require.Equal(t, []byte{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}, pkt[6:12])
	require.Equal(t, []byte{0x08, 0x00}, pkt[12:14])
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, pkt[14:])
}

func TestSwapEthernetMACsRejectsShortPacket(t *testing.T) {
	err := SwapEthernetMACs(make([]byte, 10))
	require.Error(t, err)
}
