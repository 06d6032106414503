package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageLengthPrefixMatchesPacketSize(t *testing.T) {
	o := newOggStream(48000, 1)
	packet := []byte{1, 2, 3, 4, 5}

	page := o.page(packet)
	require.Len(t, page, 4+len(packet))
	require.Equal(t, uint32(len(packet)), binary.BigEndian.Uint32(page[:4]))
	require.Equal(t, packet, page[4:])
}

func TestHeaderPagesEncodesSampleRateAndChannels(t *testing.T) {
	o := newOggStream(48000, 1)
	hdr := o.headerPages()

	require.Equal(t, uint32(8), binary.BigEndian.Uint32(hdr[:4]))
	sampleRate := binary.BigEndian.Uint32(hdr[4:8])
	channels := binary.BigEndian.Uint32(hdr[8:12])
	require.Equal(t, uint32(48000), sampleRate)
	require.Equal(t, uint32(1), channels)
}
