package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func silenceFrame(n int) []float32 {
	return make([]float32, n)
}

func toneFrame(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.4
	}
	return out
}

func TestEncodeFramePrefixesPageLength(t *testing.T) {
	enc, err := NewEncoder(960)
	require.NoError(t, err)

	page, err := enc.EncodeFrame(toneFrame(960))
	require.NoError(t, err)
	require.True(t, len(page) > 4)
	require.Equal(t, uint32(len(page)-4), binary.BigEndian.Uint32(page[:4]))
}

func TestInitSegmentIsStableAcrossCalls(t *testing.T) {
	enc, err := NewEncoder(960)
	require.NoError(t, err)

	hdr := enc.InitSegment()
	require.True(t, len(hdr) > 0)

	// A fresh encoder's header must be stable across calls since it is
	// captured once at monitoring start and reused for every saved blob.
	hdr2 := enc.InitSegment()
	require.Equal(t, hdr, hdr2)
}

func TestMimeTypeIsOggOpus(t *testing.T) {
	enc, err := NewEncoder(960)
	require.NoError(t, err)
	require.Equal(t, "audio/ogg", enc.MimeType())
}

func TestEncodeFrameHandlesSilence(t *testing.T) {
	enc, err := NewEncoder(960)
	require.NoError(t, err)

	page, err := enc.EncodeFrame(silenceFrame(960))
	require.NoError(t, err)
	require.True(t, len(page) > 0)
}
