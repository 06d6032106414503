package codec

import "encoding/binary"

// oggStream is a minimal length-prefixed page framer, not a full RFC 3533
// Ogg muxer: each page is a 4-byte big-endian length followed by one Opus
// packet. It is enough to let EncodeFrame's output be split back into
// individual packets on decode, and to give the batch recorder distinct,
// concatenable byte runs per flush. A production deployment wanting a
// standards-compliant Ogg Opus container would swap this type out behind
// the same two methods.
type oggStream struct {
	sampleRate int
	channels   int
	headerSent bool
}

func newOggStream(sampleRate, channels int) *oggStream {
	return &oggStream{sampleRate: sampleRate, channels: channels}
}

func (o *oggStream) page(packet []byte) []byte {
	page := make([]byte, 4+len(packet))
	binary.BigEndian.PutUint32(page, uint32(len(packet)))
	copy(page[4:], packet)
	return page
}

// headerPages returns the one-time identification header: sample rate and
// channel count, framed the same way as a data page so a decoder can walk
// the stream uniformly.
func (o *oggStream) headerPages() []byte {
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(o.sampleRate))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(o.channels))
	return o.page(hdr)
}
