// Package codec wraps gopkg.in/hraban/opus.v2 (the same library
// rustyguts-bken/client uses for its own voice codec) into the
// fixed-frame, continuous-mode encoder the capture tap adapter drives.
package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	sampleRate = 48000
	channels   = 1
	bitrate    = 32000
	// maxPacketBytes is RFC 6716's maximum Opus packet size.
	maxPacketBytes = 1275
)

// Encoder turns fixed-size PCM frames into Opus packets and frames them
// as a growing Ogg-like page stream, matching the MimeType the
// external.CaptureTap contract reports ("audio/ogg"). It is not safe for
// concurrent use.
type Encoder struct {
	enc       *opus.Encoder
	pcmBuf    []int16
	opusBuf   []byte
	ogg       *oggStream
	frameSize int
}

// NewEncoder constructs an Encoder for frameSize-sample PCM frames
// (e.g. 960 samples = 20ms at 48kHz, the same frame size
// rustyguts-bken/client uses).
func NewEncoder(frameSize int) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("new opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("set bitrate: %w", err)
	}
	_ = enc.SetDTX(true)
	_ = enc.SetInBandFEC(true)
	return &Encoder{
		enc:       enc,
		pcmBuf:    make([]int16, frameSize),
		opusBuf:   make([]byte, maxPacketBytes),
		ogg:       newOggStream(sampleRate, channels),
		frameSize: frameSize,
	}, nil
}

// MimeType reports the container format this encoder produces.
func (e *Encoder) MimeType() string { return "audio/ogg" }

// EncodeFrame encodes exactly frameSize PCM samples and returns one Ogg
// page's worth of bytes ready to append to the current batch.
func (e *Encoder) EncodeFrame(pcm []float32) ([]byte, error) {
	for i, s := range pcm {
		e.pcmBuf[i] = clampToInt16(s)
	}
	n, err := e.enc.Encode(e.pcmBuf, e.opusBuf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return e.ogg.page(e.opusBuf[:n]), nil
}

// InitSegment returns the single identification header page (sample rate
// and channel count) that must prefix a session's stored blob exactly once
// (spec.md §3, §9).
func (e *Encoder) InitSegment() []byte {
	return e.ogg.headerPages()
}

func clampToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}
