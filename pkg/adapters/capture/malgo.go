// Package capture implements external.CaptureTap over a microphone input
// device using github.com/gen2brain/malgo, the same library the pack's
// voice-assistant sibling (agalue-sherpa-voice-assistant) uses for its
// audio capture. The malgo callback is real-time: it only copies samples
// into a small ring and returns, matching that sibling's lock-free
// producer/consumer split between the audio thread and a processing
// goroutine.
package capture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/fieldops/pagingcore/internal/external"
	"github.com/fieldops/pagingcore/pkg/adapters/codec"
)

const (
	frameSize      = 960 // 20ms @ 48kHz, matching the codec's Opus frame size
	pcmChanBuf     = 64
	fragmentChBuf  = 64
	ringBufferSize = 128
)

type frame struct {
	samples [2048]float32
	n       int
}

// ringBuffer is a lock-free single-producer/single-consumer ring buffer
// of raw capture frames, grounded on agalue-sherpa-voice-assistant's own
// atomic-indexed ring.
type ringBuffer struct {
	frames [ringBufferSize]frame
	head   atomic.Uint64
	tail   atomic.Uint64
	drops  atomic.Uint64
}

func (r *ringBuffer) push(samples []float32) {
	head, tail := r.head.Load(), r.tail.Load()
	if head-tail >= ringBufferSize {
		r.drops.Add(1)
		return
	}
	slot := &r.frames[head%ringBufferSize]
	slot.n = copy(slot.samples[:], samples)
	r.head.Add(1)
}

func (r *ringBuffer) pop() ([]float32, bool) {
	head, tail := r.head.Load(), r.tail.Load()
	if head == tail {
		return nil, false
	}
	slot := &r.frames[tail%ringBufferSize]
	out := make([]float32, slot.n)
	copy(out, slot.samples[:slot.n])
	r.tail.Add(1)
	return out, true
}

// Tap implements external.CaptureTap over one malgo capture device,
// continuously Opus-encoding 20ms frames and exposing both the raw PCM
// stream (for the ring buffer / level detector) and the encoded fragment
// stream (for the batch recorder) required by the interface.
type Tap struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	ring   *ringBuffer
	enc    *codec.Encoder

	pcm   chan []float32
	frags chan external.EncodedFragment

	flushReq chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

// New opens the default capture device at sampleRate and starts the
// background processing loop. Close releases every native resource.
func New(sampleRate int) (*Tap, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture unavailable: init audio context: %w", err)
	}

	enc, err := codec.NewEncoder(frameSize)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("capture unavailable: %w", err)
	}

	t := &Tap{
		ctx:      ctx,
		ring:     &ringBuffer{},
		enc:      enc,
		pcm:      make(chan []float32, pcmChanBuf),
		frags:    make(chan external.EncodedFragment, fragmentChBuf),
		flushReq: make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			t.ring.push(bytesToFloat32(in))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("capture unavailable: init device: %w", err)
	}
	t.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("capture unavailable: start device: %w", err)
	}

	t.wg.Add(1)
	go t.processLoop()

	return t, nil
}

func (t *Tap) SampleRate() int                            { return int(t.device.SampleRate()) }
func (t *Tap) PCM() <-chan []float32                      { return t.pcm }
func (t *Tap) Fragments() <-chan external.EncodedFragment { return t.frags }
func (t *Tap) MimeType() string                           { return t.enc.MimeType() }

// RequestFlush asks the processing loop to encode whatever partial frame
// it is accumulating and emit it as a fragment. Non-blocking: a flush
// already pending is not duplicated.
func (t *Tap) RequestFlush() {
	select {
	case t.flushReq <- struct{}{}:
	default:
	}
}

// PreRoll returns the encoder's header page, captured once and reused for
// every session's saved blob (spec.md glossary: "captured once at
// monitoring start").
func (t *Tap) PreRoll(ctx context.Context) ([]byte, error) {
	return t.enc.InitSegment(), nil
}

func (t *Tap) Close() error {
	close(t.stop)
	t.wg.Wait()
	if t.device != nil {
		t.device.Uninit()
	}
	if t.ctx != nil {
		t.ctx.Uninit()
		t.ctx.Free()
	}
	return nil
}

// processLoop drains the ring buffer, republishes raw PCM, and encodes
// frameSize-sample runs into fragments on request. It is the only
// goroutine that touches t.enc, so no locking is needed there.
func (t *Tap) processLoop() {
	defer t.wg.Done()
	var carry []float32

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		samples, ok := t.ring.pop()
		if !ok {
			select {
			case <-t.stop:
				return
			case <-t.flushReq:
				t.emitFragment(carry)
				carry = nil
			case <-time.After(100 * time.Microsecond):
				// No samples available: sleep briefly rather than
				// busy-spinning a core (agalue-sherpa-voice-assistant's
				// own ring-buffer processing loop does the same).
			}
			continue
		}

		select {
		case t.pcm <- samples:
		default:
		}

		carry = append(carry, samples...)
		for len(carry) >= frameSize {
			frag, err := t.enc.EncodeFrame(carry[:frameSize])
			carry = carry[frameSize:]
			if err != nil {
				continue // encoder fault: spec.md §7, batch recorder discards the empty batch
			}
			select {
			case t.frags <- external.EncodedFragment{Data: frag}:
			default:
			}
		}

		select {
		case <-t.flushReq:
			t.emitFragment(carry)
			carry = nil
		default:
		}
	}
}

// emitFragment pads a short residual frame with silence and encodes it,
// so a word-boundary or max-duration flush never waits for a full 20ms
// of new audio (spec.md §4.3: the recorder requests data on its own
// schedule, not fixed-timeslice chunking).
func (t *Tap) emitFragment(residual []float32) {
	if len(residual) == 0 {
		return
	}
	padded := make([]float32, frameSize)
	copy(padded, residual)
	frag, err := t.enc.EncodeFrame(padded)
	if err != nil {
		return
	}
	select {
	case t.frags <- external.EncodedFragment{Data: frag}:
	default:
	}
}

func bytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := range out {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
