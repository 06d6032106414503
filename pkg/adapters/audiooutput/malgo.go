// Package audiooutput drives internal/playback.Worker from a real audio
// output device via github.com/gen2brain/malgo, the same library and
// Playback device pattern used elsewhere in the retrieval pack (e.g.
// iabetor-pibuddy's streaming player) for pushing float PCM to a
// sound card.
package audiooutput

import (
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/fieldops/pagingcore/internal/playback"
)

// Device owns the native playback device and pulls samples from a
// playback.Worker on malgo's real-time callback thread.
type Device struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// Start opens the default output device at sampleRate and begins pulling
// callbackSize-sample periods from worker via NextCallback, reporting
// recording as whatever recordingFn currently returns (the coordinator's
// own "is a session active" flag — read, never written, by the real-time
// thread).
func Start(worker *playback.Worker, sampleRate, callbackSize int, recordingFn func() bool) (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audiooutput: init context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(callbackSize)
	deviceConfig.Periods = 4

	var nowMS int64
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			nowMS += int64(frameCount) * 1000 / int64(sampleRate)
			samples := worker.NextCallback(nowMS, recordingFn())
			writeFloat32(out, samples)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("audiooutput: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("audiooutput: start device: %w", err)
	}

	return &Device{ctx: ctx, device: device}, nil
}

// Close stops and releases the native device.
func (d *Device) Close() error {
	d.device.Uninit()
	d.ctx.Uninit()
	d.ctx.Free()
	return nil
}

// writeFloat32 copies as many samples as fit into out, zero-padding (the
// callback buffer is always zeroed by malgo before invocation, but the
// pad is explicit here so a short worker reply never plays stale data).
func writeFloat32(out []byte, samples []float32) {
	n := len(out) / 4
	if n > len(samples) {
		n = len(samples)
	}
	for i := 0; i < n; i++ {
		bits := math.Float32bits(samples[i])
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	for i := n * 4; i < len(out); i++ {
		out[i] = 0
	}
}
