package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	soxr "github.com/zaf/resample"
)

// Capture feeds microphone audio into an Accumulator. The device runs at its
// hardware rate (typically 48kHz) and samples are downsampled through soxr to
// the pipeline rate before being appended.
type Capture struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	deviceRate uint32
	targetRate uint32
	channels   uint32
	resample   bool
	acc        *Accumulator

	mu           sync.Mutex
	capturing    bool
	resampler    *soxr.Resampler
	resamplerBuf *bytes.Buffer
}

// NewCapture creates a capture source writing into acc. Call Close when done.
func NewCapture(deviceRate, targetRate, channels int, acc *Accumulator) (*Capture, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	c := &Capture{
		ctx:        mctx,
		deviceRate: uint32(deviceRate),
		targetRate: uint32(targetRate),
		channels:   uint32(channels),
		acc:        acc,
	}

	if deviceRate != targetRate {
		buf := &bytes.Buffer{}
		rs, err := soxr.New(buf, float64(deviceRate), float64(targetRate), channels, soxr.F32, soxr.HighQ)
		if err != nil {
			mctx.Uninit()
			mctx.Free()
			return nil, fmt.Errorf("creating resampler %d->%d: %w", deviceRate, targetRate, err)
		}
		c.resampler = rs
		c.resamplerBuf = buf
		c.resample = true
	}

	return c, nil
}

// Start begins capturing from the default microphone into the accumulator.
func (c *Capture) Start() error {
	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return fmt.Errorf("already capturing")
	}
	c.capturing = true
	c.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = c.channels
	deviceCfg.SampleRate = c.deviceRate

	callbacks := malgo.DeviceCallbacks{
		Data: c.onData,
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		c.setStopped()
		return fmt.Errorf("initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		c.setStopped()
		return fmt.Errorf("starting capture device: %w", err)
	}

	c.mu.Lock()
	c.device = device
	c.mu.Unlock()

	slog.Info("capture started", "deviceRate", c.deviceRate, "targetRate", c.targetRate)
	return nil
}

// Stop ends the capture. Accumulated samples are left untouched; clearing
// the buffer is the scheduler's decision, not the capture source's.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return
	}
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.capturing = false
}

// IsCapturing returns whether the capture device is currently running.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Close releases the device, resampler, and audio context.
func (c *Capture) Close() error {
	c.Stop()

	c.mu.Lock()
	if c.resampler != nil {
		c.resampler.Close()
		c.resampler = nil
	}
	c.mu.Unlock()

	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}

func (c *Capture) setStopped() {
	c.mu.Lock()
	c.capturing = false
	c.mu.Unlock()
}

// onData is the malgo callback invoked from the capture thread. It converts
// the raw float32 bytes, resamples when the device rate differs from the
// pipeline rate, and appends to the accumulator. The accumulator's own lock
// is the only synchronization the pipeline sees.
func (c *Capture) onData(_, pSample []byte, frameCount uint32) {
	if !c.resample {
		c.acc.Append(bytesToFloat32(pSample, frameCount*c.channels))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resampler == nil {
		return
	}

	if _, err := c.resampler.Write(pSample); err != nil {
		slog.Warn("resampler write failed", "err", err)
		return
	}
	out := c.resamplerBuf.Bytes()
	usable := len(out) / 4 // whole float32 samples only
	if usable == 0 {
		return
	}
	c.acc.Append(bytesToFloat32(out, uint32(usable)))
	c.resamplerBuf.Next(usable * 4)
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
