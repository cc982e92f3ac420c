package playback

import (
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/logging"
)

// ComponentPlayback identifies errors raised by the output device
const ComponentPlayback = "playback"

// deviceChunk bounds the scratch buffer used to convert one callback period
const deviceChunk = 1024

// DeviceInfo describes a playback device
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// DeviceConfig selects and configures the output device
type DeviceConfig struct {
	// Name matches a device by exact name, decoded ID or substring. Empty or
	// "default" selects the system default.
	Name       string
	SampleRate int
	Channels   int
}

// RenderFunc fills interleaved float32 output
type RenderFunc func(out []float32, frames int)

// Device is a malgo playback device driven by a RenderFunc.
type Device struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	name     string
	channels int
	render   RenderFunc
	scratch  []float32
	logger   *slog.Logger

	closeOnce sync.Once
}

func backendForPlatform() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

func deviceError(err error, op string) error {
	return errors.New(err).
		Component(ComponentPlayback).
		Category(errors.CategoryAudioDevice).
		Context("operation", op).
		Build()
}

// ListDevices returns the available playback devices.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(backendForPlatform(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, deviceError(err, "init_context")
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, deviceError(err, "enumerate_devices")
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodeDeviceID(infos[i].ID.String()),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// selectDevice finds a device by exact name, decoded ID or partial name.
// nil means the backend default.
func selectDevice(infos []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if name == "" || name == "default" {
		for i := range infos {
			if infos[i].IsDefault == 1 {
				return &infos[i], nil
			}
		}
		return nil, nil
	}
	for i := range infos {
		if infos[i].Name() == name {
			return &infos[i], nil
		}
	}
	for i := range infos {
		if decodeDeviceID(infos[i].ID.String()) == name {
			return &infos[i], nil
		}
	}
	lower := strings.ToLower(name)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), lower) {
			return &infos[i], nil
		}
	}
	return nil, errors.Newf("no playback device matches %q", name).
		Component(ComponentPlayback).
		Category(errors.CategoryAudioDevice).
		Context("device_name", name).
		Context("available_devices", len(infos)).
		Build()
}

// OpenDevice initializes a playback device. The device is stopped until Start.
func OpenDevice(cfg DeviceConfig, render RenderFunc) (*Device, error) {
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return nil, errors.Newf("unsupported output channel count %d", cfg.Channels).
			Component(ComponentPlayback).
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.Newf("invalid output sample rate %d", cfg.SampleRate).
			Component(ComponentPlayback).
			Category(errors.CategoryValidation).
			Build()
	}

	logger := logging.ForService("playback")
	if logger == nil {
		logger = slog.Default()
	}

	ctx, err := malgo.InitContext(backendForPlatform(), malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", slog.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, deviceError(err, "init_context")
	}

	d := &Device{
		ctx:      ctx,
		channels: cfg.Channels,
		render:   render,
		scratch:  make([]float32, deviceChunk*cfg.Channels),
		logger:   logger,
		name:     "default",
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		d.freeContext()
		return nil, deviceError(err, "enumerate_devices")
	}
	info, err := selectDevice(infos, cfg.Name)
	if err != nil {
		d.freeContext()
		return nil, err
	}
	if info != nil {
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
		d.name = info.Name()
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: func() {
			d.logger.Info("playback device stopped", slog.String("device", d.name))
		},
	})
	if err != nil {
		d.freeContext()
		return nil, deviceError(err, "init_device")
	}
	d.device = device

	logger.Info("playback device opened",
		slog.String("device", d.name),
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("channels", cfg.Channels))
	return d, nil
}

// Name returns the selected device name
func (d *Device) Name() string {
	return d.name
}

// onData converts the F32 byte buffer in bounded chunks through the scratch slice.
func (d *Device) onData(output, _ []byte, frameCount uint32) {
	frames := int(frameCount)
	frameBytes := 4 * d.channels
	frames = min(frames, len(output)/frameBytes)

	for off := 0; off < frames; off += deviceChunk {
		n := min(deviceChunk, frames-off)
		chunk := d.scratch[:n*d.channels]
		d.render(chunk, n)
		encodeF32(output[off*frameBytes:], chunk)
	}
}

// encodeF32 writes src as little-endian float32 into dst
func encodeF32(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

// Start begins playback callbacks
func (d *Device) Start() error {
	if err := d.device.Start(); err != nil {
		return deviceError(err, "start")
	}
	return nil
}

// Stop halts playback callbacks
func (d *Device) Stop() error {
	if err := d.device.Stop(); err != nil {
		return deviceError(err, "stop")
	}
	return nil
}

// Close stops and releases the device and its context. It is safe to call twice.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.device.IsStarted() {
			err = d.Stop()
		}
		d.device.Uninit()
		d.freeContext()
	})
	return err
}

func (d *Device) freeContext() {
	_ = d.ctx.Uninit()
	d.ctx.Free()
}

// decodeDeviceID turns malgo's hex device ID into the backend's readable ID
// when possible.
func decodeDeviceID(hexID string) string {
	b, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	return strings.TrimRight(string(b), "\x00")
}
