package playback

import "sync"

// Stats are the callback-side degradation counters
type Stats struct {
	SlotContention uint64
	TapMisses      uint64
	CallbackPanics uint64
}

// Player wires a Slot, Position, Tap and Renderer together and optionally
// drives them from a Device.
type Player struct {
	slot     *Slot
	pos      *Position
	tap      *Tap
	renderer *Renderer

	mu     sync.Mutex
	device *Device
}

// NewPlayer returns a player rendering the given channel count with a tap
// window of tapSize samples.
func NewPlayer(channels, tapSize int) *Player {
	p := &Player{
		slot: NewSlot(nil),
		pos:  &Position{},
		tap:  NewTap(tapSize),
	}
	p.renderer = NewRenderer(p.slot, p.pos, p.tap, channels)
	return p
}

// Slot returns the shared buffer slot
func (p *Player) Slot() *Slot { return p.slot }

// Position returns the playback position
func (p *Player) Position() *Position { return p.pos }

// Tap returns the visualization tap
func (p *Player) Tap() *Tap { return p.tap }

// Renderer returns the render callback
func (p *Player) Renderer() *Renderer { return p.renderer }

// SetPlaying starts or pauses output
func (p *Player) SetPlaying(on bool) { p.renderer.SetPlaying(on) }

// SetLooping toggles wrap-around
func (p *Player) SetLooping(on bool) { p.renderer.SetLooping(on) }

// SetGain sets the live gain in dB
func (p *Player) SetGain(db float64) { p.renderer.SetGain(db) }

// Stats samples the degradation counters
func (p *Player) Stats() Stats {
	return Stats{
		SlotContention: p.slot.Contention(),
		TapMisses:      p.tap.Misses(),
		CallbackPanics: p.renderer.Panics(),
	}
}

// Open creates and starts the output device. The device channel count is
// taken from the renderer.
func (p *Player) Open(cfg DeviceConfig) error {
	cfg.Channels = p.renderer.Channels()
	d, err := OpenDevice(cfg, p.renderer.Render)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		_ = d.Close()
		return err
	}
	p.mu.Lock()
	p.device = d
	p.mu.Unlock()
	return nil
}

// DeviceName returns the open device name, or "" without a device
func (p *Player) DeviceName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return ""
	}
	return p.device.Name()
}

// Close stops output and releases the device if one is open
func (p *Player) Close() error {
	p.renderer.SetPlaying(false)
	p.mu.Lock()
	d := p.device
	p.device = nil
	p.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.Close()
}
