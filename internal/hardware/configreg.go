package hardware

// Fixed configuration register fields. The sensor is always operated in
// wake-up mode on the band-pass filtered pyro signal; the reserved
// fields must carry these exact values per the datasheet.
const (
	operationModeWakeUp = 2
	signalSourceBPF     = 0
	reservedOne         = 2
	reservedTwo         = 0
	pulseDetectionBPF   = 0
)

// Settings holds the tunable fields of the sensor's 25-bit configuration
// register. Values are raw register values, not engineering units.
type Settings struct {
	// Threshold the band-pass filtered signal must exceed for a pulse
	// to count. Lower means longer detection range but more false
	// triggers.
	Threshold uint32
	// BlindTime after an alarm during which re-triggering is
	// suppressed: 0.5s + value * 0.5s.
	BlindTime uint32
	// PulseCounter is the number of threshold crossings required within
	// the window to raise an alarm: 1 + value pulses.
	PulseCounter uint32
	// WindowTime the pulse counter is evaluated over: 2s + value * 2s.
	WindowTime uint32
	// HPFCutoff selects the high-pass cutoff: 0 for 0.4Hz (long range),
	// 1 for 0.2Hz.
	HPFCutoff uint32
}

// DefaultSettings returns the field-proven tuning for the stock lens.
func DefaultSettings() Settings {
	return Settings{
		Threshold:    24,
		BlindTime:    2,
		PulseCounter: 2,
		WindowTime:   3,
		HPFCutoff:    0,
	}
}

// ConfigRegister packs the settings into the serial configuration word,
// bit 24 transmitted first.
func (s Settings) ConfigRegister() uint32 {
	var reg uint32
	reg |= (s.Threshold & 0xff) << 17
	reg |= (s.BlindTime & 0x0f) << 13
	reg |= (s.PulseCounter & 0x03) << 11
	reg |= (s.WindowTime & 0x03) << 9
	reg |= uint32(operationModeWakeUp&0x03) << 7
	reg |= uint32(signalSourceBPF&0x03) << 5
	reg |= uint32(reservedOne&0x03) << 3
	reg |= (s.HPFCutoff & 0x01) << 2
	reg |= uint32(reservedTwo&0x01) << 1
	reg |= uint32(pulseDetectionBPF & 0x01)
	return reg
}
