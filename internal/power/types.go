package power

// Channel indexes into RawSample.Data and WaveFrame.
const (
	ChannelV1 = iota
	ChannelV2
	ChannelI1
	ChannelI2

	NumChannels = 4
	MaxPhases   = 2
)

// UsecsPerSecond is the length of an aggregation window on the acquisition
// microsecond counter.
const UsecsPerSecond = 1_000_000

// RawSample is one acquisition tick as produced by the ADC driver.
type RawSample struct {
	// Data holds raw ADC codes in V1, V2, I1, I2 order.
	Data [NumChannels]int16
	// Usecs is the monotonic microsecond counter since RTCTime.
	Usecs uint32
	// RTCTime is the wall-clock second at which the acquisition run began.
	// A change marks a new acquisition epoch.
	RTCTime uint32
}

// PowerSample is the one-second aggregate for both phases.
type PowerSample struct {
	Timestamp    uint32
	DurationUsec uint32
	Samples      uint32
	Vrms         [MaxPhases]float32
	Irms         [MaxPhases]float32
	P            [MaxPhases]float32
}

// PowerEvent reports a power-quality anomaly that occurred at least the
// configured number of times within one window.
type PowerEvent struct {
	Timestamp uint32
	Type      EventType
	Channel   uint8
	Count     uint32
	Avg       float32
	Worst     float32
}

// WaveFrame is one calibrated sample kept for live waveform display.
type WaveFrame [NumChannels]float32
