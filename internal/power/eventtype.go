package power

// EventType enumerates the power-quality anomalies the classifier detects.
type EventType uint8

const (
	VoltageSpike EventType = iota
	FrequencyHigh
	FrequencyLow
	Overcurrent
	VoltageHigh
	VoltageLow
)

var eventTypes = []EventType{
	VoltageSpike, FrequencyHigh, FrequencyLow, Overcurrent, VoltageHigh, VoltageLow,
}

func (t EventType) String() string {
	switch t {
	case VoltageSpike:
		return "VOLTAGE_SPIKE"
	case FrequencyHigh:
		return "AC_FREQUENCY_HIGH"
	case FrequencyLow:
		return "AC_FREQUENCY_LOW"
	case Overcurrent:
		return "OVERCURRENT"
	case VoltageHigh:
		return "VOLTAGE_HIGH"
	case VoltageLow:
		return "VOLTAGE_LOW"
	default:
		return "UNKNOWN"
	}
}

// Direction decides which observation becomes the worst value of a window.
type Direction uint8

const (
	// Above keeps the observation with the largest magnitude.
	Above Direction = iota
	// Below keeps the smallest observation.
	Below
)

// Rule is the per-type reporting policy.
type Rule struct {
	MinCount  uint32
	Direction Direction
}

// Rules maps each event type to its reporting policy.
type Rules map[EventType]Rule

// DefaultRules returns the minimum occurrence counts shipped with the meter.
func DefaultRules() Rules {
	return Rules{
		VoltageSpike:  {MinCount: 5, Direction: Above},
		FrequencyHigh: {MinCount: 5, Direction: Above},
		FrequencyLow:  {MinCount: 1, Direction: Below},
		Overcurrent:   {MinCount: 6, Direction: Above},
		VoltageHigh:   {MinCount: 6, Direction: Above},
		VoltageLow:    {MinCount: 10, Direction: Below},
	}
}

// WithMinCounts returns a copy of r with the minimum counts replaced by the
// entries of counts. Types missing from counts keep their current minimum.
func (r Rules) WithMinCounts(counts map[EventType]uint32) Rules {
	out := make(Rules, len(r))
	for t, rule := range r {
		if n, ok := counts[t]; ok {
			rule.MinCount = n
		}
		out[t] = rule
	}
	return out
}

// Thresholds are the limits whose violation counts as an occurrence.
type Thresholds struct {
	PeakVoltage  float32
	FrequencyMin float32
	FrequencyMax float32
	MaxCurrent   [MaxPhases]float32
	VoltageMin   float32
	VoltageMax   float32
}

// DefaultThresholds targets 230 V / 50 Hz mains.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PeakVoltage:  380,
		FrequencyMin: 49,
		FrequencyMax: 51,
		MaxCurrent:   [MaxPhases]float32{16, 16},
		VoltageMin:   207,
		VoltageMax:   253,
	}
}
