package power

// ADS111x full-scale ranges divided by the positive code span.
const (
	adcScale0V256 = 0.256 / 32768
	adcScale2V048 = 2.048 / 32768
)

// Calibration converts raw ADC codes into volts and amps.
type Calibration struct {
	// ADCScale is volts per code for the voltage inputs, I1 and I2.
	ADCScale [3]float32
	// VoltageFactors and CurrentFactors map the ADC input voltage to the
	// mains quantity for each phase.
	VoltageFactors [MaxPhases]float32
	CurrentFactors [MaxPhases]float32
}

func DefaultCalibration() Calibration {
	return Calibration{
		ADCScale:       [3]float32{adcScale0V256, adcScale2V048, adcScale2V048},
		VoltageFactors: [MaxPhases]float32{1950, 1950},
		CurrentFactors: [MaxPhases]float32{30, 30},
	}
}

// Scale returns calibrated phase voltages and currents for raw. Channels
// beyond phases are left zero.
func (c Calibration) Scale(raw RawSample, phases int) (v, i [MaxPhases]float32) {
	v[0] = c.ADCScale[0] * float32(raw.Data[ChannelV1]) * c.VoltageFactors[0]
	i[0] = c.ADCScale[1] * float32(raw.Data[ChannelI1]) * c.CurrentFactors[0]

	if phases == 2 {
		v[1] = c.ADCScale[0] * float32(raw.Data[ChannelV2]) * c.VoltageFactors[1]
		i[1] = c.ADCScale[2] * float32(raw.Data[ChannelI2]) * c.CurrentFactors[1]
	}

	return v, i
}
