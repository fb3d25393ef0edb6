package power

import "github.com/chewxy/math32"

// Window accumulates one second of calibrated samples into a PowerSample.
// Its length is measured on the acquisition microsecond counter, not in
// samples, because the sampling rate is not fixed.
type Window struct {
	phases int

	epoch      uint32
	firstUsecs uint32
	n          uint32

	vAcc [MaxPhases]float32
	iAcc [MaxPhases]float32
	pAcc [MaxPhases]float32
}

func NewWindow(phases int) *Window {
	return &Window{phases: phases}
}

// Empty reports whether no sample was added since the last reset.
func (w *Window) Empty() bool {
	return w.n == 0
}

// Begin anchors an empty window at raw.
func (w *Window) Begin(raw RawSample) {
	w.epoch = raw.RTCTime
	w.firstUsecs = raw.Usecs
}

// Add accumulates one calibrated sample.
func (w *Window) Add(v, i [MaxPhases]float32) {
	for ch := 0; ch < w.phases; ch++ {
		w.vAcc[ch] += v[ch] * v[ch]
		w.iAcc[ch] += i[ch] * i[ch]
		w.pAcc[ch] += v[ch] * i[ch]
	}
	w.n++
}

// Due reports whether the window spans a full second at usecs.
func (w *Window) Due(usecs uint32) bool {
	return usecs-w.firstUsecs >= UsecsPerSecond
}

// Timestamp is the wall-clock second of the first sample in the window.
func (w *Window) Timestamp() uint32 {
	return w.epoch + w.firstUsecs/UsecsPerSecond
}

// Close builds the PowerSample ending at lastUsecs and resets the window.
func (w *Window) Close(lastUsecs uint32) PowerSample {
	s := PowerSample{
		Timestamp:    w.Timestamp(),
		DurationUsec: lastUsecs - w.firstUsecs,
		Samples:      w.n,
	}

	if w.n > 0 {
		n := float32(w.n)
		for ch := 0; ch < w.phases; ch++ {
			s.Vrms[ch] = math32.Sqrt(w.vAcc[ch] / n)
			s.Irms[ch] = math32.Sqrt(w.iAcc[ch] / n)
			s.P[ch] = w.pAcc[ch] / n
		}
	}

	w.Reset()

	return s
}

// Reset zeroes the accumulators.
func (w *Window) Reset() {
	w.n = 0
	w.vAcc = [MaxPhases]float32{}
	w.iAcc = [MaxPhases]float32{}
	w.pAcc = [MaxPhases]float32{}
}
