package power

import "github.com/chewxy/math32"

// CycleMetrics describes one completed AC cycle.
type CycleMetrics struct {
	Frequency float32
	Vrms      float32
	Irms      float32
}

// CycleAnalyzer delimits AC cycles on rising zero-crossings of the voltage
// waveform of one phase.
type CycleAnalyzer struct {
	lastV      float32
	firstRise  bool
	cycleStart uint32

	vAcc float32
	iAcc float32
	n    uint32
}

func NewCycleAnalyzer() *CycleAnalyzer {
	return &CycleAnalyzer{firstRise: true}
}

// Reset drops the running cycle. The next crossing only re-arms the
// detector since there is no reference to measure from.
func (c *CycleAnalyzer) Reset() {
	c.firstRise = true
	c.vAcc = 0
	c.iAcc = 0
	c.n = 0
}

// Feed processes one calibrated sample. It reports metrics when the sample
// completes a cycle that started on a previous crossing.
func (c *CycleAnalyzer) Feed(v, i float32, usecs uint32) (CycleMetrics, bool) {
	var (
		m  CycleMetrics
		ok bool
	)

	if c.lastV < 0 && v >= 0 {
		elapsed := usecs - c.cycleStart
		if !c.firstRise && c.n > 0 && elapsed > 0 {
			m = CycleMetrics{
				Frequency: UsecsPerSecond / float32(elapsed),
				Vrms:      math32.Sqrt(c.vAcc / float32(c.n)),
				Irms:      math32.Sqrt(c.iAcc / float32(c.n)),
			}
			ok = true
		}

		c.firstRise = false
		c.vAcc = 0
		c.iAcc = 0
		c.n = 0
		c.cycleStart = usecs
	}

	c.vAcc += v * v
	c.iAcc += i * i
	c.n++
	c.lastV = v

	return m, ok
}
